// internal/acquire/interactive.go
package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/dialogs"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/poll"
	"github.com/xkilldash9x/regress-cli/internal/verify"
)

const rerunAuthRemedy = "run `regress auth` again and finish logging in before pressing Enter"

// InteractiveOptions parameterizes a manual login cycle.
type InteractiveOptions struct {
	TargetURL    string
	ExpectedPath string
	// Policy bounds the wait for the ready path after the operator confirms.
	Policy poll.Policy
	// Input delivers the operator's acknowledgment (a line, usually Enter).
	Input io.Reader
	// Prompt receives operator instructions.
	Prompt io.Writer
}

// Interactive captures a session from a human-driven login.
type Interactive struct {
	launcher Launcher
	store    SnapshotStore
	verifier *verify.Verifier
	engine   *dialogs.Engine
	opts     InteractiveOptions
	logger   *zap.Logger

	state State
}

// NewInteractive wires an interactive acquisition flow.
func NewInteractive(launcher Launcher, store SnapshotStore, verifier *verify.Verifier, engine *dialogs.Engine, opts InteractiveOptions, logger *zap.Logger) *Interactive {
	if opts.Prompt == nil {
		opts.Prompt = io.Discard
	}
	return &Interactive{
		launcher: launcher,
		store:    store,
		verifier: verifier,
		engine:   engine,
		opts:     opts,
		logger:   logger.Named("acquire"),
	}
}

// State returns the last state entered.
func (f *Interactive) State() State { return f.state }

func (f *Interactive) enter(s State) {
	f.state = s
	f.logger.Debug("Acquisition state changed.", zap.String("state", string(s)))
}

// Run executes Launching through Persisted. The browser is released on every
// exit path.
func (f *Interactive) Run(ctx context.Context) (res *Result, err error) {
	defer func() {
		if err != nil {
			f.logger.Warn("Acquisition failed.", zap.String("state", string(f.state)), zap.Error(err))
			f.state = StateFailed
		}
	}()

	f.enter(StateLaunching)
	page, release, err := f.launcher.Launch(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer release()

	if err := page.Navigate(ctx, f.opts.TargetURL); err != nil {
		return nil, err
	}

	f.enter(StateAwaitingManualLogin)
	fmt.Fprintf(f.opts.Prompt, "Log in to %s in the browser window, then press Enter here: ", f.opts.TargetURL)
	if err := awaitAcknowledgment(ctx, f.opts.Input); err != nil {
		return nil, err
	}

	f.enter(StatePollingReadyPath)
	err = poll.Until(ctx, poll.PathContains(page, f.opts.ExpectedPath), f.opts.Policy, page.CurrentURL)
	if err != nil {
		var te *poll.TimeoutError
		if errors.As(err, &te) {
			return nil, &faults.Error{
				Kind:   faults.KindTimeout,
				Op:     "acquire.ready_path",
				Msg:    fmt.Sprintf("expected path %q was not reached; current URL %s", f.opts.ExpectedPath, te.LastURL),
				Remedy: rerunAuthRemedy,
				Err:    te,
			}
		}
		return nil, err
	}

	if f.verifier != nil && f.verifier.Options().Enabled {
		f.enter(StateVerifying)
		if err := f.verifier.Verify(ctx, page); err != nil {
			return nil, err
		}
	}

	here := currentURL(ctx, page)
	if f.engine != nil && f.engine.OnHomePage(here) {
		f.enter(StateDismissingDialogs)
		rep, err := f.engine.Dismiss(ctx, page)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Blocking dialogs handled.", zap.Int("clicks", rep.BlockingClicks), zap.Int("swept", rep.Swept))
	} else {
		f.logger.Debug("Dialog dismissal skipped outside the home page.", zap.String("url", here))
	}

	f.enter(StateSnapshotting)
	snapshot, extended, err := captureSnapshot(ctx, page, f.logger)
	if err != nil {
		return nil, err
	}
	if err := f.store.Save(snapshot); err != nil {
		return nil, err
	}

	f.enter(StatePersisted)
	f.logger.Info("Session saved.", zap.String("path", f.store.Path()), zap.Int("cookies", len(snapshot.Cookies)))
	return &Result{State: StatePersisted, FinalURL: here, Snapshot: snapshot, Extended: extended, StorePath: f.store.Path()}, nil
}

// awaitAcknowledgment blocks until a line (or EOF) is read from in, or ctx ends.
func awaitAcknowledgment(ctx context.Context, in io.Reader) error {
	if in == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to read operator input: %w", err)
		}
		return nil
	}
}
