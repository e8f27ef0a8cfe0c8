// internal/acquire/bootstrap.go
package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/dialogs"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/poll"
)

const bootstrapRemedy = "run `regress auth` to capture a fresh session"

// BootstrapParams is baked into the runner's pre-flight script.
type BootstrapParams struct {
	TargetURL    string
	ReadyPath    string
	PollInterval time.Duration
	Timeout      time.Duration
	Headless     bool
	StatePath    string
}

// Validate checks the parameters before any browser work.
func (p BootstrapParams) Validate() error {
	switch {
	case p.TargetURL == "":
		return faults.Config("bootstrap", "target URL is required")
	case p.ReadyPath == "":
		return faults.Config("bootstrap", "ready path is required")
	case p.Timeout <= 0:
		return faults.Config("bootstrap", "timeout must be positive, got %s", p.Timeout)
	case p.PollInterval <= 0:
		return faults.Config("bootstrap", "poll interval must be positive, got %s", p.PollInterval)
	}
	return nil
}

// Bootstrap re-validates a stored session before a test batch and persists a
// dialog-free snapshot.
type Bootstrap struct {
	launcher Launcher
	store    SnapshotStore
	engine   *dialogs.Engine
	params   BootstrapParams
	logger   *zap.Logger
}

// NewBootstrap wires the automated bootstrap.
func NewBootstrap(launcher Launcher, store SnapshotStore, engine *dialogs.Engine, params BootstrapParams, logger *zap.Logger) *Bootstrap {
	return &Bootstrap{
		launcher: launcher,
		store:    store,
		engine:   engine,
		params:   params,
		logger:   logger.Named("bootstrap"),
	}
}

// Run loads the session, navigates once and polls for the ready path until
// the deadline. Reaching it runs the recovery sequence and re-persists the
// session; missing it is fatal for the batch.
func (b *Bootstrap) Run(ctx context.Context) (*Result, error) {
	if err := b.params.Validate(); err != nil {
		return nil, err
	}
	state, err := b.store.Load()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(b.params.Timeout)

	page, release, err := b.launcher.Launch(ctx, b.params.Headless)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer release()

	if err := page.RestoreState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	b.logger.Debug("Bootstrap state changed.", zap.String("state", string(StateNavigating)))
	navCtx, cancel := context.WithDeadline(ctx, deadline)
	err = page.Navigate(navCtx, b.params.TargetURL)
	cancel()
	if err != nil {
		return nil, &faults.Error{
			Kind:   faults.KindTimeout,
			Op:     "bootstrap.navigate",
			Msg:    fmt.Sprintf("could not load %s", b.params.TargetURL),
			Remedy: bootstrapRemedy,
			Err:    err,
		}
	}

	attempt := 0
	lastURL := ""
	for time.Now().Before(deadline) {
		attempt++
		lastURL = currentURL(ctx, page)

		if strings.Contains(poll.URLPath(lastURL), b.params.ReadyPath) {
			return b.finish(ctx, page, state, lastURL, attempt)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		b.logger.Debug("Ready path not reached yet.",
			zap.Int("attempt", attempt),
			zap.String("url", lastURL),
			zap.Duration("remaining", remaining))
		if err := sleep(ctx, min(b.params.PollInterval, remaining)); err != nil {
			return nil, err
		}
	}

	b.logger.Error("Bootstrap failed.", zap.String("state", string(StateRetryOrFail)), zap.Int("attempts", attempt))
	if u := currentURL(ctx, page); u != unavailableURL {
		lastURL = u
	}
	return nil, faults.Timeout("bootstrap",
		fmt.Sprintf("authenticated page not reached: expected path %q, current URL %s", b.params.ReadyPath, lastURL),
		bootstrapRemedy)
}

func (b *Bootstrap) finish(ctx context.Context, page browser.Page, restored *schemas.StorageState, url string, attempt int) (*Result, error) {
	b.logger.Debug("Bootstrap state changed.", zap.String("state", string(StateDismissingKnownDialogs)), zap.Int("attempt", attempt))
	if b.engine != nil {
		if _, err := b.engine.Recover(ctx, page); err != nil {
			return nil, err
		}
	}

	snapshot, extended, err := captureSnapshot(ctx, page, b.logger)
	if err != nil {
		return nil, err
	}
	snapshot.CarryOrigins(restored)
	if err := b.store.Save(snapshot); err != nil {
		return nil, err
	}

	b.logger.Info("Session ready.", zap.String("url", url), zap.Int("attempts", attempt), zap.Bool("extended", extended))
	return &Result{State: StatePersisted, FinalURL: url, Snapshot: snapshot, Extended: extended, StorePath: b.store.Path()}, nil
}
