// internal/acquire/acquire.go
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/config"
)

// DefaultReadyPath is used when neither an override nor the target URL names a path.
const DefaultReadyPath = "/home"

const unavailableURL = "(unavailable)"

// State is a step of the acquisition or bootstrap state machine.
type State string

const (
	StateLaunching           State = "launching"
	StateAwaitingManualLogin State = "awaiting_manual_login"
	StatePollingReadyPath    State = "polling_ready_path"
	StateVerifying           State = "verifying"
	StateDismissingDialogs   State = "dismissing_dialogs"
	StateSnapshotting        State = "snapshotting"
	StatePersisted           State = "persisted"

	StateNavigating             State = "navigating_to_ready_path"
	StateDismissingKnownDialogs State = "dismissing_known_dialogs"
	StateRetryOrFail            State = "retry_or_fail"
	StateFailed                 State = "failed"
)

// ResolveExpectedPath returns override when set, else the path of targetURL
// unless it is empty or "/", else DefaultReadyPath.
func ResolveExpectedPath(override, targetURL string) string {
	if override != "" {
		return override
	}
	if u, err := url.Parse(targetURL); err == nil && u.Path != "" && u.Path != "/" {
		return u.Path
	}
	return DefaultReadyPath
}

// SnapshotStore persists the session snapshot. *session.Store implements it.
type SnapshotStore interface {
	Path() string
	Load() (*schemas.StorageState, error)
	Save(*schemas.StorageState) error
}

// Launcher starts a browser and returns its page plus a release function
// that must be called exactly once.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (browser.Page, func(), error)
}

// ChromeLauncher launches Chrome through chromedp.
type ChromeLauncher struct {
	Config config.BrowserConfig
	Logger *zap.Logger
}

func (l ChromeLauncher) Launch(ctx context.Context, headless bool) (browser.Page, func(), error) {
	cfg := l.Config
	cfg.Headless = headless
	m, err := browser.NewManager(ctx, cfg, l.Logger)
	if err != nil {
		return nil, nil, err
	}
	return m.NewPage(), m.Close, nil
}

// Result describes a completed cycle.
type Result struct {
	State     State
	FinalURL  string
	Snapshot  *schemas.StorageState
	Extended  bool
	StorePath string
}

// captureSnapshot prefers the extended capture and falls back to the narrow one.
func captureSnapshot(ctx context.Context, page browser.Page, logger *zap.Logger) (*schemas.StorageState, bool, error) {
	state, err := page.CaptureState(ctx, true)
	if err == nil {
		return state, true, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	logger.Info("Extended snapshot unavailable, capturing cookies and localStorage only.", zap.Error(err))

	state, err = page.CaptureState(ctx, false)
	if err != nil {
		return nil, false, fmt.Errorf("failed to capture session state: %w", err)
	}
	return state, false, nil
}

// currentURL reads the page URL for diagnostics, tolerating failures.
func currentURL(ctx context.Context, page browser.Page) string {
	urlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	u, err := page.CurrentURL(urlCtx)
	if err != nil {
		return unavailableURL
	}
	return u
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
