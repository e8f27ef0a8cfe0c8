// internal/dialogs/engine.go
package dialogs

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/poll"
)

// Patterns identifies the blocking UI of the target application. Dialogs
// outside OpenBlocking/Blocking/GenericDialog are never dismissed.
type Patterns struct {
	OpenBlocking       string
	Blocking           string
	Overlays           string
	FirstRunClose      string
	FirstRunCloseImage string
	GenericDialog      string
	OpenDialogButton   string
	OKText             string
	HomePath           string
}

// PatternsFromConfig copies the configured selectors.
func PatternsFromConfig(cfg config.DialogsConfig) Patterns {
	return Patterns{
		OpenBlocking:       cfg.OpenBlocking,
		Blocking:           cfg.Blocking,
		Overlays:           cfg.Overlays,
		FirstRunClose:      cfg.FirstRunClose,
		FirstRunCloseImage: cfg.FirstRunCloseImage,
		GenericDialog:      cfg.GenericDialog,
		OpenDialogButton:   cfg.OpenDialogButton,
		OKText:             cfg.OKText,
		HomePath:           cfg.HomePath,
	}
}

// Timings holds the settle delays and click bounds of both routines.
type Timings struct {
	Initial       time.Duration
	Settle        time.Duration
	FirstRun      time.Duration
	Generic       time.Duration
	BlockingClick time.Duration
	FirstRunClick time.Duration
	RecoveryClick time.Duration
}

// DefaultTimings derives the timings from the configured settle delay.
func DefaultTimings(settle time.Duration) Timings {
	return Timings{
		Initial:       500 * time.Millisecond,
		Settle:        settle,
		FirstRun:      500 * time.Millisecond,
		Generic:       250 * time.Millisecond,
		BlockingClick: 2 * time.Second,
		FirstRunClick: 5 * time.Second,
		RecoveryClick: 3 * time.Second,
	}
}

const (
	genericRounds = 5
	okRounds      = 3
)

// Report summarizes what a dismissal or recovery pass did.
type Report struct {
	// FirstRun is set by Recover only.
	FirstRun        Outcome
	BlockingClicks  int
	GenericClicks   int
	OKClicks        int
	Swept           int
	OverlaysRemoved int
}

// Changed reports whether the pass altered the page.
func (r Report) Changed() bool {
	_, clicked := r.FirstRun.(Clicked)
	return clicked || r.BlockingClicks+r.GenericClicks+r.OKClicks+r.Swept+r.OverlaysRemoved > 0
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimings overrides the default timings.
func WithTimings(t Timings) Option {
	return func(e *Engine) { e.timings = t }
}

// Engine dismisses the blocking dialogs described by its patterns.
type Engine struct {
	patterns  Patterns
	maxClicks int
	timings   Timings
	logger    *zap.Logger
}

// NewEngine creates an engine from the dialogs configuration.
func NewEngine(cfg config.DialogsConfig, logger *zap.Logger, opts ...Option) *Engine {
	maxClicks := cfg.MaxClicks
	if maxClicks <= 0 {
		maxClicks = 10
	}
	e := &Engine{
		patterns:  PatternsFromConfig(cfg),
		maxClicks: maxClicks,
		timings:   DefaultTimings(time.Duration(cfg.SettleMs) * time.Millisecond),
		logger:    logger.Named("dialogs"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Patterns returns the engine's selectors.
func (e *Engine) Patterns() Patterns { return e.patterns }

// OnHomePage reports whether rawURL is a page the dialog patterns apply to.
func (e *Engine) OnHomePage(rawURL string) bool {
	if e.patterns.HomePath == "" {
		return true
	}
	return strings.Contains(poll.URLPath(rawURL), e.patterns.HomePath)
}

// Dismiss closes open blocking dialogs and removes blocking overlays. It is
// idempotent and safe on a page without dialogs. Individual steps are best
// effort; only cancellation of ctx is returned as an error.
func (e *Engine) Dismiss(ctx context.Context, page browser.Page) (Report, error) {
	var rep Report
	if err := sleep(ctx, e.timings.Initial); err != nil {
		return rep, err
	}

	dialog := browser.CSS(e.patterns.OpenBlocking)
	button := dialog.Within("button")
	for i := 0; i < e.maxClicks; i++ {
		if !e.present(ctx, page, dialog) || !e.present(ctx, page, button) {
			break
		}
		if err := clickWithin(ctx, page, button, e.timings.BlockingClick); err != nil {
			e.logger.Debug("Blocking dialog button did not respond.", zap.Int("round", i+1), zap.Error(err))
			break
		}
		rep.BlockingClicks++
		if err := sleep(ctx, e.timings.Settle); err != nil {
			return rep, err
		}
	}

	e.sweep(ctx, page, &rep)
	if err := sleep(ctx, e.timings.Settle); err != nil {
		return rep, err
	}

	e.logger.Debug("Dismissal pass finished.",
		zap.Int("clicks", rep.BlockingClicks),
		zap.Int("swept", rep.Swept),
		zap.Int("overlays", rep.OverlaysRemoved))
	return rep, ctx.Err()
}

// Recover runs the fixed pre-flight recovery sequence: the first-run close
// control (or its image), the generic dialog's last button, the OK button of
// any open dialog, then the forced sweep.
func (e *Engine) Recover(ctx context.Context, page browser.Page) (Report, error) {
	var rep Report

	rep.FirstRun = FirstSuccess(ctx, page, e.timings.FirstRunClick,
		Candidate{Name: "first-run close button", Locator: browser.CSS(e.patterns.FirstRunClose)},
		Candidate{Name: "first-run close image", Locator: browser.CSS(e.patterns.FirstRunCloseImage)},
	)
	if _, ok := rep.FirstRun.(Clicked); ok {
		if err := sleep(ctx, e.timings.FirstRun); err != nil {
			return rep, err
		}
	}
	e.logger.Debug("First-run dialog step.", zap.Stringer("outcome", rep.FirstRun))

	generic := browser.CSS(e.patterns.GenericDialog)
	last := generic.Within("button").Last()
	for i := 0; i < genericRounds; i++ {
		if !e.present(ctx, page, generic) || !e.present(ctx, page, last) {
			break
		}
		if err := clickWithin(ctx, page, last, e.timings.RecoveryClick); err != nil {
			e.logger.Debug("Generic dialog button did not respond.", zap.Int("round", i+1), zap.Error(err))
			break
		}
		rep.GenericClicks++
		if err := sleep(ctx, e.timings.Generic); err != nil {
			return rep, err
		}
	}

	ok := browser.CSS(e.patterns.OpenDialogButton).WithText(e.patterns.OKText)
	for i := 0; i < okRounds; i++ {
		if !e.present(ctx, page, ok) {
			break
		}
		if err := clickWithin(ctx, page, ok, e.timings.RecoveryClick); err != nil {
			e.logger.Debug("OK button did not respond.", zap.Int("round", i+1), zap.Error(err))
			break
		}
		rep.OKClicks++
		if err := sleep(ctx, e.timings.Settle); err != nil {
			return rep, err
		}
	}

	e.sweep(ctx, page, &rep)

	e.logger.Info("Recovery sequence finished.",
		zap.Stringer("first_run", rep.FirstRun),
		zap.Int("generic_clicks", rep.GenericClicks),
		zap.Int("ok_clicks", rep.OKClicks),
		zap.Int("swept", rep.Swept),
		zap.Int("overlays", rep.OverlaysRemoved))
	return rep, ctx.Err()
}

// sweep force-closes open blocking dialogs and deletes overlays.
func (e *Engine) sweep(ctx context.Context, page browser.Page, rep *Report) {
	if e.patterns.Blocking != "" {
		n, err := page.CloseDialogs(ctx, e.patterns.Blocking)
		if err != nil {
			e.logger.Warn("Dialog sweep failed.", zap.Error(err))
		}
		rep.Swept += n
	}
	if e.patterns.Overlays != "" {
		n, err := page.RemoveElements(ctx, e.patterns.Overlays)
		if err != nil {
			e.logger.Warn("Overlay removal failed.", zap.Error(err))
		}
		rep.OverlaysRemoved += n
	}
}

func (e *Engine) present(ctx context.Context, page browser.Page, loc browser.Locator) bool {
	if loc.Selector == "" {
		return false
	}
	n, err := page.Count(ctx, loc)
	if err != nil {
		e.logger.Debug("Locator count failed.", zap.Stringer("locator", loc), zap.Error(err))
		return false
	}
	return n > 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
