// internal/verify/verifier.go
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/poll"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultPollInterval = 5 * time.Second

	urlRemedy      = "review the --check-url value or pass --skip-check"
	selectorRemedy = "pass the correct selector with --check-selector or pass --skip-check"
	missingRemedy  = "set auth.check_url or auth.check_selectors (or --check-url / --check-selector)"

	unknownURL = "(unavailable)"
)

// Options configures post-login verification.
type Options struct {
	Enabled      bool
	URLSubstring string
	Selectors    []string
	Timeout      time.Duration
	PollInterval time.Duration
}

// OptionsFromConfig maps the auth section onto verifier options.
func OptionsFromConfig(a config.AuthConfig) Options {
	return Options{
		Enabled:      a.Verify,
		URLSubstring: a.CheckURL,
		Selectors:    append([]string(nil), a.CheckSelectors...),
		Timeout:      a.Timeout(),
		PollInterval: a.PollInterval(),
	}
}

// Verifier checks that an authenticated page reached its ready state.
type Verifier struct {
	opts   Options
	logger *zap.Logger
}

// New returns a verifier; zero durations take the defaults.
func New(opts Options, logger *zap.Logger) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Verifier{opts: opts, logger: logger.Named("verify")}
}

// Options returns the effective options.
func (v *Verifier) Options() Options { return v.opts }

// HasChecks reports whether at least one condition is configured.
func (v *Verifier) HasChecks() bool {
	return v.opts.URLSubstring != "" || len(v.opts.Selectors) > 0
}

// Verify runs the configured checks against page. A disabled verifier always
// succeeds. The URL condition is polled; each selector gets one dedicated
// wait and the first failure aborts the rest.
func (v *Verifier) Verify(ctx context.Context, page browser.Page) error {
	if !v.opts.Enabled {
		return nil
	}
	if !v.HasChecks() {
		err := faults.Config("verify", "verification is enabled but no condition is configured")
		err.Remedy = missingRemedy
		return err
	}

	if v.opts.URLSubstring != "" {
		if err := v.verifyURL(ctx, page); err != nil {
			return err
		}
	}

	for _, sel := range v.opts.Selectors {
		if err := v.verifySelector(ctx, page, sel); err != nil {
			return err
		}
	}

	v.logger.Info("Authentication verified.",
		zap.String("url_substring", v.opts.URLSubstring),
		zap.Strings("selectors", v.opts.Selectors))
	return nil
}

func (v *Verifier) verifyURL(ctx context.Context, page browser.Page) error {
	policy := poll.Policy{Timeout: v.opts.Timeout, Interval: v.opts.PollInterval}
	err := poll.Until(ctx, poll.URLContains(page, v.opts.URLSubstring), policy, page.CurrentURL)
	if err == nil {
		return nil
	}

	var te *poll.TimeoutError
	if !errors.As(err, &te) {
		return fmt.Errorf("URL verification failed: %w", err)
	}
	current := te.LastURL
	if current == "" {
		current = unknownURL
	}
	return &faults.Error{
		Kind: faults.KindTimeout,
		Op:   "verify.url",
		Msg: fmt.Sprintf("expected the URL to contain %q; current URL %s; checked every %ds",
			v.opts.URLSubstring, current, int(math.Round(v.opts.PollInterval.Seconds()))),
		Remedy: urlRemedy,
		Err:    te,
	}
}

func (v *Verifier) verifySelector(ctx context.Context, page browser.Page, selector string) error {
	waitCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	err := page.WaitVisible(waitCtx, browser.CSS(selector))
	if err == nil {
		v.logger.Debug("Selector visible.", zap.String("selector", selector))
		return nil
	}
	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("selector verification for %s failed: %w", selector, err)
	}

	return &faults.Error{
		Kind:   faults.KindTimeout,
		Op:     "verify.selector",
		Msg:    fmt.Sprintf("expected %s to be visible; current URL %s", selector, currentURL(ctx, page)),
		Remedy: selectorRemedy,
		Err:    err,
	}
}

func currentURL(ctx context.Context, page browser.Page) string {
	urlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	u, err := page.CurrentURL(urlCtx)
	if err != nil {
		return unknownURL
	}
	return u
}
