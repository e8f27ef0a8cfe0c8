// internal/poll/poll.go
package poll

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/faults"
)

// Policy governs one poll loop. Timeout is the hard deadline measured from the
// start of the loop; Interval bounds each attempt.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

func (p Policy) String() string {
	return fmt.Sprintf("timeout=%s interval=%s", p.Timeout, p.Interval)
}

// Predicate is a readiness condition over the live page.
type Predicate interface {
	// Describe names the condition for diagnostics.
	Describe() string
	// Holds reports whether the condition is met right now without blocking.
	Holds(ctx context.Context) (bool, error)
	// Wait blocks until the condition holds or ctx ends. Expiry of ctx's
	// deadline is reported as an error wrapping context.DeadlineExceeded.
	Wait(ctx context.Context) error
}

// Observer reads the URL recorded in a TimeoutError. It may be nil.
type Observer func(ctx context.Context) (string, error)

// TimeoutError is returned when the outer deadline elapses before the
// predicate holds.
type TimeoutError struct {
	Condition string
	LastURL   string
	Policy    Policy
	Attempts  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition %q not met within %s (interval %s, %d attempts, last URL %q)",
		e.Condition, e.Policy.Timeout, e.Policy.Interval, e.Attempts, e.LastURL)
}

// Is lets errors.Is match both context.DeadlineExceeded and another *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	if target == context.DeadlineExceeded {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok
}

// Until waits for pred under policy. The deadline is fixed when Until is
// called. Each attempt runs with a timeout of min(Interval, remaining); an
// attempt that times out counts as "not yet". Any other predicate error ends
// the loop immediately.
func Until(ctx context.Context, pred Predicate, policy Policy, observe Observer) error {
	if policy.Timeout <= 0 {
		return faults.Config("poll.until", "timeout must be positive, got %s", policy.Timeout)
	}
	if policy.Interval <= 0 {
		return faults.Config("poll.until", "poll interval must be positive, got %s", policy.Interval)
	}

	deadline := time.Now().Add(policy.Timeout)
	attempts := 0

	ok, err := pred.Holds(ctx)
	if err != nil {
		return fmt.Errorf("checking %s: %w", pred.Describe(), err)
	}
	if ok {
		return nil
	}

	for {
		wait := min(policy.Interval, time.Until(deadline))
		if wait <= 0 {
			break
		}
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, wait)
		err := pred.Wait(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("waiting for %s: %w", pred.Describe(), err)
		}
		// The attempt timed out. A parent deadline shorter than ours ends the loop too.
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s: %w", pred.Describe(), ctx.Err())
		}
	}

	te := &TimeoutError{Condition: pred.Describe(), Policy: policy, Attempts: attempts}
	if observe != nil {
		obsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		if u, err := observe(obsCtx); err == nil {
			te.LastURL = u
		}
		cancel()
	}
	return te
}

// -- Built-in predicates --

type urlPredicate struct {
	page  browser.Page
	desc  string
	match func(string) bool
}

func (p urlPredicate) Describe() string { return p.desc }

func (p urlPredicate) Holds(ctx context.Context) (bool, error) {
	u, err := p.page.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return p.match(u), nil
}

func (p urlPredicate) Wait(ctx context.Context) error {
	return p.page.WaitURL(ctx, p.match)
}

// URLContains holds when the full current URL contains substr.
func URLContains(page browser.Page, substr string) Predicate {
	return urlPredicate{
		page:  page,
		desc:  fmt.Sprintf("URL contains %q", substr),
		match: func(u string) bool { return strings.Contains(u, substr) },
	}
}

// PathContains holds when the path component of the current URL contains
// path. An unparsable URL is compared as a whole.
func PathContains(page browser.Page, path string) Predicate {
	return urlPredicate{
		page:  page,
		desc:  fmt.Sprintf("path contains %q", path),
		match: func(u string) bool { return strings.Contains(URLPath(u), path) },
	}
}

// URLPath returns the path of raw, or raw itself when it does not parse.
func URLPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

type visiblePredicate struct {
	page browser.Page
	loc  browser.Locator
}

// Visible holds when the element addressed by loc is rendered.
func Visible(page browser.Page, loc browser.Locator) Predicate {
	return visiblePredicate{page: page, loc: loc}
}

func (p visiblePredicate) Describe() string { return fmt.Sprintf("%s is visible", p.loc) }

func (p visiblePredicate) Holds(ctx context.Context) (bool, error) {
	// A one-millisecond wait acts as a visibility probe.
	probeCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	err := p.page.WaitVisible(probeCtx, p.loc)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, nil
	default:
		return false, err
	}
}

func (p visiblePredicate) Wait(ctx context.Context) error {
	return p.page.WaitVisible(ctx, p.loc)
}
