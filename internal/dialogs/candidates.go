// internal/dialogs/candidates.go
package dialogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/regress-cli/internal/browser"
)

// errAbsent marks a candidate whose locator matched nothing.
var errAbsent = errors.New("no matching element")

// Candidate is one ranked recovery action: clicking the element at Locator.
type Candidate struct {
	Name    string
	Locator browser.Locator
}

// Attempt records why a candidate did not succeed.
type Attempt struct {
	Candidate Candidate
	Err       error
}

// Outcome is the result of evaluating ranked candidates. It is either a
// Clicked or a NoCandidate.
type Outcome interface {
	outcome()
	String() string
}

// Clicked reports the candidate that was clicked.
type Clicked struct {
	Candidate Candidate
	// Skipped lists the higher-ranked candidates that failed first.
	Skipped []Attempt
}

// NoCandidate reports that every candidate was absent or failed.
type NoCandidate struct {
	Attempts []Attempt
}

func (Clicked) outcome()     {}
func (NoCandidate) outcome() {}

func (c Clicked) String() string { return "clicked " + c.Candidate.Name }

func (n NoCandidate) String() string {
	return fmt.Sprintf("no candidate worked (%d tried)", len(n.Attempts))
}

// Absent reports whether every candidate was missing from the page, as
// opposed to present but not clickable.
func (n NoCandidate) Absent() bool {
	for _, a := range n.Attempts {
		if !errors.Is(a.Err, errAbsent) {
			return false
		}
	}
	return true
}

// FirstSuccess evaluates candidates in rank order and clicks the first one
// that is present. A click that fails moves on to the next candidate. Each
// click is bounded by timeout.
func FirstSuccess(ctx context.Context, page browser.Page, timeout time.Duration, candidates ...Candidate) Outcome {
	var attempts []Attempt
	for _, c := range candidates {
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Candidate: c, Err: ctx.Err()})
			break
		}

		n, err := page.Count(ctx, c.Locator)
		if err != nil {
			attempts = append(attempts, Attempt{Candidate: c, Err: err})
			continue
		}
		if n == 0 {
			attempts = append(attempts, Attempt{Candidate: c, Err: errAbsent})
			continue
		}

		if err := clickWithin(ctx, page, c.Locator, timeout); err != nil {
			attempts = append(attempts, Attempt{Candidate: c, Err: err})
			continue
		}
		return Clicked{Candidate: c, Skipped: attempts}
	}
	return NoCandidate{Attempts: attempts}
}

func clickWithin(ctx context.Context, page browser.Page, loc browser.Locator, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.Click(clickCtx, loc)
}
