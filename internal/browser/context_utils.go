// internal/browser/context_utils.go
package browser

import (
	"context"
	"errors"
	"time"
)

// CombineContext derives a context from primary (which carries the CDP target)
// that is also canceled when secondary is done and inherits secondary's
// deadline, so deadline expiry surfaces as context.DeadlineExceeded.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	cancelDeadline := context.CancelFunc(func() {})
	deadline, hasDeadline := secondary.Deadline()
	if hasDeadline {
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
	}
	// Expiry is left to the inherited deadline so Err reports DeadlineExceeded
	// rather than whichever of the two wakeups ran first.
	stop := context.AfterFunc(secondary, func() {
		if hasDeadline && errors.Is(secondary.Err(), context.DeadlineExceeded) {
			return
		}
		cancel()
	})

	return combined, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context carrying ctx's values but none of its cancellation.
// Cleanup of browser resources runs on a detached context.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
