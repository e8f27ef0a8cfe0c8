// internal/browser/chrome_page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// waitPollInterval is how often in-page conditions are re-evaluated by the wait primitives.
const waitPollInterval = 100 * time.Millisecond

// ChromePage implements Page over a chromedp target.
type ChromePage struct {
	ctx    context.Context
	logger *zap.Logger
	// restored holds the origins seeded by RestoreState.
	restored []schemas.OriginState
}

var _ Page = (*ChromePage)(nil)

func newChromePage(ctx context.Context, logger *zap.Logger) *ChromePage {
	return &ChromePage{ctx: ctx, logger: logger.Named("page")}
}

// run executes actions within both the tab's lifetime and ctx's deadline.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
	}
	return err
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *ChromePage) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read current url: %w", err)
	}
	return loc, nil
}

func (p *ChromePage) WaitURL(ctx context.Context, match func(string) bool) error {
	read := func(c context.Context) (string, error) {
		var loc string
		err := p.run(c, chromedp.Location(&loc))
		return loc, err
	}
	return pollUntil(ctx, waitPollInterval, urlCheck(p.ctx, p.logger, read, match))
}

// urlCheck adapts a URL read into a poll condition. Read failures while both
// the tab and ctx are alive (a navigation tearing down the execution context)
// count as "not yet".
func urlCheck(tab context.Context, logger *zap.Logger, read func(context.Context) (string, error), match func(string) bool) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		loc, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil || tab.Err() != nil {
				return false, err
			}
			logger.Debug("URL not readable yet, retrying.", zap.Error(err))
			return false, nil
		}
		return match(loc), nil
	}
}

func (p *ChromePage) WaitVisible(ctx context.Context, loc Locator) error {
	script := visibleScript(loc)
	err := pollUntil(ctx, waitPollInterval, func(c context.Context) (bool, error) {
		var visible bool
		if err := p.Evaluate(c, script, &visible); err != nil {
			return false, err
		}
		return visible, nil
	})
	if err != nil {
		return fmt.Errorf("wait for %s to be visible: %w", loc, err)
	}
	return nil
}

// Click resolves loc in the page, tags the element and clicks it through CDP
// input events, waiting for it to become visible within ctx.
func (p *ChromePage) Click(ctx context.Context, loc Locator) error {
	token := uuid.NewString()

	var found bool
	if err := p.Evaluate(ctx, markScript(loc, token), &found); err != nil {
		return fmt.Errorf("resolve %s: %w", loc, err)
	}
	if !found {
		return fmt.Errorf("click %s: no matching element", loc)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(Detach(ctx), 2*time.Second)
		defer cancel()
		if err := p.Evaluate(cleanupCtx, unmarkScript(token), nil); err != nil {
			p.logger.Debug("Could not remove click marker.", zap.Error(err))
		}
	}()

	if err := p.run(ctx, chromedp.Click(markedSelector(token), chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (p *ChromePage) Count(ctx context.Context, loc Locator) (int, error) {
	var n int
	if err := p.Evaluate(ctx, countScript(loc), &n); err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return n, nil
}

func (p *ChromePage) CloseDialogs(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.Evaluate(ctx, closeDialogsScript(selector), &n); err != nil {
		return 0, fmt.Errorf("close dialogs %s: %w", selector, err)
	}
	return n, nil
}

func (p *ChromePage) RemoveElements(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.Evaluate(ctx, removeElementsScript(selector), &n); err != nil {
		return 0, fmt.Errorf("remove %s: %w", selector, err)
	}
	return n, nil
}

// Evaluate runs expression in the page, awaiting promises, and decodes the result into out when non-nil.
func (p *ChromePage) Evaluate(ctx context.Context, expression string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expression, out, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
}

// pollUntil re-evaluates check until it reports true, fails, or ctx ends.
func pollUntil(ctx context.Context, interval time.Duration, check func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
