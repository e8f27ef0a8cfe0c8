// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// Locator addresses elements on the page. Selector picks scope elements; when
// Child is set the candidates are Child matches inside the first scope element.
// Text keeps candidates whose trimmed text contains it. Nth indexes the
// remaining candidates, negative values counting from the end.
type Locator struct {
	Selector string
	Child    string
	Text     string
	Nth      int
}

// CSS returns a locator for the first element matching selector.
func CSS(selector string) Locator {
	return Locator{Selector: selector}
}

// Within returns a locator for child matches inside the first element matching l.Selector.
func (l Locator) Within(child string) Locator {
	l.Child = child
	return l
}

// WithText narrows the candidates to those containing text.
func (l Locator) WithText(text string) Locator {
	l.Text = text
	return l
}

// Last selects the last candidate.
func (l Locator) Last() Locator {
	l.Nth = -1
	return l
}

func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(l.Selector)
	if l.Child != "" {
		b.WriteString(" >> ")
		b.WriteString(l.Child)
	}
	if l.Text != "" {
		fmt.Fprintf(&b, " :text(%q)", l.Text)
	}
	switch {
	case l.Nth < 0:
		b.WriteString(" >> last")
	case l.Nth > 0:
		fmt.Fprintf(&b, " >> nth=%d", l.Nth)
	}
	return b.String()
}

// Page is a single browsing surface. Blocking waits honour ctx; when ctx's
// deadline expires they return an error wrapping context.DeadlineExceeded.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// WaitURL blocks until match reports true for the current URL.
	WaitURL(ctx context.Context, match func(string) bool) error
	WaitVisible(ctx context.Context, loc Locator) error
	Click(ctx context.Context, loc Locator) error
	Count(ctx context.Context, loc Locator) (int, error)
	// CloseDialogs invokes close() on every dialog matching selector that is
	// open and strips its open attribute. It returns the number touched.
	CloseDialogs(ctx context.Context, selector string) (int, error)
	// RemoveElements deletes every element matching selector from the DOM.
	RemoveElements(ctx context.Context, selector string) (int, error)
	Evaluate(ctx context.Context, expression string, out any) error
	// CaptureState snapshots cookies and origin storage. extended adds IndexedDB.
	CaptureState(ctx context.Context, extended bool) (*schemas.StorageState, error)
	RestoreState(ctx context.Context, state *schemas.StorageState) error
}
