// File: internal/mocks/fake_page.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/browser"
)

// fakeTick is how often the fake's blocking waits re-check their condition.
const fakeTick = 2 * time.Millisecond

// ErrExtendedUnsupported is returned by CaptureState(extended=true) when the
// fake is configured to lack IndexedDB support.
var ErrExtendedUnsupported = errors.New("indexedDB.databases is not supported")

// FakeButton is a button inside a FakeDialog.
type FakeButton struct {
	Text string
	// Fail makes every click on the button return an error.
	Fail bool
	// Keep leaves the dialog open after a click.
	Keep   bool
	Clicks int
}

// FakeDialog is a <dialog> element. Marker is the class fragment it carries,
// e.g. "ModalDialogBox" for blocking dialogs or "PurchaseConfirm" for
// interactive ones.
type FakeDialog struct {
	Name    string
	Marker  string
	Open    bool
	Buttons []*FakeButton
	// CloseCalls counts native close() sweeps that reached the dialog.
	CloseCalls int
}

// FakeElement is a standalone element registered under an exact selector.
type FakeElement struct {
	Text    string
	Visible bool
	Fail    bool
	Clicks  int
	// OnClick runs after a successful click, outside the page lock.
	OnClick func(p *FakePage)
}

type scheduledURL struct {
	at  time.Time
	url string
}

// FakePage is a stateful, in-memory browser.Page. Selectors are matched with a
// small model: an exact key of Elements wins; otherwise a compound selector
// starting with "dialog" matches dialogs, restricted to open ones when it
// contains "[open]" and to dialogs whose Marker it contains when it has a
// class*= clause. A selector ending in " button" addresses the buttons of the
// matched dialogs. Overlays are matched by their class*= fragments.
type FakePage struct {
	mu sync.Mutex

	url      string
	schedule []scheduledURL

	Dialogs  []*FakeDialog
	Elements map[string][]*FakeElement
	// Overlays holds the class names of blocking overlay elements.
	Overlays []string

	// Redirects maps a navigated URL to the URL the page ends up on.
	Redirects   map[string]string
	NavigateErr error
	// URLErr makes CurrentURL fail.
	URLErr error

	// State is returned by CaptureState.
	State               *schemas.StorageState
	CaptureErr          error
	ExtendedUnsupported bool
	Restored            *schemas.StorageState

	calls []string
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage returns a fake positioned at url.
func NewFakePage(url string) *FakePage {
	return &FakePage{
		url:      url,
		Elements: map[string][]*FakeElement{},
		State:    &schemas.StorageState{Cookies: []schemas.Cookie{}, Origins: []schemas.OriginState{}},
	}
}

// AddDialog registers a dialog and returns it for further setup.
func (p *FakePage) AddDialog(d *FakeDialog) *FakeDialog {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Dialogs = append(p.Dialogs, d)
	return d
}

// AddElement registers an element under an exact selector.
func (p *FakePage) AddElement(selector string, el *FakeElement) *FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Elements[selector] = append(p.Elements[selector], el)
	return el
}

// SetURL moves the page to url immediately.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.schedule = nil
}

// ScheduleURL makes the page report url once after has elapsed.
func (p *FakePage) ScheduleURL(after time.Duration, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schedule = append(p.schedule, scheduledURL{at: time.Now().Add(after), url: url})
}

// Calls returns the recorded page interactions in order.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsWithPrefix returns the recorded interactions starting with prefix.
func (p *FakePage) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// OpenDialogs returns the names of the dialogs currently open.
func (p *FakePage) OpenDialogs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, d := range p.Dialogs {
		if d.Open {
			names = append(names, d.Name)
		}
	}
	return names
}

// OverlayCount returns the number of overlays still attached.
func (p *FakePage) OverlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Overlays)
}

func (p *FakePage) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *FakePage) currentURLLocked() string {
	now := time.Now()
	kept := p.schedule[:0]
	for _, s := range p.schedule {
		if !now.Before(s.at) {
			p.url = s.url
			continue
		}
		kept = append(kept, s)
	}
	p.schedule = kept
	return p.url
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Navigate %s", url)
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if target, ok := p.Redirects[url]; ok {
		url = target
	}
	p.url = url
	return nil
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.URLErr != nil {
		return "", p.URLErr
	}
	return p.currentURLLocked(), nil
}

func (p *FakePage) WaitURL(ctx context.Context, match func(string) bool) error {
	p.mu.Lock()
	p.record("WaitURL")
	p.mu.Unlock()
	return waitFor(ctx, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return match(p.currentURLLocked())
	})
}

func (p *FakePage) WaitVisible(ctx context.Context, loc browser.Locator) error {
	p.mu.Lock()
	p.record("WaitVisible %s", loc)
	p.mu.Unlock()
	return waitFor(ctx, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		t, ok := p.pickLocked(loc)
		return ok && t.visible()
	})
}

func (p *FakePage) Click(ctx context.Context, loc browser.Locator) error {
	p.mu.Lock()
	p.record("Click %s", loc)
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		return err
	}
	t, ok := p.pickLocked(loc)
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("click %s: no matching element", loc)
	}

	var hook func(*FakePage)
	switch {
	case t.button != nil:
		if t.button.Fail {
			p.mu.Unlock()
			return fmt.Errorf("click %s: element is not interactable", loc)
		}
		t.button.Clicks++
		if !t.button.Keep && t.dialog != nil {
			t.dialog.Open = false
		}
	case t.element != nil:
		if t.element.Fail || !t.element.Visible {
			p.mu.Unlock()
			return fmt.Errorf("click %s: %w", loc, context.DeadlineExceeded)
		}
		t.element.Clicks++
		hook = t.element.OnClick
	default:
		p.mu.Unlock()
		return fmt.Errorf("click %s: target is not clickable", loc)
	}
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) Count(ctx context.Context, loc browser.Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Count %s", loc)
	return len(p.resolveLocked(loc)), nil
}

func (p *FakePage) CloseDialogs(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("CloseDialogs %s", selector)
	n := 0
	for _, d := range p.Dialogs {
		if d.Open && dialogMatches(selector, d) {
			d.CloseCalls++
			d.Open = false
			n++
		}
	}
	return n, nil
}

func (p *FakePage) RemoveElements(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("RemoveElements %s", selector)
	fragments := classFragments(selector)
	kept := p.Overlays[:0]
	n := 0
	for _, class := range p.Overlays {
		if matchesAny(class, fragments) {
			n++
			continue
		}
		kept = append(kept, class)
	}
	p.Overlays = kept
	return n, nil
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Evaluate")
	return nil
}

func (p *FakePage) CaptureState(ctx context.Context, extended bool) (*schemas.StorageState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("CaptureState extended=%t", extended)
	if extended && p.ExtendedUnsupported {
		return nil, ErrExtendedUnsupported
	}
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	state := *p.State
	if !extended {
		state.Origins = make([]schemas.OriginState, len(p.State.Origins))
		for i, o := range p.State.Origins {
			o.IndexedDB = nil
			state.Origins[i] = o
		}
	}
	return &state, nil
}

func (p *FakePage) RestoreState(ctx context.Context, state *schemas.StorageState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("RestoreState")
	p.Restored = state
	return nil
}

// -- selector model --

type fakeTarget struct {
	dialog  *FakeDialog
	button  *FakeButton
	element *FakeElement
}

func (t fakeTarget) visible() bool {
	switch {
	case t.element != nil:
		return t.element.Visible
	case t.dialog != nil:
		return t.dialog.Open
	}
	return false
}

func (t fakeTarget) text() string {
	switch {
	case t.button != nil:
		return t.button.Text
	case t.element != nil:
		return t.element.Text
	}
	return ""
}

func (p *FakePage) resolveLocked(loc browser.Locator) []fakeTarget {
	var items []fakeTarget

	if els, ok := p.Elements[loc.Selector]; ok && loc.Child == "" {
		for _, el := range els {
			items = append(items, fakeTarget{element: el})
		}
	} else {
		sel := loc.Selector
		buttons := loc.Child == "button"
		if strings.HasSuffix(sel, " button") {
			sel = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(sel, " button"), ">"))
			buttons = true
		}

		var dialogs []*FakeDialog
		for _, d := range p.Dialogs {
			if dialogMatches(sel, d) {
				dialogs = append(dialogs, d)
			}
		}
		if loc.Child != "" && len(dialogs) > 1 {
			dialogs = dialogs[:1]
		}
		for _, d := range dialogs {
			if !buttons {
				items = append(items, fakeTarget{dialog: d})
				continue
			}
			for _, b := range d.Buttons {
				items = append(items, fakeTarget{dialog: d, button: b})
			}
		}
	}

	if loc.Text == "" {
		return items
	}
	filtered := items[:0]
	for _, it := range items {
		if strings.Contains(strings.TrimSpace(it.text()), loc.Text) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

func (p *FakePage) pickLocked(loc browser.Locator) (fakeTarget, bool) {
	items := p.resolveLocked(loc)
	idx := loc.Nth
	if idx < 0 {
		idx = len(items) + idx
	}
	if idx < 0 || idx >= len(items) {
		return fakeTarget{}, false
	}
	return items[idx], true
}

var classFragmentRE = regexp.MustCompile(`class\*="([^"]+)"`)

func classFragments(selector string) []string {
	var out []string
	for _, m := range classFragmentRE.FindAllStringSubmatch(selector, -1) {
		out = append(out, m[1])
	}
	return out
}

func matchesAny(class string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(class, f) {
			return true
		}
	}
	return false
}

// dialogMatches models a single compound dialog selector; descendant and
// grouped selectors never match a dialog.
func dialogMatches(selector string, d *FakeDialog) bool {
	if !strings.HasPrefix(selector, "dialog") || strings.ContainsAny(selector, " >,") {
		return false
	}
	if strings.Contains(selector, "[open]") && !d.Open {
		return false
	}
	if strings.Contains(selector, "class*=") {
		return d.Marker != "" && strings.Contains(selector, d.Marker)
	}
	return true
}

func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(fakeTick)
	defer ticker.Stop()
	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
