// internal/acquire/acquire_test.go
package acquire

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/dialogs"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/mocks"
	"github.com/xkilldash9x/regress-cli/internal/poll"
	"github.com/xkilldash9x/regress-cli/internal/session"
	"github.com/xkilldash9x/regress-cli/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const target = "https://app.example.com/home"

// -- Test Fixtures --

type fakeLauncher struct {
	mu       sync.Mutex
	page     *mocks.FakePage
	err      error
	launches int
	releases int
	headless []bool
}

func (l *fakeLauncher) Launch(ctx context.Context, headless bool) (browser.Page, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.headless = append(l.headless, headless)
	if l.err != nil {
		return nil, nil, l.err
	}
	return l.page, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.releases++
	}, nil
}

func (l *fakeLauncher) released() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}

func testEngine(t *testing.T) *dialogs.Engine {
	t.Helper()
	return dialogs.NewEngine(config.NewDefaultConfig().Dialogs(), zaptest.NewLogger(t), dialogs.WithTimings(dialogs.Timings{
		BlockingClick: 20 * time.Millisecond,
		FirstRunClick: 20 * time.Millisecond,
		RecoveryClick: 20 * time.Millisecond,
	}))
}

func sampleState() *schemas.StorageState {
	return &schemas.StorageState{
		Cookies: []schemas.Cookie{{Name: "sid", Value: "abc", Domain: "app.example.com", Path: "/", Expires: -1, SameSite: schemas.CookieSameSiteLax}},
		Origins: []schemas.OriginState{{
			Origin:       "https://app.example.com",
			LocalStorage: []schemas.NameValue{{Name: "token", Value: "t"}},
			IndexedDB:    []schemas.IndexedDBDatabase{{Name: "cache", Version: 1}},
		}},
	}
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(filepath.Join(t.TempDir(), "storage", "auth.json"))
}

func interactiveOpts(input string) InteractiveOptions {
	return InteractiveOptions{
		TargetURL:    target,
		ExpectedPath: "/home",
		Policy:       poll.Policy{Timeout: 150 * time.Millisecond, Interval: 30 * time.Millisecond},
		Input:        strings.NewReader(input),
	}
}

func disabledVerifier(t *testing.T) *verify.Verifier {
	return verify.New(verify.Options{}, zaptest.NewLogger(t))
}

// -- Test Cases: Expected path --

func TestResolveExpectedPath(t *testing.T) {
	tests := []struct {
		name, override, url, want string
	}{
		{"override wins", "/dashboard", "https://a.test/home", "/dashboard"},
		{"url path", "", "https://a.test/portal/top", "/portal/top"},
		{"root path falls back", "", "https://a.test/", DefaultReadyPath},
		{"empty path falls back", "", "https://a.test", DefaultReadyPath},
		{"unparsable falls back", "", "://bad", DefaultReadyPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveExpectedPath(tt.override, tt.url))
		})
	}
}

// -- Test Cases: Interactive --

func TestInteractive_Success(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	page.State = sampleState()
	promo := page.AddDialog(&mocks.FakeDialog{Name: "promo", Marker: "ModalDialogBox", Open: true, Buttons: []*mocks.FakeButton{{Text: "Close"}}})
	launcher := &fakeLauncher{page: page}
	store := newStore(t)

	flow := NewInteractive(launcher, store, disabledVerifier(t), testEngine(t), interactiveOpts("\n"), zaptest.NewLogger(t))
	res, err := flow.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePersisted, res.State)
	assert.Equal(t, StatePersisted, flow.State())
	assert.True(t, res.Extended)
	assert.False(t, promo.Open, "dialogs are dismissed on the home page")
	assert.Equal(t, []bool{false}, launcher.headless, "manual login always uses a visible browser")
	assert.Equal(t, 1, launcher.released())

	require.True(t, store.Exists())
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "sid", saved.Cookies[0].Name)
	assert.True(t, saved.HasIndexedDB())
}

func TestInteractive_FallsBackToNarrowSnapshot(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	page.State = sampleState()
	page.ExtendedUnsupported = true
	launcher := &fakeLauncher{page: page}
	store := newStore(t)

	res, err := NewInteractive(launcher, store, disabledVerifier(t), testEngine(t), interactiveOpts("\n"), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Extended)
	assert.Equal(t, []string{"CaptureState extended=true", "CaptureState extended=false"}, page.CallsWithPrefix("CaptureState"))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.False(t, saved.HasIndexedDB())
}

func TestInteractive_ReadyPathTimeout(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	page.Redirects = map[string]string{target: "https://app.example.com/login"}
	launcher := &fakeLauncher{page: page}
	store := newStore(t)

	_, err := NewInteractive(launcher, store, disabledVerifier(t), testEngine(t), interactiveOpts("\n"), zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTimeout))
	assert.Contains(t, err.Error(), `"/home"`)
	assert.Contains(t, err.Error(), "https://app.example.com/login")
	assert.Contains(t, faults.RemedyOf(err), "regress auth")

	assert.Equal(t, 1, launcher.released(), "the browser is released on failure")
	assert.False(t, store.Exists())
}

func TestInteractive_VerificationFailureReleasesBrowser(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	launcher := &fakeLauncher{page: page}
	store := newStore(t)
	v := verify.New(verify.Options{Enabled: true, Selectors: []string{"#profile"}, Timeout: 30 * time.Millisecond}, zaptest.NewLogger(t))

	flow := NewInteractive(launcher, store, v, testEngine(t), interactiveOpts("\n"), zaptest.NewLogger(t))
	_, err := flow.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#profile")
	assert.Equal(t, StateFailed, flow.State())
	assert.Equal(t, 1, launcher.released())
	assert.False(t, store.Exists())
}

func TestInteractive_SkipsDismissalOffHome(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	page.Redirects = map[string]string{"https://app.example.com/portal": "https://app.example.com/portal"}
	page.AddDialog(&mocks.FakeDialog{Name: "promo", Marker: "ModalDialogBox", Open: true, Buttons: []*mocks.FakeButton{{Text: "Close"}}})
	launcher := &fakeLauncher{page: page}

	opts := interactiveOpts("\n")
	opts.TargetURL = "https://app.example.com/portal"
	opts.ExpectedPath = "/portal"
	_, err := NewInteractive(launcher, newStore(t), disabledVerifier(t), testEngine(t), opts, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, page.CallsWithPrefix("CloseDialogs"))
	assert.Equal(t, []string{"promo"}, page.OpenDialogs())
}

func TestInteractive_LaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("chrome not found")}
	_, err := NewInteractive(launcher, newStore(t), disabledVerifier(t), testEngine(t), interactiveOpts("\n"), zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Zero(t, launcher.released())
}

func TestInteractive_EOFCountsAsAcknowledgment(t *testing.T) {
	page := mocks.NewFakePage("about:blank")
	_, err := NewInteractive(&fakeLauncher{page: page}, newStore(t), disabledVerifier(t), testEngine(t), interactiveOpts(""), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
}

// -- Test Cases: Bootstrap --

func bootstrapParams(timeout time.Duration) BootstrapParams {
	return BootstrapParams{
		TargetURL:    target,
		ReadyPath:    "/home",
		PollInterval: 30 * time.Millisecond,
		Timeout:      timeout,
		Headless:     true,
	}
}

func TestBootstrap_MissingSession(t *testing.T) {
	launcher := &fakeLauncher{page: mocks.NewFakePage("about:blank")}
	_, err := NewBootstrap(launcher, newStore(t), testEngine(t), bootstrapParams(time.Second), zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindMissing))
	assert.Zero(t, launcher.launches, "no browser is started without a session")
}

func TestBootstrap_InvalidParams(t *testing.T) {
	p := bootstrapParams(0)
	err := p.Validate()
	assert.True(t, faults.Is(err, faults.KindConfig))
}

func TestBootstrap_RecoversAndPersists(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(sampleState()))

	page := mocks.NewFakePage("about:blank")
	page.Redirects = map[string]string{target: "https://app.example.com/login"}
	page.ScheduleURL(60*time.Millisecond, "https://app.example.com/home")
	refreshed := sampleState()
	refreshed.Cookies[0].Value = "refreshed"
	page.State = refreshed
	generic := page.AddDialog(&mocks.FakeDialog{Name: "promo", Marker: "ModalDialogBox", Open: true, Buttons: []*mocks.FakeButton{{Text: "Later"}, {Text: "Close"}}})
	page.Overlays = []string{"TapAreaOverlay_blockingOverlay__x1"}
	launcher := &fakeLauncher{page: page}

	res, err := NewBootstrap(launcher, store, testEngine(t), bootstrapParams(time.Second), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePersisted, res.State)
	assert.Equal(t, []bool{true}, launcher.headless)
	require.NotNil(t, page.Restored)
	assert.Equal(t, "abc", page.Restored.Cookies[0].Value, "the stored session is restored before navigation")
	assert.Len(t, page.CallsWithPrefix("Navigate"), 1, "the target is loaded once")

	assert.False(t, generic.Open)
	assert.Equal(t, 1, generic.Buttons[1].Clicks)
	assert.Zero(t, page.OverlayCount())

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.Cookies[0].Value, "the snapshot is overwritten wholesale")
	assert.Equal(t, 1, launcher.released())
}

func TestBootstrap_KeepsOriginsOutsideTheTab(t *testing.T) {
	store := newStore(t)
	stored := sampleState()
	idp := schemas.OriginState{Origin: "https://login.example.com", LocalStorage: []schemas.NameValue{{Name: "device", Value: "d1"}}}
	stored.Origins = append(stored.Origins, idp)
	require.NoError(t, store.Save(stored))

	page := mocks.NewFakePage(target)
	page.State = sampleState()
	launcher := &fakeLauncher{page: page}

	_, err := NewBootstrap(launcher, store, testEngine(t), bootstrapParams(time.Second), zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, page.Restored.Origins, 2, "both origins are seeded")
	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved.Origins, 2)
	assert.Equal(t, "t", saved.Origin("https://app.example.com").LocalStorage[0].Value)
	kept := saved.Origin("https://login.example.com")
	require.NotNil(t, kept, "the origin the tab never visited survives the re-snapshot")
	assert.Equal(t, idp.LocalStorage, kept.LocalStorage)
}

func TestBootstrap_DeadlineIsFatal(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(sampleState()))

	page := mocks.NewFakePage("about:blank")
	page.Redirects = map[string]string{target: "https://app.example.com/login"}
	launcher := &fakeLauncher{page: page}

	timeout := 200 * time.Millisecond
	start := time.Now()
	_, err := NewBootstrap(launcher, store, testEngine(t), bootstrapParams(timeout), zaptest.NewLogger(t)).Run(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTimeout))
	assert.Contains(t, err.Error(), `expected path "/home"`)
	assert.Contains(t, err.Error(), "https://app.example.com/login")
	assert.Contains(t, faults.RemedyOf(err), "regress auth")
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+100*time.Millisecond)
	assert.Equal(t, 1, launcher.released())
	assert.Empty(t, page.CallsWithPrefix("CaptureState"), "an unready session is never re-persisted")
}

func TestBootstrap_NavigationFailure(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(sampleState()))

	page := mocks.NewFakePage("about:blank")
	page.NavigateErr = context.DeadlineExceeded
	launcher := &fakeLauncher{page: page}

	_, err := NewBootstrap(launcher, store, testEngine(t), bootstrapParams(time.Second), zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, launcher.released())
}
