// cmd/auth_test.go
package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/browser"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/mocks"
	"github.com/xkilldash9x/regress-cli/internal/session"
)

type pageLauncher struct {
	page     *mocks.FakePage
	launches int
	releases int
}

func (l *pageLauncher) Launch(ctx context.Context, headless bool) (browser.Page, func(), error) {
	l.launches++
	return l.page, func() { l.releases++ }, nil
}

func parseAuthFlags(t *testing.T, args ...string) (*pflag.FlagSet, authFlags) {
	t.Helper()
	var flags authFlags
	fs := pflag.NewFlagSet("auth", pflag.ContinueOnError)
	bindAuthFlags(fs, &flags)
	require.NoError(t, fs.Parse(args))
	return fs, flags
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ProjectCfg.Root = t.TempDir()
	cfg.TargetCfg.URL = "https://app.example.com/home"
	cfg.AuthCfg.TimeoutMs = 300
	cfg.AuthCfg.PollIntervalMs = 50
	cfg.DialogsCfg.SettleMs = 0
	return cfg
}

func TestApplyAuthFlags(t *testing.T) {
	cfg := testConfig(t)
	fs, flags := parseAuthFlags(t, "--check-url", "/dashboard", "--check-selector", "#me", "--check-selector", ".nav", "--timeout", "2s", "--ready-path", "/top")
	applyAuthFlags(fs, cfg, flags)

	a := cfg.Auth()
	assert.True(t, a.Verify)
	assert.Equal(t, "/dashboard", a.CheckURL)
	assert.Equal(t, []string{"#me", ".nav"}, a.CheckSelectors)
	assert.Equal(t, 2000, a.TimeoutMs)
	assert.Equal(t, 50, a.PollIntervalMs, "unset flags keep the configured value")
	assert.Equal(t, "/top", a.ReadyPath)
}

func TestApplyAuthFlags_SkipCheckWins(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuthCfg.Verify = true
	fs, flags := parseAuthFlags(t, "--check-url", "/dashboard", "--skip-check")
	applyAuthFlags(fs, cfg, flags)
	assert.False(t, cfg.Auth().Verify)
}

func TestRunAuth_VerificationWithoutConditionNeverLaunches(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuthCfg.Verify = true
	launcher := &pageLauncher{}

	err := runAuth(context.Background(), cfg, authDeps{Launcher: launcher, Input: strings.NewReader("\n"), Now: time.Now}, &bytes.Buffer{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindConfig))
	assert.Zero(t, launcher.launches)
}

func TestRunAuth_PersistsSession(t *testing.T) {
	cfg := testConfig(t)
	page := mocks.NewFakePage("https://app.example.com/home")
	page.State = &schemas.StorageState{
		Cookies: []schemas.Cookie{{Name: "sid", Value: "abc", Domain: "app.example.com", Path: "/", Expires: -1}},
		Origins: []schemas.OriginState{},
	}
	launcher := &pageLauncher{page: page}
	var out bytes.Buffer

	err := runAuth(context.Background(), cfg, authDeps{Launcher: launcher, Input: strings.NewReader("\n"), Now: time.Now}, &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.releases)

	path := filepath.Join(cfg.ProjectCfg.Root, "storage", "auth.json")
	assert.Equal(t, path, cfg.Project().SessionPath())
	state, err := session.NewStore(path).Load()
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "sid", state.Cookies[0].Name)

	assert.Contains(t, out.String(), "Log in to https://app.example.com/home")
	assert.Contains(t, out.String(), "session saved to "+path)
}

func TestRunAuth_ReadyPathTimeout(t *testing.T) {
	cfg := testConfig(t)
	page := mocks.NewFakePage("https://app.example.com/login")
	launcher := &pageLauncher{page: page}
	cfg.TargetCfg.URL = "https://app.example.com/home"

	// Navigation lands on /login and never reaches /home.
	page.Redirects = map[string]string{"https://app.example.com/home": "https://app.example.com/login"}
	err := runAuth(context.Background(), cfg, authDeps{Launcher: launcher, Input: strings.NewReader("\n"), Now: time.Now}, &bytes.Buffer{}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindTimeout))
	assert.Contains(t, err.Error(), "/login")
	assert.Equal(t, 1, launcher.releases)
	assert.False(t, session.NewStore(cfg.Project().SessionPath()).Exists())
}
