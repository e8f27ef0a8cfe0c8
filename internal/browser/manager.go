// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/config"
)

// launchProbeTimeout bounds the about:blank round trip that proves the browser is alive.
const launchProbeTimeout = 30 * time.Second

// Manager owns one Chrome process for the duration of an acquisition or bootstrap cycle.
type Manager struct {
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewManager launches Chrome with options derived from cfg and verifies it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{logger: logger.Named("browser")}

	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	probeCtx, cancel := CombineContext(m.browserCtx, ctx)
	defer cancel()
	probeCtx, cancelProbe := context.WithTimeout(probeCtx, launchProbeTimeout)
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Debug("Browser launched.", zap.Bool("headless", cfg.Headless))
	return m, nil
}

// NewPage returns the page bound to the manager's initial tab.
func (m *Manager) NewPage() *ChromePage {
	return newChromePage(m.browserCtx, m.logger)
}

// Close terminates the browser process. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Debug("Browser closed.")
}

// allocatorFlags computes the command-line flags for Chrome. Boolean false removes a default flag.
func allocatorFlags(cfg config.BrowserConfig, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                 cfg.Headless,
		"hide-scrollbars":          cfg.Headless,
		"mute-audio":               cfg.Headless,
		"disable-blink-features":   "AutomationControlled",
		"enable-automation":        false,
		"disable-extensions":       true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-popup-blocking":   true,
	}
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds chromedp allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(cfg, runtime.GOOS)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if !cfg.Headless {
		opts = append(opts, chromedp.WindowSize(1280, 900))
	}
	return opts
}
