// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// PlaceholderAPIKey is written by `init` and rejected by the generator.
const PlaceholderAPIKey = "YOUR_API_KEY_HERE"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Project() ProjectConfig
	Target() TargetConfig
	Browser() BrowserConfig
	Auth() AuthConfig
	Dialogs() DialogsConfig
	Generator() GeneratorConfig
	Runner() RunnerConfig
	Database() DatabaseConfig

	SetBrowserHeadless(bool)
	SetAuthConfig(AuthConfig)
}

// Config holds the complete application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ProjectCfg   ProjectConfig   `mapstructure:"project" yaml:"project"`
	TargetCfg    TargetConfig    `mapstructure:"target" yaml:"target"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	AuthCfg      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	DialogsCfg   DialogsConfig   `mapstructure:"dialogs" yaml:"dialogs"`
	GeneratorCfg GeneratorConfig `mapstructure:"generator" yaml:"generator"`
	RunnerCfg    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Project() ProjectConfig     { return c.ProjectCfg }
func (c *Config) Target() TargetConfig       { return c.TargetCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Auth() AuthConfig           { return c.AuthCfg }
func (c *Config) Dialogs() DialogsConfig     { return c.DialogsCfg }
func (c *Config) Generator() GeneratorConfig { return c.GeneratorCfg }
func (c *Config) Runner() RunnerConfig       { return c.RunnerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetAuthConfig(a AuthConfig) { c.AuthCfg = a }

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ProjectConfig locates the on-disk layout of a regression project.
// Relative directories are resolved against Root.
type ProjectConfig struct {
	Root       string `mapstructure:"root" yaml:"root"`
	StorageDir string `mapstructure:"storage_dir" yaml:"storage_dir"`
	TestsDir   string `mapstructure:"tests_dir" yaml:"tests_dir"`
	CasesDir   string `mapstructure:"cases_dir" yaml:"cases_dir"`
	ReportDir  string `mapstructure:"report_dir" yaml:"report_dir"`
}

// Resolve returns path joined onto the project root, with ~ expanded.
func (p ProjectConfig) Resolve(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		expanded = path
	}
	if filepath.IsAbs(expanded) {
		return expanded
	}
	root, err := homedir.Expand(p.Root)
	if err != nil || root == "" {
		root = "."
	}
	return filepath.Join(root, expanded)
}

// SessionPath is the fixed location of the persisted session snapshot.
func (p ProjectConfig) SessionPath() string {
	return filepath.Join(p.Resolve(p.StorageDir), "auth.json")
}

// TargetConfig describes the application under test.
type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the chromedp-driven browser and the test runner's browser.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// TimeoutMs is the per-test timeout handed to the runner.
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	// AuthReadyTimeoutMs bounds the pre-flight bootstrap. Zero falls back to TimeoutMs.
	AuthReadyTimeoutMs int      `mapstructure:"auth_ready_timeout_ms" yaml:"auth_ready_timeout_ms"`
	ExecPath           string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args               []string `mapstructure:"args" yaml:"args"`
}

// Timeout returns the per-test timeout as a duration.
func (b BrowserConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// BootstrapTimeout returns the deadline for the automated bootstrap.
func (b BrowserConfig) BootstrapTimeout() time.Duration {
	switch {
	case b.AuthReadyTimeoutMs > 0:
		return time.Duration(b.AuthReadyTimeoutMs) * time.Millisecond
	case b.TimeoutMs > 0:
		return time.Duration(b.TimeoutMs) * time.Millisecond
	default:
		return 30 * time.Second
	}
}

// AuthConfig controls ready-path resolution and post-login verification.
type AuthConfig struct {
	// Verify enables the readiness checks below.
	Verify         bool     `mapstructure:"verify" yaml:"verify"`
	CheckURL       string   `mapstructure:"check_url" yaml:"check_url"`
	CheckSelectors []string `mapstructure:"check_selectors" yaml:"check_selectors"`
	TimeoutMs      int      `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	PollIntervalMs int      `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// ReadyPath overrides the path derived from the target URL.
	ReadyPath string `mapstructure:"ready_path" yaml:"ready_path"`
}

func (a AuthConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (a AuthConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMs) * time.Millisecond
}

// DialogsConfig carries the CSS patterns that identify blocking UI on the target application.
type DialogsConfig struct {
	// OpenBlocking matches blocking dialogs that are currently open.
	OpenBlocking string `mapstructure:"open_blocking" yaml:"open_blocking"`
	// Blocking matches blocking dialogs regardless of their open state.
	Blocking           string `mapstructure:"blocking" yaml:"blocking"`
	Overlays           string `mapstructure:"overlays" yaml:"overlays"`
	FirstRunClose      string `mapstructure:"first_run_close" yaml:"first_run_close"`
	FirstRunCloseImage string `mapstructure:"first_run_close_image" yaml:"first_run_close_image"`
	GenericDialog      string `mapstructure:"generic_dialog" yaml:"generic_dialog"`
	OpenDialogButton   string `mapstructure:"open_dialog_button" yaml:"open_dialog_button"`
	OKText             string `mapstructure:"ok_text" yaml:"ok_text"`
	// HomePath is the path on which dismissal runs during interactive acquisition.
	HomePath  string `mapstructure:"home_path" yaml:"home_path"`
	MaxClicks int    `mapstructure:"max_clicks" yaml:"max_clicks"`
	SettleMs  int    `mapstructure:"settle_ms" yaml:"settle_ms"`
}

// GeneratorConfig configures the code-generation service.
type GeneratorConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	Model             string  `mapstructure:"model" yaml:"model"`
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature" yaml:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutMs         int     `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// ProviderGemini is the only supported generation backend.
const ProviderGemini = "gemini"

// RunnerConfig configures the external Playwright test runner.
type RunnerConfig struct {
	Command                string `mapstructure:"command" yaml:"command"`
	ScenarioTimeoutFloorMs int    `mapstructure:"scenario_timeout_floor_ms" yaml:"scenario_timeout_floor_ms"`
	Workers                int    `mapstructure:"workers" yaml:"workers"`
	// Follow streams the runner log to the console while it runs.
	Follow bool `mapstructure:"follow" yaml:"follow"`
}

// DatabaseConfig holds the optional run-ledger connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig returns a Config populated with every default.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static and always decodable.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults registers default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "regress")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Project --
	v.SetDefault("project.root", ".")
	v.SetDefault("project.storage_dir", "storage")
	v.SetDefault("project.tests_dir", "tests")
	v.SetDefault("project.cases_dir", "cases")
	v.SetDefault("project.report_dir", "playwright-report")

	// -- Target --
	v.SetDefault("target.url", "https://your-test-environment.example.com")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout_ms", 30000)
	v.SetDefault("browser.auth_ready_timeout_ms", 0)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})

	// -- Auth --
	v.SetDefault("auth.verify", false)
	v.SetDefault("auth.check_url", "")
	v.SetDefault("auth.check_selectors", []string{})
	v.SetDefault("auth.timeout_ms", 15000)
	v.SetDefault("auth.poll_interval_ms", 5000)
	v.SetDefault("auth.ready_path", "")

	// -- Dialogs --
	v.SetDefault("dialogs.open_blocking", `dialog[open][class*="ModalDialogBox"]`)
	v.SetDefault("dialogs.blocking", `dialog[class*="ModalDialogBox"]`)
	v.SetDefault("dialogs.overlays", `[class*="TapAreaOverlay"], [class*="blockingOverlay"]`)
	v.SetDefault("dialogs.first_run_close", `body > dialog[class*="ModalDialogBox"] div[class*="ContentWithBottomActions_bottomActionsContents"] > button`)
	v.SetDefault("dialogs.first_run_close_image", `body > dialog[class*="ModalDialogBox"] div[class*="ContentWithBottomActions_bottomActionsContents"] > button > img`)
	v.SetDefault("dialogs.generic_dialog", `dialog[open][class*="ModalDialogBox"]`)
	v.SetDefault("dialogs.open_dialog_button", `dialog[open] button`)
	v.SetDefault("dialogs.ok_text", "OK")
	v.SetDefault("dialogs.home_path", "/home")
	v.SetDefault("dialogs.max_clicks", 10)
	v.SetDefault("dialogs.settle_ms", 300)

	// -- Generator --
	v.SetDefault("generator.provider", ProviderGemini)
	v.SetDefault("generator.api_key", PlaceholderAPIKey)
	v.SetDefault("generator.model", "gemini-2.5-pro")
	v.SetDefault("generator.endpoint", "")
	v.SetDefault("generator.max_tokens", 4096)
	v.SetDefault("generator.temperature", 0.2)
	v.SetDefault("generator.requests_per_minute", 30)
	v.SetDefault("generator.timeout_ms", 120000)

	// -- Runner --
	v.SetDefault("runner.command", "npx")
	v.SetDefault("runner.scenario_timeout_floor_ms", 180000)
	v.SetDefault("runner.workers", 1)
	v.SetDefault("runner.follow", true)

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper unmarshals a viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values are commonly provided via the environment.
	_ = v.BindEnv("generator.api_key", "REGRESS_GENERATOR_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "REGRESS_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.TargetCfg.URL != "" {
		u, err := url.Parse(c.TargetCfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("target.url must be an absolute URL, got %q", c.TargetCfg.URL)
		}
	}
	if c.BrowserCfg.TimeoutMs <= 0 {
		return fmt.Errorf("browser.timeout_ms must be a positive integer")
	}
	if c.BrowserCfg.AuthReadyTimeoutMs < 0 {
		return fmt.Errorf("browser.auth_ready_timeout_ms must not be negative")
	}
	if err := c.AuthCfg.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if err := c.DialogsCfg.Validate(); err != nil {
		return fmt.Errorf("dialogs configuration invalid: %w", err)
	}
	if c.RunnerCfg.Workers <= 0 {
		return fmt.Errorf("runner.workers must be a positive integer")
	}
	if c.GeneratorCfg.RequestsPerMinute < 0 {
		return fmt.Errorf("generator.requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the polling policy. Condition presence is checked by the verifier.
func (a AuthConfig) Validate() error {
	if a.TimeoutMs <= 0 {
		return fmt.Errorf("auth.timeout_ms must be a positive integer")
	}
	if a.PollIntervalMs <= 0 {
		return fmt.Errorf("auth.poll_interval_ms must be a positive integer")
	}
	if a.ReadyPath != "" && !strings.HasPrefix(a.ReadyPath, "/") {
		return fmt.Errorf("auth.ready_path must start with '/'")
	}
	return nil
}

// Validate checks that the dismissal patterns are usable.
func (d DialogsConfig) Validate() error {
	if strings.TrimSpace(d.OpenBlocking) == "" || strings.TrimSpace(d.Blocking) == "" {
		return fmt.Errorf("dialogs.open_blocking and dialogs.blocking are required")
	}
	if d.MaxClicks <= 0 {
		return fmt.Errorf("dialogs.max_clicks must be a positive integer")
	}
	if d.SettleMs < 0 {
		return fmt.Errorf("dialogs.settle_ms must not be negative")
	}
	return nil
}
