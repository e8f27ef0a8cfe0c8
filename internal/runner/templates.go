// internal/runner/templates.go
package runner

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const configTemplate = `// Generated by regress before every run. Do not edit.
const { defineConfig } = require('@playwright/test');

module.exports = defineConfig({
  testDir: {{quote .TestsDir}},
  timeout: {{.TimeoutMs}},
  globalSetup: {{quote .SetupPath}},
  use: {
    baseURL: {{quote .BaseURL}},
    storageState: {{quote .SessionPath}},
    headless: {{.Headless}},
    screenshot: 'only-on-failure',
    video: 'retain-on-failure',
  },
  reporter: [
    ['html', { outputFolder: {{quote .ReportDir}}, open: 'never' }],
    ['junit', { outputFile: {{quote .JUnitPath}} }],
  ],
  workers: {{.Workers}},
});
`

// The pre-flight hands the session bootstrap back to this binary so the
// convergence logic lives in one place.
const setupTemplate = `// Generated by regress before every run. Do not edit.
const { execFileSync } = require('child_process');

module.exports = async () => {
  execFileSync({{quote .Executable}}, [
    'bootstrap',
    '--url', {{quote .BaseURL}},
    '--ready-path', {{quote .ReadyPath}},
    '--poll-interval', {{quote (duration .PollInterval)}},
    '--timeout', {{quote (duration .BootstrapTimeout)}},
    '--headless={{.Headless}}',
    '--storage-state', {{quote .SessionPath}},
{{- if .ConfigFile}}
    '--config', {{quote .ConfigFile}},
{{- end}}
  ], { stdio: 'inherit' });
};
`

var templates = template.Must(template.New("runner").Funcs(template.FuncMap{
	"quote":    quoteJS,
	"duration": func(d time.Duration) string { return d.String() },
}).Parse(`{{define "config"}}` + configTemplate + `{{end}}{{define "setup"}}` + setupTemplate + `{{end}}`))

// quoteJS renders s as a double-quoted JavaScript string literal.
func quoteJS(s string) (string, error) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// renderData is everything the two generated files need.
type renderData struct {
	TestsDir    string
	TimeoutMs   int64
	SetupPath   string
	BaseURL     string
	SessionPath string
	Headless    bool
	ReportDir   string
	JUnitPath   string
	Workers     int

	Executable       string
	ReadyPath        string
	PollInterval     time.Duration
	BootstrapTimeout time.Duration
	ConfigFile       string
}

func render(name string, data renderData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// writeRunFiles regenerates the runner configuration and its pre-flight script.
func writeRunFiles(configPath, setupPath string, data renderData) error {
	data.SetupPath = setupPath
	setup, err := render("setup", data)
	if err != nil {
		return err
	}
	cfg, err := render("config", data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(setupPath, setup, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", setupPath, err)
	}
	if err := os.WriteFile(configPath, cfg, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	return nil
}
