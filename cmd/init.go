// cmd/init.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/observability"
)

const scenarioHelperName = "scenario-state.ts"

const scenarioHelper = `// Scaffolded by regress init. Shares values between the tests of one scenario run.
import * as fs from 'fs';

const statePath = process.env.REGRESS_SCENARIO_STATE;
const memory: Record<string, unknown> = {};

function read(): Record<string, unknown> {
  if (!statePath) return memory;
  try {
    const raw = fs.readFileSync(statePath, 'utf-8');
    return raw.trim() === '' ? {} : JSON.parse(raw);
  } catch {
    return {};
  }
}

export function getState<T = unknown>(key: string): T | undefined {
  return read()[key] as T | undefined;
}

export function setState(key: string, value: unknown): void {
  if (!key) throw new Error('scenario state key must not be empty');
  const state = read();
  state[key] = value;
  if (statePath) {
    fs.writeFileSync(statePath, JSON.stringify(state, null, 2));
  }
}
`

const sampleCases = "テストID,テスト目的,前提条件,期待結果\n1,Home page loads after login,Logged in,The home dashboard is shown\n"

// installFunc installs the runner's browser.
type installFunc func(ctx context.Context, command string, out io.Writer) error

type initOptions struct {
	Dir          string
	SkipBrowsers bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold config.yaml and the project directories",
		Long: `Creates config.yaml with every default, the storage, tests and cases
directories, the scenario state helper and a sample test-case file. Existing
files are never overwritten. Unless --skip-browsers is given, the runner's
Chromium build is installed.`,
		Args: cobra.NoArgs,
		// init must work before any configuration exists.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			observability.InitializeLogger(config.NewDefaultConfig().Logger())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, cmd.OutOrStdout(), observability.GetLogger(), installBrowsers)
		},
	}

	initCmd.Flags().StringVar(&opts.Dir, "dir", ".", "project directory to initialize")
	initCmd.Flags().BoolVar(&opts.SkipBrowsers, "skip-browsers", false, "do not install the runner's browser")
	return initCmd
}

func runInit(ctx context.Context, opts initOptions, out io.Writer, logger *zap.Logger, install installFunc) error {
	cfg := config.NewDefaultConfig()
	cfg.ProjectCfg.Root = opts.Dir
	project := cfg.Project()

	configPath := filepath.Join(opts.Dir, defaultConfigName)
	// The scaffolded file keeps the project root relative to itself.
	scaffold := *cfg
	scaffold.ProjectCfg.Root = "."
	data, err := yaml.Marshal(&scaffold)
	if err != nil {
		return fmt.Errorf("failed to render default configuration: %w", err)
	}
	created, err := writeIfAbsent(configPath, data)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "✓ created %s\n", configPath)
	} else {
		fmt.Fprintf(out, "%s already exists, left unchanged\n", configPath)
	}

	for _, dir := range []string{project.StorageDir, project.TestsDir, project.CasesDir} {
		if err := os.MkdirAll(project.Resolve(dir), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	fmt.Fprintln(out, "✓ created storage, tests and cases directories")

	scaffolds := map[string]string{
		filepath.Join(project.Resolve(project.TestsDir), scenarioHelperName): scenarioHelper,
		filepath.Join(project.Resolve(project.CasesDir), "sample.csv"):       sampleCases,
	}
	for path, content := range scaffolds {
		if _, err := writeIfAbsent(path, []byte(content)); err != nil {
			return err
		}
	}

	if !opts.SkipBrowsers {
		if err := install(ctx, cfg.Runner().Command, out); err != nil {
			// The tool still works once the operator installs the browser manually.
			logger.Warn("Browser installation failed.", zap.Error(err))
			fmt.Fprintln(out, "⚠ skipped browser installation; run `npx playwright install chromium` manually")
		} else {
			fmt.Fprintln(out, "✓ installed the runner's Chromium")
		}
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Set target.url and generator.api_key in config.yaml (or export REGRESS_GENERATOR_API_KEY)")
	fmt.Fprintln(out, "2. Run `regress auth` to capture a logged-in session")
	return nil
}

// writeIfAbsent creates path with data unless it already exists.
func writeIfAbsent(path string, data []byte) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, f.Close()
}

func installBrowsers(ctx context.Context, command string, out io.Writer) error {
	c := exec.CommandContext(ctx, command, "playwright", "install", "chromium")
	c.Stdout = out
	c.Stderr = out
	return c.Run()
}
