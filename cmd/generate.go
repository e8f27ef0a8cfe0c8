// cmd/generate.go
package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/generator"
	"github.com/xkilldash9x/regress-cli/internal/llmclient"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
	"github.com/xkilldash9x/regress-cli/internal/runner"
	"github.com/xkilldash9x/regress-cli/internal/testcases"
)

type generateOptions struct {
	CasesPath   string
	Only        string
	CatalogPath string
}

// codegenFactory builds the generation backend; tests substitute a mock.
type codegenFactory func(ctx context.Context, cfg config.GeneratorConfig, logger *zap.Logger) (schemas.CodeGenerator, error)

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	generateCmd := &cobra.Command{
		Use:   "generate <cases.csv|cases.xlsx>",
		Short: "Generate one test script per test case",
		Long: `Reads test cases from a CSV or XLSX file and asks the generation service for
one Playwright script per case, written to <tests_dir>/<id>.spec.ts. A failing
case does not stop the others.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := requireConfig(ctx)
			if err != nil {
				return err
			}
			opts.CasesPath = args[0]
			return runGenerate(ctx, cfg, opts, llmclient.NewClient, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	generateCmd.Flags().StringVar(&opts.Only, "only", "", "comma separated test ids to generate")
	generateCmd.Flags().StringVar(&opts.CatalogPath, "catalog", "", "selector catalog JSON used as hints")
	return generateCmd
}

func runGenerate(ctx context.Context, cfg config.Interface, opts generateOptions, newCodegen codegenFactory, out io.Writer, logger *zap.Logger) error {
	if _, err := requireSession(cfg, "generate.session"); err != nil {
		return err
	}

	cases, err := testcases.Load(resolveCasesPath(cfg, opts.CasesPath), runner.ParseIDList(opts.Only))
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		reporting.NewConsole(out).Generation(nil)
		return nil
	}

	var genOpts []generator.Option
	if opts.CatalogPath != "" {
		catalog, err := generator.LoadCatalog(opts.CatalogPath)
		if err != nil {
			return err
		}
		genOpts = append(genOpts, generator.WithCatalog(catalog))
	}

	codegen, err := newCodegen(ctx, cfg.Generator(), logger)
	if err != nil {
		return err
	}

	testsDir := cfg.Project().Resolve(cfg.Project().TestsDir)
	logger.Info("Generating tests.", zap.Int("cases", len(cases)), zap.String("tests_dir", testsDir))
	results, err := generator.New(codegen, testsDir, cfg.Target().URL, logger, genOpts...).Generate(ctx, cases)
	reporting.NewConsole(out).Generation(results)
	if err != nil {
		return err
	}
	if generator.Succeeded(results) == 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

// resolveCasesPath falls back to the project's cases directory for bare file names.
func resolveCasesPath(cfg config.Interface, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return path
	}
	candidate := filepath.Join(cfg.Project().Resolve(cfg.Project().CasesDir), path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}
