// cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
)

const remedyDatabase = "set database.url in config.yaml or export REGRESS_DATABASE_URL"

type reportOptions struct {
	History bool
	Limit   int
	Format  string
	Output  string
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Open the last HTML test report",
		Long: `Opens <report_dir>/index.html from the last run in the default browser.
With --history the recent runs recorded in the run ledger are listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			if opts.History {
				return runHistory(ctx, cfg, opts, NewLedgerProvider(), logger)
			}
			return runReport(ctx, cfg, reporting.SystemOpener(runtime.GOOS), cmd.OutOrStdout(), logger)
		},
	}

	reportCmd.Flags().BoolVar(&opts.History, "history", false, "list recent runs from the run ledger")
	reportCmd.Flags().IntVar(&opts.Limit, "limit", 10, "number of runs listed with --history")
	reportCmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "history format: text or json")
	reportCmd.Flags().StringVarP(&opts.Output, "output", "o", "", "history output file (default stdout)")
	return reportCmd
}

func runReport(ctx context.Context, cfg config.Interface, open reporting.OpenFunc, out io.Writer, logger *zap.Logger) error {
	dir := cfg.Project().Resolve(cfg.Project().ReportDir)
	path, err := reporting.OpenReport(ctx, dir, open)
	if err != nil {
		return err
	}
	logger.Debug("Report opened.", zap.String("path", path))
	fmt.Fprintf(out, "Opening %s\n", path)
	return nil
}

func runHistory(ctx context.Context, cfg config.Interface, opts reportOptions, provider ledgerProvider, logger *zap.Logger) error {
	ledger, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	if ledger == nil {
		return faults.Missing("report.history", "run ledger", remedyDatabase)
	}

	runs, err := ledger.RecentRuns(ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	reporter, err := reporting.New(opts.Format, opts.Output)
	if err != nil {
		return faults.Config("report.history", "%v", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()
	return reporter.Write(runs)
}
