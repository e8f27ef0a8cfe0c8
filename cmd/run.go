// cmd/run.go
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
	"github.com/xkilldash9x/regress-cli/internal/runner"
	"github.com/xkilldash9x/regress-cli/internal/session"
)

type runFlags struct {
	From     string
	Scenario bool
	Follow   bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	runCmd := &cobra.Command{
		Use:   "run [ids...]",
		Short: "Run generated tests",
		Long: `Runs generated tests through Playwright. Without arguments every test runs in
natural id order. Ids (space or comma separated) run only those tests in the
given order. --from runs a test and every test after it. --scenario shares one
browser session across the selected tests and fails if any id is unknown.`,
		Example: `  regress run
  regress run 3 1
  regress run --from 12
  regress run --scenario 3,1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := requireConfig(ctx)
			if err != nil {
				return err
			}
			sel := selectionFrom(flags, args)

			opts := runner.OptionsFromConfig(cfg)
			if cmd.Flags().Changed("follow") {
				opts.Follow = flags.Follow
			}
			opts.Output = cmd.OutOrStdout()
			if exe, err := os.Executable(); err == nil {
				opts.Executable = exe
			} else {
				opts.Executable = "regress"
			}
			if used := configFileFromContext(ctx); used != "" {
				if abs, err := filepath.Abs(used); err == nil {
					used = abs
				}
				opts.ConfigFile = used
			}
			return runRun(ctx, cfg, sel, opts, NewLedgerProvider(), cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	runCmd.Flags().StringVar(&flags.From, "from", "", "run this test and every test after it")
	runCmd.Flags().BoolVar(&flags.Scenario, "scenario", false, "run the selected tests in order in one shared browser session")
	runCmd.Flags().BoolVar(&flags.Follow, "follow", true, "stream the runner output while it runs")
	return runCmd
}

// selectionFrom maps flags and arguments onto a selection.
func selectionFrom(flags runFlags, args []string) runner.Selection {
	var ids []string
	for _, a := range args {
		ids = append(ids, runner.ParseIDList(a)...)
	}
	switch {
	case flags.From != "":
		return runner.Selection{Mode: schemas.RunModeFrom, From: flags.From, IDs: ids}
	case flags.Scenario:
		return runner.Selection{Mode: schemas.RunModeScenario, IDs: ids}
	case len(ids) > 0:
		return runner.Selection{Mode: schemas.RunModeExplicit, IDs: ids}
	default:
		return runner.Selection{Mode: schemas.RunModeAll}
	}
}

func runRun(ctx context.Context, cfg config.Interface, sel runner.Selection, opts runner.Options, provider ledgerProvider, out io.Writer, logger *zap.Logger, extra ...runner.Option) error {
	store, err := requireSession(cfg, "run.session")
	if err != nil {
		return err
	}
	if err := sel.Validate(); err != nil {
		return err
	}
	warnIfStale(store, out, logger)

	ledger, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		// The ledger is optional bookkeeping; the batch still runs.
		logger.Warn("Run ledger unavailable.", zap.Error(err))
	}
	if cleanup != nil {
		defer cleanup()
	}

	driverOpts := extra
	if ledger != nil {
		driverOpts = append([]runner.Option{runner.WithLedger(ledger)}, extra...)
	}
	res, err := runner.NewDriver(opts, logger, driverOpts...).Run(ctx, sel)
	if err != nil {
		return err
	}

	reporting.NewConsole(out).Run(res)
	if res.ExitCode != 0 {
		logger.Info("Test batch failed.", zap.String("run_id", res.RunID), zap.Int("exit_code", res.ExitCode))
		return &ExitError{Code: res.ExitCode}
	}
	return nil
}

// warnIfStale flags expired credentials before a batch is spent on them. The
// pre-flight bootstrap still decides whether the session works.
func warnIfStale(store *session.Store, out io.Writer, logger *zap.Logger) {
	state, err := store.Load()
	if err != nil {
		logger.Debug("Could not inspect stored session.", zap.Error(err))
		return
	}
	now := time.Now()
	if sum := session.Inspect(state, now); sum.Stale(now) {
		logger.Warn("Stored session has expired credentials.", zap.Int("expired_cookies", sum.ExpiredCookies))
		reporting.NewConsole(out).StaleSession()
	}
}
