// cmd/bootstrap.go
package cmd

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/acquire"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/dialogs"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
	"github.com/xkilldash9x/regress-cli/internal/session"
)

// bootstrapFlags mirror acquire.BootstrapParams; the runner's pre-flight script passes all of them.
type bootstrapFlags struct {
	URL          string
	ReadyPath    string
	PollInterval time.Duration
	Timeout      time.Duration
	Headless     bool
	StatePath    string
}

func newBootstrapCmd() *cobra.Command {
	var flags bootstrapFlags

	bootstrapCmd := &cobra.Command{
		Use:    "bootstrap",
		Short:  "Re-validate the saved session before a test batch",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			params := bootstrapParams(cfg, flags)
			logger := observability.GetLogger()
			launcher := acquire.ChromeLauncher{Config: cfg.Browser(), Logger: logger}
			return runBootstrap(ctx, cfg, params, launcher, cmd.OutOrStdout(), logger)
		},
	}

	f := bootstrapCmd.Flags()
	f.StringVar(&flags.URL, "url", "", "target URL (default from target.url)")
	f.StringVar(&flags.ReadyPath, "ready-path", "", "path that marks a live session")
	f.DurationVar(&flags.PollInterval, "poll-interval", 5*time.Second, "interval between ready-path checks")
	f.DurationVar(&flags.Timeout, "timeout", 0, "overall deadline (default from browser.auth_ready_timeout_ms)")
	f.BoolVar(&flags.Headless, "headless", true, "run the browser headless")
	f.StringVar(&flags.StatePath, "storage-state", "", "session snapshot path (default <storage_dir>/auth.json)")
	return bootstrapCmd
}

// bootstrapParams fills unset flags from the configuration.
func bootstrapParams(cfg config.Interface, flags bootstrapFlags) acquire.BootstrapParams {
	p := acquire.BootstrapParams{
		TargetURL:    flags.URL,
		ReadyPath:    flags.ReadyPath,
		PollInterval: flags.PollInterval,
		Timeout:      flags.Timeout,
		Headless:     flags.Headless,
		StatePath:    flags.StatePath,
	}
	if p.TargetURL == "" {
		p.TargetURL = cfg.Target().URL
	}
	if p.ReadyPath == "" {
		p.ReadyPath = acquire.ResolveExpectedPath(cfg.Auth().ReadyPath, p.TargetURL)
	}
	if p.Timeout <= 0 {
		p.Timeout = cfg.Browser().BootstrapTimeout()
	}
	if p.StatePath == "" {
		p.StatePath = cfg.Project().SessionPath()
	}
	return p
}

func runBootstrap(ctx context.Context, cfg config.Interface, params acquire.BootstrapParams, launcher acquire.Launcher, out io.Writer, logger *zap.Logger) error {
	store := session.NewStore(params.StatePath)
	engine := dialogs.NewEngine(cfg.Dialogs(), logger)

	res, err := acquire.NewBootstrap(launcher, store, engine, params, logger).Run(ctx)
	if faults.Is(err, faults.KindMissing) {
		// A missing session must still fail the runner's pre-flight step.
		reporting.NewConsole(out).Remedy(err)
		return &ExitError{Code: 1}
	}
	if err != nil {
		return err
	}
	logger.Info("Session bootstrapped.", zap.String("url", res.FinalURL), zap.String("path", res.StorePath))
	_, err = io.WriteString(out, "✓ session ready at "+res.FinalURL+"\n")
	return err
}
