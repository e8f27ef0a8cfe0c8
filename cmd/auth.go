// cmd/auth.go
package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/acquire"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/dialogs"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/poll"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
	"github.com/xkilldash9x/regress-cli/internal/session"
	"github.com/xkilldash9x/regress-cli/internal/verify"
)

// authFlags are per-invocation overrides of the auth section.
type authFlags struct {
	CheckURL       string
	CheckSelectors []string
	Timeout        time.Duration
	PollInterval   time.Duration
	ReadyPath      string
	SkipCheck      bool
}

// authDeps are the collaborators of an interactive cycle.
type authDeps struct {
	Launcher acquire.Launcher
	Input    io.Reader
	Now      func() time.Time
}

func newAuthCmd() *cobra.Command {
	var flags authFlags

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Log in manually and save the session for later runs",
		Long: `Opens a browser on target.url and waits while you log in. After you press
Enter the ready path is polled, the optional verification checks run, blocking
dialogs on the home page are dismissed and the session is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := requireConfig(ctx)
			if err != nil {
				return err
			}
			applyAuthFlags(cmd.Flags(), cfg, flags)

			logger := observability.GetLogger()
			deps := authDeps{
				Launcher: acquire.ChromeLauncher{Config: cfg.Browser(), Logger: logger},
				Input:    os.Stdin,
				Now:      time.Now,
			}
			return runAuth(ctx, cfg, deps, cmd.OutOrStdout(), logger)
		},
	}

	bindAuthFlags(authCmd.Flags(), &flags)
	return authCmd
}

func bindAuthFlags(f *pflag.FlagSet, flags *authFlags) {
	f.StringVar(&flags.CheckURL, "check-url", "", "URL substring that must appear after login (enables verification)")
	f.StringSliceVar(&flags.CheckSelectors, "check-selector", nil, "selector that must be visible after login, repeatable (enables verification)")
	f.DurationVar(&flags.Timeout, "timeout", 0, "verification and ready-path timeout (default from auth.timeout_ms)")
	f.DurationVar(&flags.PollInterval, "poll-interval", 0, "interval between readiness checks (default from auth.poll_interval_ms)")
	f.StringVar(&flags.ReadyPath, "ready-path", "", "path that marks a completed login (default: path of target.url)")
	f.BoolVar(&flags.SkipCheck, "skip-check", false, "skip post-login verification")
}

// applyAuthFlags folds explicitly set flags into the auth configuration.
func applyAuthFlags(f *pflag.FlagSet, cfg config.Interface, flags authFlags) {
	a := cfg.Auth()
	changed := f.Changed
	if changed("check-url") {
		a.CheckURL = flags.CheckURL
		a.Verify = true
	}
	if changed("check-selector") {
		a.CheckSelectors = flags.CheckSelectors
		a.Verify = true
	}
	if changed("timeout") && flags.Timeout > 0 {
		a.TimeoutMs = int(flags.Timeout / time.Millisecond)
	}
	if changed("poll-interval") && flags.PollInterval > 0 {
		a.PollIntervalMs = int(flags.PollInterval / time.Millisecond)
	}
	if changed("ready-path") {
		a.ReadyPath = flags.ReadyPath
	}
	if flags.SkipCheck {
		a.Verify = false
	}
	cfg.SetAuthConfig(a)
}

func runAuth(ctx context.Context, cfg config.Interface, deps authDeps, out io.Writer, logger *zap.Logger) error {
	a := cfg.Auth()
	verifier := verify.New(verify.OptionsFromConfig(a), logger)
	// Configuration errors surface before the browser starts.
	if verifier.Options().Enabled && !verifier.HasChecks() {
		return verifier.Verify(ctx, nil)
	}

	target := cfg.Target().URL
	opts := acquire.InteractiveOptions{
		TargetURL:    target,
		ExpectedPath: acquire.ResolveExpectedPath(a.ReadyPath, target),
		Policy:       poll.Policy{Timeout: a.Timeout(), Interval: a.PollInterval()},
		Input:        deps.Input,
		Prompt:       out,
	}
	logger.Info("Starting interactive login.",
		zap.String("target", target),
		zap.String("ready_path", opts.ExpectedPath),
		zap.Bool("verify", verifier.Options().Enabled),
	)

	store := session.NewStore(cfg.Project().SessionPath())
	engine := dialogs.NewEngine(cfg.Dialogs(), logger)
	flow := acquire.NewInteractive(deps.Launcher, store, verifier, engine, opts, logger)

	res, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	reporting.NewConsole(out).Acquired(res, deps.Now())
	return nil
}
