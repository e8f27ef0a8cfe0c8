// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
)

type contextKey string

const (
	configKey     contextKey = "config"
	configFileKey contextKey = "configFile"

	defaultConfigName = "config.yaml"
	envPrefix         = "REGRESS"
	remedyInit        = "run `regress init` to create config.yaml"
)

// ExitError carries a process exit status that is not itself a failure to report.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// NewRootCommand builds a fresh command tree, so each invocation starts without leftover flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "regress",
		Short:         "Generate and run browser regression tests against an authenticated web application.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			used, err := initializeConfig(v, cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "regress"})
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "regress"})
				return faults.Config("config.load", "%v", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting regress", zap.String("version", Version), zap.String("config", used))

			ctx := context.WithValue(cmd.Context(), configKey, config.Interface(cfg))
			ctx = context.WithValue(ctx, configFileKey, used)
			cmd.SetContext(ctx)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newInitCmd(),
		newAuthCmd(),
		newBootstrapCmd(),
		newGenerateCmd(),
		newRunCmd(),
		newReportCmd(),
	)
	return rootCmd
}

// Execute runs the command tree. Resource-missing errors are reported with
// their remediation and treated as a clean return.
func Execute(ctx context.Context) error {
	return execute(ctx, NewRootCommand(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) error {
	defer observability.Sync()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var ee *ExitError
	switch {
	case errors.As(err, &ee):
		return err
	case faults.Is(err, faults.KindMissing):
		reporting.NewConsole(stderr).Remedy(err)
		return nil
	case errors.Is(err, context.Canceled):
		observability.GetLogger().Info("Command cancelled.")
		return err
	}

	observability.GetLogger().Error("Command execution failed", zap.Error(err), zap.String("kind", faults.KindOf(err).String()))
	fmt.Fprintln(stderr, "Error:", err)
	return err
}

// initializeConfig reads config.yaml (or the --config file) and the environment.
// It returns the config file actually used, or "" when none was found.
func initializeConfig(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(defaultConfigName, filepath.Ext(defaultConfigName)))
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		switch {
		case missing && cfgFile != "":
			return "", faults.Missing("config.load", cfgFile, remedyInit)
		case missing:
			return "", nil
		}
		return "", faults.Config("config.load", "error reading config file: %v", err)
	}
	return v.ConfigFileUsed(), nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded; the root command must run first")
	}
	return cfg, nil
}

// requireConfig additionally insists that a config file exists on disk.
func requireConfig(ctx context.Context) (config.Interface, error) {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if used, _ := ctx.Value(configFileKey).(string); used == "" {
		return nil, faults.Missing("config.load", defaultConfigName, remedyInit)
	}
	return cfg, nil
}

// configFileFromContext is the config file loaded for this invocation, if any.
func configFileFromContext(ctx context.Context) string {
	used, _ := ctx.Value(configFileKey).(string)
	return used
}
