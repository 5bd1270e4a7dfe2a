package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/connector"
	"github.com/David-Botos/retail-ingress/pkg/pipeline"
)

// app holds what the commands share once settings are resolved
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "retail-ingress",
		Short:         "Clean retail sales data into a Postgres snapshot and report on it",
		Long:          "retail-ingress loads the customer, product and sales extracts, repairs them, replaces the Postgres snapshot in one transaction and runs the dashboard queries against it.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML settings file; keys are the environment variable names in lower case")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	a.bind(flags.Lookup("log-level"), "log_level")
	a.bind(flags.Lookup("log-format"), "log_format")

	rootCmd.AddCommand(
		newIngestCmd(a),
		newReportCmd(a),
		newVerifyCmd(a),
	)

	return rootCmd
}

// bind makes a flag a setting under the environment variable name key
func (a *app) bind(flag *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// setup resolves the settings and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return &exitError{code: 2, err: fmt.Errorf("failed to read config file: %w", err)}
		}
	}

	exportSettings(a.v)

	cfg, err := config.LoadConfig()
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	a.cfg = cfg

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	a.logger = logger

	return nil
}

// exportSettings publishes every setting viper knows about as an environment
// variable, so config.LoadConfig sees flags and the config file with viper's
// precedence: flag, then environment, then file
func exportSettings(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range v.AllKeys() {
		if !v.IsSet(key) {
			continue
		}
		envKey := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		_ = os.Setenv(envKey, v.GetString(key))
	}
}

// connectStore opens the snapshot store
func (a *app) connectStore(ctx context.Context) (*connector.PostgresConnector, error) {
	pg, err := connector.NewConnectorFactory(a.cfg, a.logger).CreatePostgresConnector(ctx)
	if err != nil {
		return nil, &exitError{code: exitCode(err), err: err}
	}
	return pg, nil
}

// exitCode maps an error to the exit status of its category
func exitCode(err error) int {
	code := pipeline.NewErrorHandler(nil).CategorizeError(err).ExitCode()
	if code == 0 {
		return 1
	}
	return code
}
