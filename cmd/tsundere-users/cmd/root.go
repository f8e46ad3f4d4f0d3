package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/tsundere-client/internal/config"
	"github.com/oshokin/tsundere-client/internal/logger"
	"github.com/oshokin/tsundere-client/internal/service/lister"
	"github.com/oshokin/tsundere-client/internal/version"
)

var errUnknownLogLevel = errors.New("unknown log level")

var (
	// configPath stores the path to the properties file.
	configPath string
	// outputFormat selects how the user list is printed.
	outputFormat string
	// timeout overrides api.timeout from the properties file.
	timeout time.Duration
	// logLevel is the minimum level of diagnostics written to stderr.
	logLevel string

	// rootCmd lists the users currently connected to the directory.
	rootCmd = &cobra.Command{
		Use:   "tsundere-users",
		Short: "List users connected to the Ghidra directory service.",
		Long: `Reads tsundere.properties (api.url, x.passphrase, username), sends one
authenticated GET to the directory service and prints the connected users.

Diagnostics are written to stderr, the list itself to stdout.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		PersistentPreRunE: applyLogLevel,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return lister.Run(ctx, &lister.Options{
				ConfigPath: configPath,
				Format:     outputFormat,
				Timeout:    timeout,
				Output:     cmd.OutOrStdout(),
			})
		},
	}
)

// Execute runs the tsundere-users CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func applyLogLevel(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to properties file")
	flags.DurationVarP(&timeout, "timeout", "t", 0, "request timeout, overrides api.timeout")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", lister.FormatText, "output format: text, json, yaml")

	rootCmd.AddCommand(watchCmd, eventsCmd)
}
