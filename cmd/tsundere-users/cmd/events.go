package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tsundere-client/internal/service/lister"
)

// eventsCmd prints the recent repository events once.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the recent repository events.",
	Long: `Sends one authenticated GET to api.events.url and prints the repository
events the server reports, oldest first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return lister.RunEvents(ctx, &lister.Options{
			ConfigPath: configPath,
			Format:     outputFormat,
			Timeout:    timeout,
			Output:     cmd.OutOrStdout(),
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	eventsCmd.Flags().StringVarP(&outputFormat, "output", "o", lister.FormatText, "output format: text, json, yaml")
}
