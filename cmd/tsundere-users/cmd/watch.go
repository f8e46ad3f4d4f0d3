package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/tsundere-client/internal/service/watcher"
)

var (
	// pollInterval is the delay between two directory polls.
	pollInterval time.Duration
	// ignoreUsers are never reported as joining or leaving.
	ignoreUsers []string
	// watchEvents also polls api.events.url and logs new repository events.
	watchEvents bool

	// watchCmd keeps polling the directory and logs connects and disconnects.
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Poll the directory and log users connecting or disconnecting.",
		Long: `Polls the directory service at a fixed interval and logs every user that
connected or disconnected since the previous poll.

A failed poll is logged and skipped, the previous list is kept. The directory
going offline or coming back online is logged as well. With --events the
repository events from api.events.url are polled too.
Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return watcher.Run(ctx, &watcher.Options{
				ConfigPath:   configPath,
				PollInterval: pollInterval,
				Timeout:      timeout,
				Ignore:       ignoreUsers,
				Events:       watchEvents,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	watchCmd.Flags().DurationVarP(&pollInterval, "interval", "i", watcher.DefaultPollInterval, "poll interval")
	watchCmd.Flags().StringSliceVar(&ignoreUsers, "ignore", nil, "users to leave out of reports, case-insensitive")
	watchCmd.Flags().BoolVar(&watchEvents, "events", false, "also report repository events")
}
