package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/convmem/notifier"
)

func newWatchCmd(st *state) *cobra.Command {
	var reconnectDelay, maxReconnectDelay time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print compactions and deletions committed by any process",
		Long: `Listen for PostgreSQL notifications sent by the store when a
compaction or a session deletion commits. Requires the pgx driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			be, err := openBackend(ctx, st.cfg)
			if err != nil {
				return err
			}
			defer be.close()

			if be.listener == nil {
				return errors.New("watch requires the pgx driver")
			}

			n := notifier.NewNotifier(be.listener, &notifier.Config{
				ReconnectDelay:    reconnectDelay,
				MaxReconnectDelay: maxReconnectDelay,
				OnError: func(err error) {
					st.logger.Warn("listener failed", "error", err)
				},
				OnReconnect: func() {
					st.logger.Info("listener reconnecting")
				},
			})

			out := cmd.OutOrStdout()
			n.Subscribe(notifier.EventSummarySaved, func(event *notifier.Event) {
				p, err := event.SummarySaved()
				if err != nil {
					st.logger.Warn("malformed notification", "event", event.Type, "error", err)
					return
				}
				fmt.Fprintf(out, "%s compacted session %s messages %d-%d (summary %s)\n",
					event.ReceivedAt.Format(time.TimeOnly), p.SessionID, p.FromIndex, p.ToIndex, p.SummaryID)
			})
			n.Subscribe(notifier.EventSessionDeleted, func(event *notifier.Event) {
				fmt.Fprintf(out, "%s deleted session %s\n", event.ReceivedAt.Format(time.TimeOnly), event.SessionID())
			})

			if err := n.Start(ctx); err != nil {
				return err
			}
			st.logger.Info("watching for compactions and deletions")

			<-ctx.Done()
			return n.Stop()
		},
	}

	cmd.Flags().DurationVar(&reconnectDelay, "reconnect-delay", notifier.DefaultConfig().ReconnectDelay, "initial wait before reconnecting a dropped listener")
	cmd.Flags().DurationVar(&maxReconnectDelay, "max-reconnect-delay", notifier.DefaultConfig().MaxReconnectDelay, "upper bound of the reconnect backoff")
	return cmd
}
