package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/maintenance"
	"github.com/youssefsiam38/convmem/ui/service"
)

func newSessionsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, inspect, export and delete sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(st),
		newSessionsStatsCmd(st),
		newSessionsDeleteCmd(st),
		newSessionsExportCmd(st),
		newSessionsPruneCmd(st),
	)
	return cmd
}

func newSessionsListCmd(st *state) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				list, err := service.New(p).ListSessions(cmd.Context(), service.SessionListParams{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tMESSAGES\tLAST ACTIVE")
				for _, s := range list.Sessions {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", s.ID, s.MessageCount, s.LastMessageAt.Local().Format(time.DateTime))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if list.HasMore {
					fmt.Fprintf(cmd.OutOrStdout(), "%d of %d sessions shown\n", len(list.Sessions), list.TotalCount)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", service.DefaultPageLimit, "maximum sessions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "sessions to skip")
	return cmd
}

func newSessionsStatsCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <session-id>",
		Short: "Show message, summary and token counters of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				detail, err := service.New(p).GetSessionDetail(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "Session\t%s\n", args[0])
				fmt.Fprintf(tw, "Messages\t%d (%d archived)\n", detail.Stats.MessageCount, detail.Stats.ArchivedCount)
				fmt.Fprintf(tw, "Summaries\t%d\n", detail.Stats.SummaryCount)
				fmt.Fprintf(tw, "Total tokens\t%d\n", detail.Stats.TotalTokens)
				fmt.Fprintf(tw, "Live tokens\t%d / %d (%.1f%%)\n", detail.Context.LiveTokens, detail.Context.Threshold, detail.Context.Percent)
				if err := tw.Flush(); err != nil {
					return err
				}
				if detail.LatestSummary != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", detail.LatestSummary.SessionSummary.Render(0))
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session with all its messages and summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				if err := service.New(p).DeleteSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionsExportCmd(st *state) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session transcript as JSONL or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := service.ContentType(format); err != nil {
				return fmt.Errorf("%w: %q", err, format)
			}

			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				t, err := service.New(p).LoadTranscript(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create output: %w", err)
					}
					defer f.Close()
					w = f
				}
				return service.WriteTranscript(w, t, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", service.FormatJSONL, "export format: jsonl or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newSessionsPruneCmd(st *state) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions idle for longer than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				cleanup := maintenance.NewCleanup(p, &maintenance.CleanupConfig{
					MaxIdle:   olderThan,
					BatchSize: math.MaxInt,
					DryRun:    dryRun,
				})
				result := cleanup.RunOnce(cmd.Context())
				verb := "deleted"
				if dryRun {
					verb = "would delete"
				}
				for _, id := range result.SessionsExpired {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
				}
				return errors.Join(result.Errors...)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "idle duration after which a session is deleted")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the sessions that would be deleted without deleting them")
	return cmd
}
