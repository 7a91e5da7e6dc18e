package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/response"
)

const chatHelp = `Commands:
  /status   live tokens against the compaction threshold
  /summary  latest session summary
  /exit     leave the chat`

func newChatCmd(st *state) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a session from the terminal",
		Long: `Start a line-based chat. Each line is one turn: the session is
compacted when its live tokens exceed the threshold, the query is analyzed
against recent messages and the summary, and the reply is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd.Context(), st, func(p *convmem.Pipeline, _ *backend) error {
				session := p.NewSession()
				if sessionID != "" {
					session = p.Session(sessionID)
				}
				return runChat(cmd.Context(), session, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to resume (default: a new session)")
	return cmd
}

func runChat(ctx context.Context, session *convmem.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "session %s (type /help for commands)\n", session.ID())

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "/status":
			if err := printStatus(ctx, session, out); err != nil {
				return err
			}
			continue
		case "/summary":
			if err := printSummary(ctx, session, out); err != nil {
				return err
			}
			continue
		}

		result, err := session.Turn(ctx, line)
		if err != nil {
			if errors.Is(err, convmem.ErrGeneration) {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			return err
		}

		if result.Compacted() {
			r := result.Compaction.MessageRangeSummarized
			fmt.Fprintf(out, "[compacted messages %d-%d]\n", r.FromIndex, r.ToIndex)
		}
		if result.Branch == response.BranchBestEffort && result.Understanding != nil && result.Understanding.Rewritten() != "" && result.Understanding.Rewritten() != line {
			fmt.Fprintf(out, "[understood as: %s]\n", result.Understanding.Rewritten())
		}
		fmt.Fprintln(out, result.Response)
	}
}

func printStatus(ctx context.Context, session *convmem.Session, out io.Writer) error {
	status, err := session.ContextStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d / %d tokens (%.1f%%), %d live messages, %d summaries\n",
		status.LiveTokens, status.Threshold, status.Percent, status.LiveMessages, status.SummaryCount)
	return nil
}

func printSummary(ctx context.Context, session *convmem.Session, out io.Writer) error {
	latest, err := session.LatestSummary(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Fprintln(out, "no summary yet")
		return nil
	}
	r := latest.MessageRangeSummarized
	fmt.Fprintf(out, "messages %d-%d\n%s\n", r.FromIndex, r.ToIndex, latest.SessionSummary.Render(0))
	return nil
}
