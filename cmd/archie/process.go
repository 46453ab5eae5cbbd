package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/archie/internal/conversation"
	"github.com/fyrsmithlabs/archie/internal/pipeline"
)

func newProcessCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the knowledge pipeline over a conversation",
		Long: `Run the knowledge pipeline over a conversation.

Every run prints its result as JSON. The command exits with status 1 when
the run failed.

Examples:
  # Process free text
  archie process text --title "DB timeouts" "The DB connection times out..."

  # Process text from stdin without publishing
  cat notes.md | archie process text --dry-run -

  # Process the last day of a Slack channel
  archie process slack --channel C0123456 --from 2025-03-03T00:00:00Z

  # Process a single Slack thread
  archie process slack --permalink https://acme.slack.com/archives/C0123456/p1700000000000100

  # Process a chat export
  archie process file export.json`,
	}
	cmd.AddCommand(newProcessTextCmd(flags))
	cmd.AddCommand(newProcessSlackCmd(flags))
	cmd.AddCommand(newProcessFileCmd(flags))
	return cmd
}

func newProcessTextCmd(flags *globalFlags) *cobra.Command {
	var (
		title  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "text <text|->",
		Short: "Process free text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				text = string(data)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			orch, err := a.pipeline(dryRun)
			if err != nil {
				return err
			}
			res, _ := orch.ProcessText(ctx, text, title, nil)
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Suggested document title")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the document without publishing")
	return cmd
}

func newProcessSlackCmd(flags *globalFlags) *cobra.Command {
	var (
		channel   string
		from      string
		to        string
		limit     int
		permalink string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Process a Slack channel or thread",
		Long: `Process Slack channel history, or a single thread when --permalink is set.

--from and --to accept RFC 3339 timestamps or YYYY-MM-DD dates. --limit keeps
the newest messages inside the window (1-100, default from configuration).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			sc := a.cfg.Source
			if channel == "" {
				channel = sc.SlackChannel
			}
			var link conversation.Permalink
			if permalink != "" {
				link, err = conversation.ParsePermalink(permalink)
				if err != nil {
					return err
				}
				channel = link.Channel
			}

			w, err := parseWindow(from, to, limit, sc.HistoryLimit)
			if err != nil {
				return err
			}

			slack, err := conversation.NewSlackSource(conversation.SlackConfig{
				Token:         sc.SlackToken.Value(),
				Channel:       channel,
				BaseURL:       sc.SlackBaseURL,
				RatePerMinute: sc.SlackRatePerMinute,
				Timeout:       sc.Timeout.Duration(),
			}, a.logger.Underlying())
			if err != nil {
				return err
			}
			var src conversation.ChatSource = slack
			if permalink != "" {
				src = conversation.NewThreadSource(slack, link)
			}

			orch, err := a.pipeline(dryRun)
			if err != nil {
				return err
			}
			res, _ := orch.ProcessChat(ctx, src, w)
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Channel ID (default from configuration)")
	cmd.Flags().StringVar(&from, "from", "", "Oldest message time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Newest message time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of top-level messages (1-100)")
	cmd.Flags().StringVar(&permalink, "permalink", "", "Process only the thread this message link points at")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the document without publishing")
	return cmd
}

func newProcessFileCmd(flags *globalFlags) *cobra.Command {
	var (
		channel string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "file <export.json>",
		Short: "Process a chat export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			src, parsed, err := conversation.NewExportSource(args[0], channel)
			if err != nil {
				return err
			}
			if parsed.ErrorCount > 0 {
				a.logger.Warn(ctx, "Skipped malformed export entries",
					zap.String("file", args[0]),
					zap.Int("skipped", parsed.ErrorCount),
					zap.Int("parsed", len(parsed.Messages)),
				)
			}

			orch, err := a.pipeline(dryRun)
			if err != nil {
				return err
			}
			res, _ := orch.ProcessChat(ctx, src, conversation.Window{})
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Channel name (default: file name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the document without publishing")
	return cmd
}

// printResult writes res as indented JSON. A failed run yields
// errRunFailed so the process exits non-zero.
func printResult(w io.Writer, res *pipeline.Result) error {
	if err := writeJSON(w, res); err != nil {
		return err
	}
	if res.Status == pipeline.StatusFailed {
		return errRunFailed
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// parseWindow builds a history window. limit 0 falls back to def.
func parseWindow(from, to string, limit, def int) (conversation.Window, error) {
	var w conversation.Window
	var err error
	if w.From, err = parseTime(from, false); err != nil {
		return w, fmt.Errorf("invalid --from: %w", err)
	}
	if w.To, err = parseTime(to, true); err != nil {
		return w, fmt.Errorf("invalid --to: %w", err)
	}
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return w, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	if limit == 0 {
		limit = def
	}
	if limit < 1 || limit > 100 {
		return w, fmt.Errorf("--limit must be 1-100, got %d", limit)
	}
	w.Limit = limit
	return w, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare --to date covers the
// whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
