package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	BatchID  string // optional - filter to one batch
	Pending  bool   // only dispatches still waiting for a reply
	Limit    int
}

// TraceEvent represents a single event in the relay log timeline.
type TraceEvent struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"` // "dispatch" or "reply"
	ID         string          `json:"id"`
	BatchID    string          `json:"batch_id"`
	DispatchID string          `json:"dispatch_id,omitempty"`
	Sender     string          `json:"sender,omitempty"`
	HostChain  string          `json:"host_chain,omitempty"`
	TypeURLs   []string        `json:"type_urls,omitempty"`
	Funds      []ir.Coin       `json:"funds,omitempty"`
	ReplyToken uint64          `json:"reply_token,omitempty"`
	Action     string          `json:"action,omitempty"`
	Outcome    string          `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
	Call       json.RawMessage `json:"call,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Dispatches  int `json:"dispatches"`
	Replies     int `json:"replies"`
	Failed      int `json:"failed"`
	Pending     int `json:"pending"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the dispatch and reply log",
		Long: `Show the relay log: every outer call dispatched and every reply
received, merged into one timeline ordered by seq.

The output includes:
- Timeline: dispatches with their inner type URLs, replies with their outcome
- Stats: dispatch, reply, failure and pending counts

Examples:
  usb trace --db ./usb.db
  usb trace --db ./usb.db --batch 0192f6c1-...
  usb trace --db ./usb.db --pending --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "filter to one batch ID")
	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only dispatches still waiting for a reply")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many dispatches (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read relay log", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTrace reads the log and merges dispatches and replies by seq.
func buildTrace(ctx context.Context, st *store.Store, opts *TraceOptions) (TraceResult, error) {
	var (
		dispatches []ir.Dispatch
		err        error
	)
	if opts.Pending {
		dispatches, err = st.PendingDispatches(ctx)
	} else {
		dispatches, err = st.ListDispatches(ctx, opts.Limit)
	}
	if err != nil {
		return TraceResult{}, err
	}
	pending, err := st.PendingDispatches(ctx)
	if err != nil {
		return TraceResult{}, err
	}
	replies, err := st.ListReplies(ctx)
	if err != nil {
		return TraceResult{}, err
	}

	if opts.BatchID != "" {
		dispatches = lo.Filter(dispatches, func(d ir.Dispatch, _ int) bool {
			return d.BatchID == opts.BatchID
		})
	}
	batchOf := lo.SliceToMap(dispatches, func(d ir.Dispatch) (string, string) {
		return d.ID, d.BatchID
	})

	timeline := make([]TraceEvent, 0, len(dispatches)*2)
	for _, d := range dispatches {
		timeline = append(timeline, TraceEvent{
			Seq:        d.Seq,
			Type:       "dispatch",
			ID:         d.ID,
			BatchID:    d.BatchID,
			Sender:     d.Sender,
			HostChain:  d.HostChain,
			TypeURLs:   d.TypeURLs,
			Funds:      d.Funds,
			ReplyToken: d.ReplyToken,
			Call:       json.RawMessage(d.Call),
		})
	}

	// Replies without a dispatch row (instantiate) only show in the full log.
	unfiltered := opts.BatchID == "" && !opts.Pending && opts.Limit <= 0

	stats := TraceStats{Dispatches: len(dispatches)}
	for _, r := range replies {
		batchID, ok := batchOf[r.DispatchID]
		if !ok && !unfiltered {
			continue
		}
		event := TraceEvent{
			Seq:        r.Seq,
			Type:       "reply",
			ID:         r.ID,
			BatchID:    batchID,
			DispatchID: r.DispatchID,
			Outcome:    r.Outcome,
			Error:      r.Error,
		}
		if r.Token != 0 {
			event.Action = reply.Token(r.Token).Action()
		}
		if !r.Succeeded() {
			stats.Failed++
		}
		stats.Replies++
		timeline = append(timeline, event)
	}

	slices.SortStableFunc(timeline, func(a, b TraceEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	stats.TotalEvents = len(timeline)
	stats.Pending = lo.CountBy(pending, func(d ir.Dispatch) bool {
		_, shown := batchOf[d.ID]
		return shown
	})
	return TraceResult{Timeline: timeline, Stats: stats}, nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Dispatches:   %d\n", result.Stats.Dispatches)
	fmt.Fprintf(w, "  Replies:      %d\n", result.Stats.Replies)
	fmt.Fprintf(w, "  Failed:       %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Pending:      %d\n", result.Stats.Pending)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "dispatch":
		fmt.Fprintf(w, "  [%d] DISPATCH %s -> %s (%d msg, token %d)\n",
			event.Seq, event.BatchID, event.HostChain, len(event.TypeURLs), event.ReplyToken)
		if verbose {
			for _, u := range event.TypeURLs {
				fmt.Fprintf(w, "       %s\n", u)
			}
			if len(event.Funds) > 0 {
				fmt.Fprintf(w, "       Funds: %s\n", formatFunds(event.Funds))
			}
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}

	case "reply":
		line := fmt.Sprintf("  [%d] REPLY %s %s", event.Seq, cmp.Or(event.BatchID, event.DispatchID), event.Outcome)
		if event.Action != "" {
			line += " " + event.Action
		}
		if event.Error != "" {
			line += " (" + event.Error + ")"
		}
		fmt.Fprintln(w, line)
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}
	}
}

// formatFunds renders coins as "<amount><denom>" joined by commas.
func formatFunds(funds []ir.Coin) string {
	return strings.Join(lo.Map(funds, func(c ir.Coin, _ int) string {
		return c.Amount + c.Denom
	}), ",")
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
