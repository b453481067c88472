package cli

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/jackal"
	"github.com/bitsong/usb/internal/relay"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Database  string
	Sender    string
	Funds     []string
	HostChain string
	WithReply bool
	Timeout   time.Duration
}

// SendResult describes a submitted batch.
type SendResult struct {
	BatchID    string   `json:"batch_id"`
	DispatchID string   `json:"dispatch_id"`
	HostChain  string   `json:"host_chain"`
	TypeURLs   []string `json:"type_urls"`
	ReplyToken uint64   `json:"reply_token"`
	Action     string   `json:"action,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// String renders the result for text output.
func (r SendResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s dispatched to %s\n", r.BatchID, r.HostChain)
	fmt.Fprintf(&b, "  dispatch: %s\n", r.DispatchID)
	for i, u := range r.TypeURLs {
		fmt.Fprintf(&b, "  [%d] %s\n", i, u)
	}
	if r.Outcome != "" {
		fmt.Fprintf(&b, "  reply: %s", r.Outcome)
		if r.Action != "" {
			fmt.Fprintf(&b, " %s", r.Action)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <batch-file>",
		Short: "Encode a command batch and dispatch it",
		Long: `Encode a batch of storage commands and dispatch it as one outer call.

The batch file is a JSON or YAML list of externally tagged commands:

  - post_key: {key: "pubkey"}
  - make_root: {editors: "", viewers: "", tracking_number: "tn-1"}

Every command is encoded before anything is dispatched, so one bad
command rejects the whole batch. With --with-reply the command waits for
the completion notification and exits 1 on a failed outer call.

Examples:
  usb send batch.yaml --sender bitsong1alice
  usb send batch.json --sender bitsong1alice --funds 1000ubtsg --with-reply
  usb send batch.yaml --sender bitsong1alice --host-chain archway --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to db_path from config)")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "address issuing the batch (required)")
	_ = cmd.MarkFlagRequired("sender")
	cmd.Flags().StringSliceVar(&opts.Funds, "funds", nil, "coins attached to the outer call, e.g. 1000ubtsg")
	cmd.Flags().StringVar(&opts.HostChain, "host-chain", "", "destination chain (defaults to host_chain from config)")
	cmd.Flags().BoolVar(&opts.WithReply, "with-reply", false, "request and wait for the completion notification")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for the reply")

	return cmd
}

func runSend(opts *SendOptions, batchFile string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	cmds, err := jackal.LoadBatchFile(batchFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}
	funds, err := parseCoins(opts.Funds)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --funds", err)
	}

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stack, err := openStack(cfg, stackOptions{Database: opts.Database})
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.start(ctx); err != nil {
		return err
	}

	f.VerboseLog("Encoding %d command(s) from %s", len(cmds), batchFile)
	h, err := stack.exec.Execute(ctx, relay.Request{
		Sender:    opts.Sender,
		Commands:  cmds,
		Funds:     funds,
		WithReply: opts.WithReply,
		HostChain: opts.HostChain,
	})
	if err != nil {
		return f.Fail("batch rejected", err)
	}

	result := SendResult{
		BatchID:    h.BatchID,
		DispatchID: h.DispatchID,
		HostChain:  h.Call.HostChain,
		TypeURLs:   h.Call.TypeURLs(),
		ReplyToken: h.Call.ReplyToken,
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if !h.AwaitsReply() {
		// The loopback relay completes the batch in process. Wait for its
		// reply so it is logged before the engine stops.
		if stack.nats == nil {
			r, err := stack.awaitReply(waitCtx, h.DispatchID)
			if err != nil {
				return f.Fail("no reply for batch "+h.BatchID, err)
			}
			result.Outcome = r.Outcome
			result.Error = r.Error
		}
		return f.Success(result)
	}
	resp, err := h.Wait(waitCtx)
	if err != nil {
		return f.Fail(fmt.Sprintf("no reply for batch %s (if it will never arrive, run: usb abandon %s)", h.BatchID, h.DispatchID), err)
	}

	result.Action = resp.Action
	result.Outcome = resp.Outcome
	if resp.Err != nil {
		result.Error = resp.Err.Error()
	}
	if err := f.Success(result); err != nil {
		return err
	}
	if !resp.Succeeded() {
		return WrapExitError(ExitFailure, "batch "+h.BatchID+" failed", resp.Err)
	}
	return nil
}

var coinPattern = regexp.MustCompile(`^([0-9]+)([a-zA-Z][a-zA-Z0-9/:._-]{1,127})$`)

// parseCoins parses coins in the "<amount><denom>" form, e.g. 1000ubtsg.
func parseCoins(values []string) ([]ir.Coin, error) {
	coins := make([]ir.Coin, 0, len(values))
	for _, v := range values {
		m := coinPattern.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			return nil, fmt.Errorf("malformed coin %q: want <amount><denom>", v)
		}
		coins = append(coins, ir.Coin{Denom: m[2], Amount: m[1]})
	}
	return coins, nil
}
