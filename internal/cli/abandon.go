package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/engine"
)

// AbandonOptions holds flags for the abandon command.
type AbandonOptions struct {
	*RootOptions
	Database string
	Reason   string
}

// AbandonResult describes the failure reply written for a dispatch.
type AbandonResult struct {
	DispatchID string `json:"dispatch_id"`
	ReplyID    string `json:"reply_id"`
	Token      uint64 `json:"token"`
	Error      string `json:"error"`
}

// String renders the result for text output.
func (r AbandonResult) String() string {
	return fmt.Sprintf("Dispatch %s abandoned (token %d released)\n  reply: %s", r.DispatchID, r.Token, r.Error)
}

// NewAbandonCommand creates the abandon command.
func NewAbandonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AbandonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "abandon <dispatch-id>",
		Short: "Fail a dispatch whose reply will never arrive",
		Long: `Record a failure reply for a pending dispatch so its reply token can be
taken by the next batch.

A dispatch stays pending until its completion notification is logged. When
that notification is lost, for example because no relay process was
listening when it was published, every later reply-bearing batch is
rejected with TOKEN_IN_FLIGHT. Find the dispatch with "usb trace --pending"
and abandon it.

Examples:
  usb abandon 49b25c0e...
  usb abandon 49b25c0e... --reason "relayer restarted"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbandon(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to db_path from config)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "note recorded with the failure reply")

	return cmd
}

func runAbandon(opts *AbandonOptions, dispatchID string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)
	ctx := stateContext(cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	// The failure reply is written locally, so no transport is needed.
	cfg.NATSURL = ""

	stack, err := openStack(cfg, stackOptions{Database: opts.Database})
	if err != nil {
		return err
	}
	defer stack.Close()
	if err := stack.start(ctx); err != nil {
		return err
	}

	if _, err := stack.engine.Abandon(ctx, dispatchID, opts.Reason); err != nil {
		if engine.IsNotPending(err) {
			return f.Fail("cannot abandon "+dispatchID, err)
		}
		return WrapExitError(ExitCommandError, "failed to abandon dispatch", err)
	}

	r, err := stack.awaitReply(ctx, dispatchID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to record reply", err)
	}
	return f.Success(AbandonResult{
		DispatchID: r.DispatchID,
		ReplyID:    r.ID,
		Token:      r.Token,
		Error:      r.Error,
	})
}
