package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/catalog"
	"github.com/bitsong/usb/internal/envelope"
	"github.com/bitsong/usb/internal/jackal"
	"github.com/bitsong/usb/internal/wire"
)

// EncodeOptions holds flags for the encode command.
type EncodeOptions struct {
	*RootOptions
	Sender string
	Call   bool
	Funds  []string
}

// EncodedMessage is one encoded destination message in CLI output.
type EncodedMessage struct {
	Kind    string          `json:"kind"`
	TypeURL string          `json:"type_url"`
	Value   string          `json:"value"` // hex
	Decoded json.RawMessage `json:"decoded"`
}

// EncodeResult holds the encode command output.
type EncodeResult struct {
	CatalogVersion string           `json:"catalog_version"`
	Messages       []EncodedMessage `json:"messages"`
	Call           json.RawMessage  `json:"call,omitempty"`
}

// String renders the result for text output.
func (r EncodeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Catalog %s, %d message(s)\n", r.CatalogVersion, len(r.Messages))
	for i, m := range r.Messages {
		fmt.Fprintf(&b, "[%d] %s %s\n", i, m.Kind, m.TypeURL)
		fmt.Fprintf(&b, "    value:   %s\n", m.Value)
		fmt.Fprintf(&b, "    decoded: %s\n", m.Decoded)
	}
	if len(r.Call) > 0 {
		fmt.Fprintf(&b, "call: %s\n", r.Call)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EncodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <batch-file>",
		Short: "Encode a command batch without dispatching it",
		Long: `Encode a batch of storage commands into destination messages.

Each message is printed with its type URL, the protobuf payload in hex
and the payload decoded back through the catalog. With --call the outer
relay call is rendered as well, using the configured contract addresses.

Examples:
  usb encode batch.yaml --sender bitsong1alice
  usb encode batch.yaml --sender bitsong1alice --call --config usb.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sender, "sender", "", "address issuing the batch (required)")
	_ = cmd.MarkFlagRequired("sender")
	cmd.Flags().BoolVar(&opts.Call, "call", false, "also render the outer relay call")
	cmd.Flags().StringSliceVar(&opts.Funds, "funds", nil, "coins attached to the outer call, e.g. 1000ubtsg")

	return cmd
}

func runEncode(opts *EncodeOptions, batchFile string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	cmds, err := jackal.LoadBatchFile(batchFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}

	reg, err := catalog.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	msgs, err := wire.NewEncoder(reg).EncodeAll(opts.Sender, cmds)
	if err != nil {
		return f.Fail("encoding failed", err)
	}

	result := EncodeResult{
		CatalogVersion: reg.Version(),
		Messages:       make([]EncodedMessage, 0, len(msgs)),
	}
	for i, m := range msgs {
		decoded, err := wire.DecodeJSON(reg, m)
		if err != nil {
			return fmt.Errorf("decode %s: %w", m.TypeURL, err)
		}
		result.Messages = append(result.Messages, EncodedMessage{
			Kind:    cmds[i].Kind(),
			TypeURL: m.TypeURL,
			Value:   hex.EncodeToString(m.Value),
			Decoded: decoded,
		})
	}

	if opts.Call {
		call, err := renderCall(opts, msgs)
		if err != nil {
			return err
		}
		result.Call = call
	}

	return f.Success(result)
}

func renderCall(opts *EncodeOptions, msgs []wire.EncodedMessage) (json.RawMessage, error) {
	funds, err := parseCoins(opts.Funds)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --funds", err)
	}
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, err
	}
	call, err := envelope.NewBuilder(cfg.Envelope()).Build(msgs, envelope.Options{
		Funds: funds,
	})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to build call", err)
	}
	rendered, err := call.Render()
	if err != nil {
		return nil, err
	}
	return rendered, nil
}

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <type-url> <hex-value>",
		Short: "Decode a destination message payload",
		Long: `Decode a protobuf payload through the catalog's message layout.

Payloads with fields outside the catalog layout are rejected.

Example:
  usb decode /canine_chain.storage.MsgPostKey 0a0d6269...`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runDecode(opts *DecodeOptions, typeURL, value string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	payload, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return WrapExitError(ExitCommandError, "value is not hex", err)
	}

	reg, err := catalog.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	decoded, err := wire.DecodeJSON(reg, wire.EncodedMessage{TypeURL: typeURL, Value: payload})
	if err != nil {
		return f.Fail("decode failed", err)
	}

	if opts.Format == "json" {
		return f.Success(json.RawMessage(decoded))
	}
	return f.Success(string(decoded))
}
