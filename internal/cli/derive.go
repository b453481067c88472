package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/contentid"
)

// DeriveResult holds a derived identifier.
type DeriveResult struct {
	Input  string `json:"input"`
	Hash   string `json:"hash"`
	Parent string `json:"parent,omitempty"` // merkle file placement only
	Child  string `json:"child,omitempty"`
}

// String renders the result for text output.
func (r DeriveResult) String() string {
	if r.Parent != "" {
		return fmt.Sprintf("hash_parent: %s\nhash_child:  %s", r.Parent, r.Child)
	}
	return r.Hash
}

// NewDeriveCommand creates the derive command and its subcommands.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Compute storage chain identifiers",
		Long: `Compute the identifiers the storage chain re-derives on its side.

The results match what the encoder fills in, so they can be used to
check a dispatched message by hand.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "account <address>",
		Short:         "Hex SHA-256 account hash of an address",
		Example:       `  usb derive account bitsong1alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newFormatter(cmd, rootOpts).Success(DeriveResult{
				Input: args[0],
				Hash:  contentid.HashAndHex(args[0]),
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "merkle <path> [child]",
		Short: "Filetree merkle hash of a path",
		Long: `Fold a slash separated path into its filetree merkle hash.

With a child name the parent and child hashes a post_file command needs
are printed instead.`,
		Example: `  usb derive merkle s/home
  usb derive merkle s/home notes.txt`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, rootOpts)
			if len(args) == 2 {
				parent, child := contentid.MerkleHelper(args[0], args[1])
				return f.Success(DeriveResult{
					Input:  args[0] + " " + args[1],
					Hash:   contentid.MerklePath(strings.TrimSuffix(args[0], "/") + "/" + args[1]),
					Parent: parent,
					Child:  child,
				})
			}
			return f.Success(DeriveResult{
				Input: args[0],
				Hash:  contentid.MerklePath(args[0]),
			})
		},
	})

	return cmd
}
