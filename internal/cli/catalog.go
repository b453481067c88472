package cli

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/catalog"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Source bool
}

// CatalogField is one message field in CLI output.
type CatalogField struct {
	Name   string `json:"name"`
	Tag    int32  `json:"tag"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Arg    string `json:"arg,omitempty"`
}

// CatalogEntry is one operation kind in CLI output.
type CatalogEntry struct {
	Kind    string         `json:"kind"`
	TypeURL string         `json:"type_url"`
	Fields  []CatalogField `json:"fields"`
}

// CatalogResult holds the catalog command output.
type CatalogResult struct {
	Version string         `json:"version"`
	Entries []CatalogEntry `json:"entries"`
}

// String renders the result for text output.
func (r CatalogResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Catalog %s\n", r.Version)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "\n%s -> %s\n", e.Kind, e.TypeURL)
		for _, f := range e.Fields {
			from := f.Source
			if f.Arg != "" {
				from = "arg " + f.Arg
			}
			fmt.Fprintf(&b, "  %2d %-16s %-7s %s\n", f.Tag, f.Name, f.Kind, from)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the destination message catalog",
		Long: `List every supported operation kind with its destination type URL
and protobuf field layout. With --source the embedded CUE catalog is
printed instead.

Examples:
  usb catalog
  usb catalog --format json
  usb catalog --source`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Source, "source", false, "print the CUE catalog source")

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	if opts.Source {
		if opts.Format == "json" {
			return f.Success(map[string]string{"source": string(catalog.Document())})
		}
		_, err := cmd.OutOrStdout().Write(catalog.Document())
		return err
	}

	reg, err := catalog.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	return f.Success(CatalogResult{
		Version: reg.Version(),
		Entries: lo.Map(reg.Messages(), func(m catalog.Message, _ int) CatalogEntry {
			return CatalogEntry{
				Kind:    m.Kind,
				TypeURL: m.TypeURL,
				Fields: lo.Map(m.Fields, func(fd catalog.Field, _ int) CatalogField {
					return CatalogField{
						Name:   fd.Name,
						Tag:    int32(fd.Tag),
						Kind:   string(fd.Kind),
						Source: string(fd.Source),
						Arg:    fd.Arg,
					}
				}),
			}
		}),
	})
}
