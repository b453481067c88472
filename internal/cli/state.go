package cli

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/adapter"
	"github.com/bitsong/usb/internal/config"
	"github.com/bitsong/usb/internal/store"
)

// StateOptions holds flags shared by the state commands.
type StateOptions struct {
	*RootOptions
	Database string
	Caller   string
}

// StateResult is the output of the state commands.
type StateResult struct {
	AccountID string            `json:"account_id,omitempty"`
	Status    string            `json:"status,omitempty"`
	Count     *int32            `json:"count,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
	Action    string            `json:"action,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
}

// String renders the result for text output.
func (r StateResult) String() string {
	var lines []string
	if r.Action != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Action, r.Outcome))
	}
	if r.AccountID != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", r.AccountID, r.Status))
	}
	if r.Count != nil {
		lines = append(lines, fmt.Sprintf("count: %d", *r.Count))
	}
	for _, k := range slices.Sorted(maps.Keys(r.Config)) {
		lines = append(lines, fmt.Sprintf("%s=%s", k, r.Config[k]))
	}
	if len(lines) == 0 {
		return "ok"
	}
	return strings.Join(lines, "\n")
}

// stateEnv is an opened store with the collaborators built on it.
type stateEnv struct {
	store   *store.Store
	adapter *adapter.Adapter
	app     *adapter.App
}

// openState opens the store without starting an engine. The App it returns
// cannot instantiate.
func openState(opts *StateOptions) (*stateEnv, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, err
	}
	return openStateWith(cfg, opts.Database)
}

func openStateWith(cfg config.Config, database string) (*stateEnv, error) {
	st, err := store.Open(cmp.Or(database, cfg.DBPath))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return &stateEnv{
		store:   st,
		adapter: adapter.NewAdapter(st, cfg.Resolver()),
		app:     adapter.NewApp(st, nil, nil, cfg.Admin),
	}, nil
}

func stateContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func addStateFlags(cmd *cobra.Command, opts *StateOptions, withCaller bool) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to db_path from config)")
	if withCaller {
		cmd.Flags().StringVar(&opts.Caller, "caller", "", "address making the call (required)")
		_ = cmd.MarkFlagRequired("caller")
	}
}

// InitOptions holds flags for the init command.
type InitOptions struct {
	StateOptions
	Count  int32
	Config map[string]string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{StateOptions: StateOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Instantiate the app with a count and configuration",
		Long: `Save the initial count and adapter configuration, then complete the
instantiate reply through the engine.

Examples:
  usb init --count 5
  usb init --count 0 --set mode=direct --set region=eu`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	addStateFlags(cmd, &opts.StateOptions, false)
	cmd.Flags().Int32Var(&opts.Count, "count", 0, "initial count")
	cmd.Flags().StringToStringVar(&opts.Config, "set", nil, "configuration entry key=value (repeatable)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)
	ctx := stateContext(cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}
	stack, err := openStack(cfg, stackOptions{Database: opts.Database})
	if err != nil {
		return err
	}
	defer stack.Close()
	if err := stack.start(ctx); err != nil {
		return err
	}

	entries := opts.Config
	if entries == nil {
		entries = map[string]string{}
	}
	resp, err := stack.app.Instantiate(ctx, opts.Count, entries)
	if err != nil {
		return f.Fail("instantiate failed", err)
	}

	count := opts.Count
	return f.Success(StateResult{
		Action:  resp.Action,
		Outcome: resp.Outcome,
		Count:   &count,
		Config:  entries,
	})
}

// NewStatusCommand creates the status command and its subcommands.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read or set account status",
	}

	getOpts := &StateOptions{RootOptions: rootOpts}
	get := &cobra.Command{
		Use:           "get <account-id>",
		Short:         "Show the status recorded for an account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openState(getOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			status, found, err := env.adapter.Status(stateContext(cmd), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read status", err)
			}
			if !found {
				return NewExitError(ExitFailure, fmt.Sprintf("no status for account %s", args[0]))
			}
			return newFormatter(cmd, rootOpts).Success(StateResult{AccountID: args[0], Status: status})
		},
	}
	addStateFlags(get, getOpts, false)

	setOpts := &StateOptions{RootOptions: rootOpts}
	set := &cobra.Command{
		Use:   "set <status>",
		Short: "Set the status of the caller's account",
		Long: `Record a status for the account behind --caller. Addresses listed
under accounts in the config map to their account ID, any other address
is its own account ID.`,
		Example:       `  usb status set active --caller bitsong1alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openState(setOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			f := newFormatter(cmd, rootOpts)
			accountID, err := env.adapter.SetStatus(stateContext(cmd), setOpts.Caller, args[0])
			if err != nil {
				return f.Fail("set status failed", err)
			}
			return f.Success(StateResult{AccountID: accountID, Status: args[0]})
		},
	}
	addStateFlags(set, setOpts, true)

	cmd.AddCommand(get, set)
	return cmd
}

// NewCountCommand creates the count command and its subcommands.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Read or change the app count",
	}

	getOpts := &StateOptions{RootOptions: rootOpts}
	get := &cobra.Command{
		Use:           "get",
		Short:         "Show the current count",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openState(getOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			n, found, err := env.app.Count(stateContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read count", err)
			}
			if !found {
				return NewExitError(ExitFailure, adapter.ErrNotInstantiated.Error())
			}
			return newFormatter(cmd, rootOpts).Success(StateResult{Count: &n})
		},
	}
	addStateFlags(get, getOpts, false)

	incOpts := &StateOptions{RootOptions: rootOpts}
	inc := &cobra.Command{
		Use:           "inc",
		Short:         "Add one to the count (admin only)",
		Example:       `  usb count inc --caller bitsong1admin`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openState(incOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			f := newFormatter(cmd, rootOpts)
			n, err := env.app.Increment(stateContext(cmd), incOpts.Caller)
			if err != nil {
				return f.Fail("increment failed", err)
			}
			return f.Success(StateResult{Count: &n})
		},
	}
	addStateFlags(inc, incOpts, true)

	resetOpts := &StateOptions{RootOptions: rootOpts}
	reset := &cobra.Command{
		Use:           "reset <count>",
		Short:         "Set the count (admin only)",
		Example:       `  usb count reset 0 --caller bitsong1admin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid count", err)
			}
			env, err := openState(resetOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			f := newFormatter(cmd, rootOpts)
			n := int32(v)
			if err := env.app.Reset(stateContext(cmd), resetOpts.Caller, n); err != nil {
				return f.Fail("reset failed", err)
			}
			return f.Success(StateResult{Count: &n})
		},
	}
	addStateFlags(reset, resetOpts, true)

	cmd.AddCommand(get, inc, reset)
	return cmd
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or update the saved adapter configuration",
	}

	showOpts := &StateOptions{RootOptions: rootOpts}
	show := &cobra.Command{
		Use:           "show",
		Short:         "Show the saved configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openState(showOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			entries, found, err := env.adapter.Config(stateContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read config", err)
			}
			if !found {
				return NewExitError(ExitFailure, "no configuration saved")
			}
			return newFormatter(cmd, rootOpts).Success(StateResult{Config: entries})
		},
	}
	addStateFlags(show, showOpts, false)

	updateOpts := &StateOptions{RootOptions: rootOpts}
	update := &cobra.Command{
		Use:   "update <key=value>...",
		Short: "Write configuration entries (namespace owner only)",
		Long: `Write configuration entries. Only the namespace owner named by
namespace_owner in the config may update; without an owner every caller
is rejected.`,
		Example:       `  usb config update mode=direct --caller bitsong1owner`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := parseEntries(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entry", err)
			}
			env, err := openState(updateOpts)
			if err != nil {
				return err
			}
			defer env.store.Close()

			f := newFormatter(cmd, rootOpts)
			if err := env.adapter.UpdateConfig(stateContext(cmd), updateOpts.Caller, entries); err != nil {
				return f.Fail("update config failed", err)
			}
			return f.Success(StateResult{Config: entries})
		},
	}
	addStateFlags(update, updateOpts, true)

	cmd.AddCommand(show, update)
	return cmd
}

// parseEntries parses key=value arguments.
func parseEntries(args []string) (map[string]string, error) {
	entries := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q: want key=value", arg)
		}
		entries[k] = v
	}
	return entries, nil
}
