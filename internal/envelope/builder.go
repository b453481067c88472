package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/samber/lo"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/wire"
)

// DefaultProxyModuleID is the module id of the account proxy.
const DefaultProxyModuleID = "abstract:proxy"

// DefaultHostChain is the destination chain when none is configured.
const DefaultHostChain = "jackal"

var amountPattern = regexp.MustCompile(`^[0-9]+$`)

// ReplyOn mirrors the CosmWasm sub-message reply policy.
type ReplyOn string

const (
	ReplySuccess ReplyOn = "success"
	ReplyNever   ReplyOn = "never"
)

// Config addresses the contracts the relay routes through.
type Config struct {
	AccountProxy  string // local account proxy executing for the caller
	IBCClient     string // client-side IBC relay contract
	ProxyModuleID string // defaults to DefaultProxyModuleID
	HostChain     string // defaults to DefaultHostChain
}

// Options are per-call settings.
type Options struct {
	HostChain  string    // overrides Config.HostChain
	Funds      []ir.Coin // attached to the outermost layer
	ReplyToken uint64    // 0 requests no reply
}

// Call is one outer relay call: the envelope and its reply settings.
type Call struct {
	Envelope   *Envelope
	HostChain  string
	ReplyToken uint64
	ReplyOn    ReplyOn
}

// TypeURLs returns the type URLs of the inner messages in batch order.
func (c Call) TypeURLs() []string {
	return lo.Map(c.Envelope.InnerMessages(), func(m wire.EncodedMessage, _ int) string {
		return m.TypeURL
	})
}

// Funds returns the funds attached to the call.
func (c Call) Funds() []ir.Coin {
	return c.Envelope.Funds
}

// Render returns the CosmWasm sub-message JSON of the outer call.
func (c Call) Render() ([]byte, error) {
	out := c.Envelope
	return json.Marshal(subMsg{
		ID:      c.ReplyToken,
		Msg:     executeOn(out.Target, out.Msg, out.Funds),
		ReplyOn: c.ReplyOn,
	})
}

// Builder produces outer calls for a fixed set of relay contracts.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder, filling Config defaults.
func NewBuilder(cfg Config) *Builder {
	if cfg.ProxyModuleID == "" {
		cfg.ProxyModuleID = DefaultProxyModuleID
	}
	if cfg.HostChain == "" {
		cfg.HostChain = DefaultHostChain
	}
	return &Builder{cfg: cfg}
}

// Pipeline returns the hop transforms for one call, innermost first.
func (b *Builder) Pipeline(opts Options) Pipeline {
	host := b.hostChain(opts)
	return Pipeline{
		ProxyModuleAction{ModuleID: b.cfg.ProxyModuleID},
		ManagerExecOnModule{ModuleID: b.cfg.ProxyModuleID},
		HostDispatch{HostChain: host},
		ClientRemoteAction{ClientAddr: b.cfg.IBCClient, HostChain: host},
		AccountExecute{ProxyAddr: b.cfg.AccountProxy, Funds: opts.Funds},
	}
}

// Build wraps msgs into exactly one outer call. It does no retries and has
// no side effects.
func (b *Builder) Build(msgs []wire.EncodedMessage, opts Options) (Call, error) {
	if b.cfg.AccountProxy == "" {
		return Call{}, errors.New("build envelope: account proxy address is required")
	}
	if b.cfg.IBCClient == "" {
		return Call{}, errors.New("build envelope: ibc client address is required")
	}
	if err := validateFunds(opts.Funds); err != nil {
		return Call{}, fmt.Errorf("build envelope: %w", err)
	}

	env, err := b.Pipeline(opts).Apply(msgs)
	if err != nil {
		return Call{}, fmt.Errorf("build envelope: %w", err)
	}

	call := Call{
		Envelope:   env,
		HostChain:  b.hostChain(opts),
		ReplyToken: opts.ReplyToken,
		ReplyOn:    ReplyNever,
	}
	if opts.ReplyToken != 0 {
		call.ReplyOn = ReplySuccess
	}
	return call, nil
}

func (b *Builder) hostChain(opts Options) string {
	if opts.HostChain != "" {
		return opts.HostChain
	}
	return b.cfg.HostChain
}

func validateFunds(funds []ir.Coin) error {
	seen := make(map[string]bool, len(funds))
	for _, c := range funds {
		if c.Denom == "" {
			return errors.New("coin denom is required")
		}
		if !amountPattern.MatchString(c.Amount) {
			return fmt.Errorf("coin %s: amount %q is not a non-negative integer", c.Denom, c.Amount)
		}
		if seen[c.Denom] {
			return fmt.Errorf("coin %s listed twice", c.Denom)
		}
		seen[c.Denom] = true
	}
	return nil
}
