package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/wire"
)

// ErrInnerFunds is returned when a layer other than the outermost carries funds.
var ErrInnerFunds = errors.New("funds attached to an inner envelope layer")

// Transform wraps an envelope in one relay hop.
type Transform interface {
	Hop() Hop
	Wrap(inner *Envelope) (*Envelope, error)
}

// Pipeline is an ordered list of transforms, innermost first.
type Pipeline []Transform

// Hops returns the hop of every transform in application order.
func (p Pipeline) Hops() []Hop {
	hops := make([]Hop, len(p))
	for i, t := range p {
		hops[i] = t.Hop()
	}
	return hops
}

// Apply wraps msgs in every transform of the pipeline and returns the
// outermost envelope. Message order is preserved. Only the layer produced by
// the last transform may carry funds.
func (p Pipeline) Apply(msgs []wire.EncodedMessage) (*Envelope, error) {
	env := &Envelope{Hop: HopStargate, Messages: msgs}
	for _, t := range p {
		next, err := t.Wrap(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Hop(), err)
		}
		if next.Inner != env {
			return nil, fmt.Errorf("%s: transform did not wrap its input", t.Hop())
		}
		env = next
	}

	for _, layer := range env.Layers()[1:] {
		if len(layer.Funds) > 0 {
			return nil, fmt.Errorf("%s: %w", layer.Hop, ErrInnerFunds)
		}
	}
	return env, nil
}

// ProxyModuleAction asks the remote account proxy to execute the encoded
// messages as the account.
type ProxyModuleAction struct {
	ModuleID string
}

func (ProxyModuleAction) Hop() Hop { return HopProxyModule }

func (t ProxyModuleAction) Wrap(inner *Envelope) (*Envelope, error) {
	if inner.Hop != HopStargate {
		return nil, fmt.Errorf("expected %s layer, got %s", HopStargate, inner.Hop)
	}
	msg, err := json.Marshal(moduleActionMsg{
		ModuleAction: moduleActionBody{Msgs: stargateMsgs(inner.Messages)},
	})
	if err != nil {
		return nil, err
	}
	return &Envelope{Hop: HopProxyModule, Target: t.ModuleID, Inner: inner, Msg: msg}, nil
}

// ManagerExecOnModule asks the remote account manager to forward the inner
// message to a module, the proxy by default.
type ManagerExecOnModule struct {
	ModuleID string
}

func (ManagerExecOnModule) Hop() Hop { return HopManager }

func (t ManagerExecOnModule) Wrap(inner *Envelope) (*Envelope, error) {
	msg, err := json.Marshal(execOnModuleMsg{
		ExecOnModule: execOnModuleBody{ModuleID: t.ModuleID, ExecMsg: []byte(inner.Msg)},
	})
	if err != nil {
		return nil, err
	}
	return &Envelope{Hop: HopManager, Target: "manager", Inner: inner, Msg: msg}, nil
}

// HostDispatch is the host-side relay action that hands manager messages to
// the remote account.
type HostDispatch struct {
	HostChain string
}

func (HostDispatch) Hop() Hop { return HopHostDispatch }

func (t HostDispatch) Wrap(inner *Envelope) (*Envelope, error) {
	msg, err := json.Marshal(dispatchMsg{
		Dispatch: dispatchBody{ManagerMsgs: []json.RawMessage{inner.Msg}},
	})
	if err != nil {
		return nil, err
	}
	return &Envelope{Hop: HopHostDispatch, Target: t.HostChain, Inner: inner, Msg: msg}, nil
}

// ClientRemoteAction instructs the client-side IBC relay contract to forward
// the host action to HostChain.
type ClientRemoteAction struct {
	ClientAddr string
	HostChain  string
}

func (ClientRemoteAction) Hop() Hop { return HopClientRemote }

func (t ClientRemoteAction) Wrap(inner *Envelope) (*Envelope, error) {
	if t.HostChain == "" {
		return nil, errors.New("host chain is required")
	}
	msg, err := json.Marshal(remoteActionMsg{
		RemoteAction: remoteActionBody{HostChain: t.HostChain, Action: inner.Msg},
	})
	if err != nil {
		return nil, err
	}
	return &Envelope{Hop: HopClientRemote, Target: t.ClientAddr, Inner: inner, Msg: msg}, nil
}

// AccountExecute has the local account proxy execute the client call on
// behalf of the caller. It is the outermost layer and the only one that
// carries funds.
type AccountExecute struct {
	ProxyAddr string
	Funds     []ir.Coin
}

func (AccountExecute) Hop() Hop { return HopAccountExec }

func (t AccountExecute) Wrap(inner *Envelope) (*Envelope, error) {
	msg, err := json.Marshal(moduleActionWithDataMsg{
		ModuleActionWithData: moduleActionWithDataBody{
			Msg: executeOn(inner.Target, inner.Msg, inner.Funds),
		},
	})
	if err != nil {
		return nil, err
	}
	return &Envelope{Hop: HopAccountExec, Target: t.ProxyAddr, Inner: inner, Funds: t.Funds, Msg: msg}, nil
}
