package envelope

import (
	"encoding/json"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/wire"
)

// Hop names one layer of an envelope.
type Hop string

const (
	HopStargate     Hop = "stargate"      // encoded destination messages
	HopProxyModule  Hop = "proxy_module"  // remote proxy executes the messages
	HopManager      Hop = "manager"       // remote manager forwards to the proxy
	HopHostDispatch Hop = "host_dispatch" // host-side relay dispatches manager messages
	HopClientRemote Hop = "client_remote" // client-side relay sends over IBC
	HopAccountExec  Hop = "account_exec"  // local proxy acts for the caller
)

// Envelope is one layer of a dispatch.
//
// The innermost layer holds Messages; every other layer holds the layer it
// wraps in Inner and the execute message it delivers to Target in Msg.
type Envelope struct {
	Hop      Hop
	Target   string
	Messages []wire.EncodedMessage
	Inner    *Envelope
	Funds    []ir.Coin
	Msg      json.RawMessage
}

// Layers returns the envelope and every layer it wraps, outermost first.
func (e *Envelope) Layers() []*Envelope {
	var layers []*Envelope
	for l := e; l != nil; l = l.Inner {
		layers = append(layers, l)
	}
	return layers
}

// Innermost returns the layer holding the encoded messages.
func (e *Envelope) Innermost() *Envelope {
	l := e
	for l.Inner != nil {
		l = l.Inner
	}
	return l
}

// Depth is the number of layers including the message layer.
func (e *Envelope) Depth() int {
	return len(e.Layers())
}

// InnerMessages returns the encoded messages in batch order.
func (e *Envelope) InnerMessages() []wire.EncodedMessage {
	return e.Innermost().Messages
}
