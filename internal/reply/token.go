// Package reply correlates asynchronous completion notifications with the
// batch that requested them.
//
// Reply tokens are a fixed enumeration. At most one batch per token may be in
// flight: Acquire rejects a second batch under a token until the first one
// completes.
package reply

import "fmt"

// Token identifies which logical batch a completion notification belongs to.
type Token uint64

const (
	// InstantiateReply completes local setup.
	InstantiateReply Token = 1
	// DispatchReply completes a command batch sent to the destination chain.
	DispatchReply Token = 2
)

// Tokens lists every known token in ascending order.
var Tokens = []Token{InstantiateReply, DispatchReply}

// Valid reports whether t is a known token.
func (t Token) Valid() bool {
	return t == InstantiateReply || t == DispatchReply
}

// Action is the response action emitted when the token's batch completes.
func (t Token) Action() string {
	switch t {
	case InstantiateReply:
		return "instantiate_reply"
	case DispatchReply:
		return "dispatch_reply"
	default:
		return fmt.Sprintf("reply_%d", uint64(t))
	}
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%d)", t.Action(), uint64(t))
}
