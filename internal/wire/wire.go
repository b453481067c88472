// Package wire encodes domain commands into the protobuf messages the
// destination chain deserializes.
//
// The layout of every message comes from the catalog. Fields are written in
// ascending tag order with proto3 semantics: empty strings and zero integers
// are omitted, strings are length-delimited and integers are varints. The
// output is byte-identical to what the chain's own encoder produces for the
// same values.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bitsong/usb/internal/catalog"
	"github.com/bitsong/usb/internal/contentid"
	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/jackal"
)

// EncodedMessage is one destination message: its type URL and payload.
type EncodedMessage struct {
	TypeURL string
	Value   []byte
}

// Encoder turns commands into EncodedMessages using a catalog.
type Encoder struct {
	reg *catalog.Registry
}

// NewEncoder returns an encoder bound to reg.
func NewEncoder(reg *catalog.Registry) *Encoder {
	return &Encoder{reg: reg}
}

// Registry returns the catalog the encoder uses.
func (e *Encoder) Registry() *catalog.Registry { return e.reg }

// Encode encodes cmd as issued by sender.
//
// Fields sourced from the sender are never taken from the command: creator is
// the sender and account is HashAndHex(sender). Kinds with no catalog entry
// fail with an UNSUPPORTED_OPERATION error, as does jackal.Unsupported
// whatever name it carries. An argument the catalog requires but the command
// does not carry fails with ENCODING_PRECONDITION.
func (e *Encoder) Encode(sender string, cmd jackal.Command) (EncodedMessage, error) {
	kind := cmd.Kind()
	if _, ok := cmd.(jackal.Unsupported); ok {
		return EncodedMessage{}, ir.NewUnsupportedError(kind)
	}
	msg, ok := e.reg.Lookup(kind)
	if !ok {
		return EncodedMessage{}, ir.NewUnsupportedError(kind)
	}

	args := cmd.Args()
	var b []byte
	for _, f := range msg.Fields {
		var value any
		switch f.Source {
		case catalog.SourceSender:
			value = sender
		case catalog.SourceAccountHash:
			value = contentid.HashAndHex(sender)
		default:
			v, ok := args[f.Arg]
			if !ok {
				return EncodedMessage{}, ir.NewPreconditionError(kind, f.Arg)
			}
			value = v
		}

		var err error
		b, err = appendField(b, f, value)
		if err != nil {
			return EncodedMessage{}, fmt.Errorf("encode %s.%s: %w", kind, f.Name, err)
		}
	}

	return EncodedMessage{TypeURL: msg.TypeURL, Value: b}, nil
}

// EncodeAll encodes cmds in order. It stops at the first failure and returns
// no messages, with the failing position recorded on the error.
func (e *Encoder) EncodeAll(sender string, cmds []jackal.Command) ([]EncodedMessage, error) {
	out := make([]EncodedMessage, 0, len(cmds))
	for i, cmd := range cmds {
		m, err := e.Encode(sender, cmd)
		if err != nil {
			return nil, ir.AtIndex(err, i)
		}
		out = append(out, m)
	}
	return out, nil
}

func appendField(b []byte, f catalog.Field, value any) ([]byte, error) {
	switch f.Kind {
	case catalog.KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", value)
		}
		if s == "" {
			return b, nil
		}
		b = protowire.AppendTag(b, f.Tag, protowire.BytesType)
		return protowire.AppendString(b, s), nil
	case catalog.KindUint64:
		n, ok := value.(uint64)
		if !ok {
			return nil, fmt.Errorf("want uint64, got %T", value)
		}
		if n == 0 {
			return b, nil
		}
		b = protowire.AppendTag(b, f.Tag, protowire.VarintType)
		return protowire.AppendVarint(b, n), nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", f.Kind)
	}
}
