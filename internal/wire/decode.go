package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/bitsong/usb/internal/catalog"
)

// DecodeJSON decodes a payload through the catalog's descriptors and renders
// it as protojson. Unknown fields in the payload are an error.
func DecodeJSON(reg *catalog.Registry, m EncodedMessage) ([]byte, error) {
	md, err := reg.MessageDescriptor(m.TypeURL)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(m.Value, msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", m.TypeURL, err)
	}
	if len(msg.GetUnknown()) > 0 {
		return nil, fmt.Errorf("unmarshal %s: payload has fields outside the catalog layout", m.TypeURL)
	}
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
}
