package jackal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type decodeFunc func(json.RawMessage) (Command, error)

var decoders = map[string]decodeFunc{
	KindMakeRoot:       decodeAs[MakeRoot],
	KindPostFile:       decodeAs[PostFile],
	KindAddViewers:     decodeAs[AddViewers],
	KindDeleteViewers:  decodeAs[DeleteViewers],
	KindBuyStorage:     decodeAs[BuyStorage],
	KindUpgradeStorage: decodeAs[UpgradeStorage],
	KindCancelContract: decodeAs[CancelContract],
	KindSignContract:   decodeAs[SignContract],
	KindPostKey:        decodeAs[PostKey],
	KindDelete:         decodeAs[Delete],
}

// Kinds returns every operation kind the decoder recognizes, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(decoders))
	for k := range decoders {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Decode parses one command from its externally tagged JSON form.
//
// Unknown operation names decode to Unsupported so the encoder can reject
// them by name.
func Decode(data []byte) (Command, error) {
	var union map[string]json.RawMessage
	if err := json.Unmarshal(data, &union); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if len(union) != 1 {
		return nil, fmt.Errorf("decode command: expected exactly one operation key, got %d", len(union))
	}
	var name string
	var body json.RawMessage
	for name, body = range union {
	}

	decode, ok := decoders[name]
	if !ok {
		return Unsupported{Name: name}, nil
	}
	cmd, err := decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return cmd, nil
}

// decodeAs decodes body into T after checking that every field T declares
// is present. Values may be empty but never missing.
func decodeAs[T Command](body json.RawMessage) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	var zero T
	var missing []string
	for name := range zero.Args() {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("missing field(s): %s", strings.Join(missing, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var v T
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Marshal renders cmd in its externally tagged JSON form.
func Marshal(cmd Command) ([]byte, error) {
	return json.Marshal(map[string]any{cmd.Kind(): cmd})
}

// DecodeBatch parses a JSON array of commands or a single command object.
// An empty array is a valid, empty batch.
func DecodeBatch(data []byte) ([]Command, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode batch: empty input")
	}
	if trimmed[0] != '[' {
		cmd, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []Command{cmd}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	cmds := make([]Command, 0, len(items))
	for i, item := range items {
		cmd, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// LoadBatchFile reads a batch from a .json, .yaml or .yml file.
// YAML documents use the same shape as the JSON form.
func LoadBatchFile(path string) ([]Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeBatch(data)
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("parse %s: empty document", path)
		}
		asJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
		return DecodeBatch(asJSON)
	default:
		return nil, fmt.Errorf("unsupported batch file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}
