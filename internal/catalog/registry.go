// Package catalog holds the destination chain's message catalog: for every
// operation kind, the type URL the chain registers and the ordered field
// layout of its protobuf message.
//
// The catalog is data. It is defined in an embedded, versioned CUE document
// and loaded into a Registry, so adding a destination operation never touches
// the encoder or the envelope builder.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// FieldKind is the wire representation of a field value.
type FieldKind string

const (
	KindString FieldKind = "string" // length-delimited UTF-8
	KindUint64 FieldKind = "uint64" // varint
)

// Source says where the encoder takes a field value from.
type Source string

const (
	SourceArg         Source = "arg"          // the command argument named Field.Arg
	SourceSender      Source = "sender"       // the address issuing the batch
	SourceAccountHash Source = "account_hash" // HashAndHex of the sender
)

// Field is one protobuf field of a destination message.
type Field struct {
	Name   string
	Tag    protowire.Number
	Kind   FieldKind
	Source Source
	Arg    string // argument name, set only for SourceArg
}

// Message is the catalog entry for one operation kind.
type Message struct {
	Kind    string
	TypeURL string
	Fields  []Field // ascending tag order
}

// FullName returns the protobuf full name addressed by the type URL.
func (m Message) FullName() string {
	return strings.TrimPrefix(m.TypeURL, "/")
}

// Registry maps operation kinds to catalog entries.
//
// A Registry is immutable once loaded and safe for concurrent reads.
type Registry struct {
	version string
	byKind  map[string]Message
	byURL   map[string]string
}

// NewRegistry returns an empty registry for the given catalog version.
func NewRegistry(version string) *Registry {
	return &Registry{
		version: version,
		byKind:  make(map[string]Message),
		byURL:   make(map[string]string),
	}
}

// Version returns the catalog version string.
func (r *Registry) Version() string { return r.version }

// Register adds a catalog entry.
//
// Kinds and type URLs must be unique across the registry, and field tags must
// be valid protobuf numbers in strictly increasing order. Derived sources
// (sender, account_hash) must be strings.
func (r *Registry) Register(m Message) error {
	if m.Kind == "" {
		return &Error{Message: "kind is required"}
	}
	if !strings.HasPrefix(m.TypeURL, "/") || len(m.TypeURL) < 2 {
		return &Error{Kind: m.Kind, Message: fmt.Sprintf("type url %q must start with /", m.TypeURL)}
	}
	if _, exists := r.byKind[m.Kind]; exists {
		return &Error{Kind: m.Kind, Message: "kind already registered"}
	}
	if other, exists := r.byURL[m.TypeURL]; exists {
		return &Error{Kind: m.Kind, Message: fmt.Sprintf("type url %s already registered for %s", m.TypeURL, other)}
	}

	names := make(map[string]bool, len(m.Fields))
	var prev protowire.Number
	fields := make([]Field, len(m.Fields))
	for i, f := range m.Fields {
		if f.Name == "" {
			return &Error{Kind: m.Kind, Message: fmt.Sprintf("field %d has no name", i)}
		}
		if names[f.Name] {
			return &Error{Kind: m.Kind, Field: f.Name, Message: "duplicate field name"}
		}
		names[f.Name] = true
		if !f.Tag.IsValid() {
			return &Error{Kind: m.Kind, Field: f.Name, Message: fmt.Sprintf("invalid tag %d", f.Tag)}
		}
		if f.Tag <= prev {
			return &Error{Kind: m.Kind, Field: f.Name, Message: fmt.Sprintf("tag %d is not greater than previous tag %d", f.Tag, prev)}
		}
		prev = f.Tag

		if f.Kind == "" {
			f.Kind = KindString
		}
		if f.Kind != KindString && f.Kind != KindUint64 {
			return &Error{Kind: m.Kind, Field: f.Name, Message: fmt.Sprintf("unknown field kind %q", f.Kind)}
		}
		if f.Source == "" {
			f.Source = SourceArg
		}
		switch f.Source {
		case SourceArg:
			if f.Arg == "" {
				f.Arg = f.Name
			}
		case SourceSender, SourceAccountHash:
			if f.Kind != KindString {
				return &Error{Kind: m.Kind, Field: f.Name, Message: fmt.Sprintf("source %s requires a string field", f.Source)}
			}
			f.Arg = ""
		default:
			return &Error{Kind: m.Kind, Field: f.Name, Message: fmt.Sprintf("unknown source %q", f.Source)}
		}
		fields[i] = f
	}

	m.Fields = fields
	r.byKind[m.Kind] = m
	r.byURL[m.TypeURL] = m.Kind
	return nil
}

// Lookup returns the entry for an operation kind.
func (r *Registry) Lookup(kind string) (Message, bool) {
	m, ok := r.byKind[kind]
	return m, ok
}

// LookupTypeURL returns the entry registered under a type URL.
func (r *Registry) LookupTypeURL(typeURL string) (Message, bool) {
	kind, ok := r.byURL[typeURL]
	if !ok {
		return Message{}, false
	}
	return r.byKind[kind], true
}

// Kinds returns the registered operation kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Messages returns every entry sorted by kind.
func (r *Registry) Messages() []Message {
	kinds := r.Kinds()
	out := make([]Message, len(kinds))
	for i, k := range kinds {
		out[i] = r.byKind[k]
	}
	return out
}
