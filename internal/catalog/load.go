package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"google.golang.org/protobuf/encoding/protowire"
)

//go:embed catalog.cue
var catalogSource []byte

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Load compiles the embedded catalog. The result is cached.
func Load() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = LoadSource("catalog.cue", catalogSource)
	})
	return defaultReg, defaultErr
}

// MustLoad is like Load but panics on error.
// The embedded catalog is covered by tests, so this only fails on a bad build.
func MustLoad() *Registry {
	reg, err := Load()
	if err != nil {
		panic(err)
	}
	return reg
}

// Document returns the embedded catalog document.
func Document() []byte {
	return catalogSource
}

// LoadSource compiles a catalog document and registers every entry.
//
// The document must define a string "version" and a "messages" struct whose
// fields are operation kinds:
//
//	messages: post_key: {
//		type_url: "/canine_chain.storage.MsgPostKey"
//		fields: [{name: "creator", tag: 1, source: "sender"}, {name: "key", tag: 2}]
//	}
func LoadSource(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	version, err := lookupString(v, "version")
	if err != nil {
		return nil, err
	}
	reg := NewRegistry(version)

	messages := v.LookupPath(cue.ParsePath("messages"))
	if !messages.Exists() {
		return nil, &Error{Message: "messages is required", Pos: v.Pos()}
	}
	iter, err := messages.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		kind := iter.Selector().String()
		msg, err := parseMessage(kind, iter.Value())
		if err != nil {
			return nil, err
		}
		if err := reg.Register(msg); err != nil {
			if ce, ok := err.(*Error); ok && !ce.Pos.IsValid() {
				ce.Pos = iter.Value().Pos()
			}
			return nil, err
		}
	}
	return reg, nil
}

func parseMessage(kind string, v cue.Value) (Message, error) {
	msg := Message{Kind: kind}

	typeURL, err := lookupString(v, "type_url")
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", kind, err)
	}
	msg.TypeURL = typeURL

	list, err := v.LookupPath(cue.ParsePath("fields")).List()
	if err != nil {
		return Message{}, formatCUEError(err)
	}
	for list.Next() {
		f, err := parseField(list.Value())
		if err != nil {
			return Message{}, fmt.Errorf("%s: %w", kind, err)
		}
		msg.Fields = append(msg.Fields, f)
	}
	return msg, nil
}

func parseField(v cue.Value) (Field, error) {
	var f Field
	var err error

	if f.Name, err = lookupString(v, "name"); err != nil {
		return Field{}, err
	}

	tagVal, _ := v.LookupPath(cue.ParsePath("tag")).Default()
	tag, err := tagVal.Int64()
	if err != nil {
		return Field{}, formatCUEError(err)
	}
	f.Tag = protowire.Number(tag)

	kind, err := lookupString(v, "kind")
	if err != nil {
		return Field{}, err
	}
	f.Kind = FieldKind(kind)

	source, err := lookupString(v, "source")
	if err != nil {
		return Field{}, err
	}
	f.Source = Source(source)

	if argVal := v.LookupPath(cue.ParsePath("arg")); argVal.Exists() {
		if f.Arg, err = argVal.String(); err != nil {
			return Field{}, formatCUEError(err)
		}
	}
	return f, nil
}

// lookupString resolves defaults before reading a concrete string.
func lookupString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &Error{Field: path, Message: fmt.Sprintf("%s is required", path), Pos: v.Pos()}
	}
	val, _ = val.Default()
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
