package catalog

import (
	"fmt"
	"slices"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Files builds protobuf file descriptors for every catalog message, one
// synthetic proto3 file per protobuf package. The descriptors describe the
// same layout the encoder writes, so payloads can be decoded with dynamicpb.
func (r *Registry) Files() (*protoregistry.Files, error) {
	byPackage := make(map[string]*descriptorpb.FileDescriptorProto)
	var packages []string

	for _, m := range r.Messages() {
		pkg, name, err := splitFullName(m.FullName())
		if err != nil {
			return nil, &Error{Kind: m.Kind, Message: err.Error()}
		}
		file, ok := byPackage[pkg]
		if !ok {
			file = &descriptorpb.FileDescriptorProto{
				Name:    proto.String(strings.ReplaceAll(pkg, ".", "/") + "/tx.proto"),
				Package: proto.String(pkg),
				Syntax:  proto.String("proto3"),
			}
			byPackage[pkg] = file
			packages = append(packages, pkg)
		}
		file.MessageType = append(file.MessageType, messageProto(name, m.Fields))
	}

	slices.Sort(packages)
	set := &descriptorpb.FileDescriptorSet{}
	for _, pkg := range packages {
		set.File = append(set.File, byPackage[pkg])
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, fmt.Errorf("build descriptors: %w", err)
	}
	return files, nil
}

// MessageDescriptor returns the descriptor for a registered type URL.
func (r *Registry) MessageDescriptor(typeURL string) (protoreflect.MessageDescriptor, error) {
	m, ok := r.LookupTypeURL(typeURL)
	if !ok {
		return nil, fmt.Errorf("type url %s is not in catalog %s", typeURL, r.version)
	}
	files, err := r.Files()
	if err != nil {
		return nil, err
	}
	d, err := files.FindDescriptorByName(protoreflect.FullName(m.FullName()))
	if err != nil {
		return nil, err
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message", m.FullName())
	}
	return md, nil
}

func messageProto(name string, fields []Field) *descriptorpb.DescriptorProto {
	msg := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for _, f := range fields {
		typ := descriptorpb.FieldDescriptorProto_TYPE_STRING
		if f.Kind == KindUint64 {
			typ = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		}
		msg.Field = append(msg.Field, &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.Name),
			Number: proto.Int32(int32(f.Tag)),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   typ.Enum(),
		})
	}
	return msg
}

func splitFullName(full string) (pkg, name string, err error) {
	i := strings.LastIndexByte(full, '.')
	if i <= 0 || i == len(full)-1 {
		return "", "", fmt.Errorf("type url %q has no package", "/"+full)
	}
	return full[:i], full[i+1:], nil
}
