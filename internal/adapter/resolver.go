package adapter

import (
	"context"
)

// Namespace is the namespace whose owner may update the configuration.
const Namespace = "usb"

// OwnershipResolver answers account and namespace ownership questions.
type OwnershipResolver interface {
	// AccountID returns the account identifier for address.
	AccountID(ctx context.Context, address string) (string, error)
	// NamespaceOwner returns the address owning namespace.
	NamespaceOwner(ctx context.Context, namespace string) (owner string, found bool, err error)
}

// StaticResolver resolves from fixed tables, usually built from config.
// An address with no Accounts entry is its own account ID.
type StaticResolver struct {
	Accounts map[string]string // address -> account ID
	Owners   map[string]string // namespace -> owner address
}

// AccountID implements OwnershipResolver.
func (r StaticResolver) AccountID(_ context.Context, address string) (string, error) {
	if id, ok := r.Accounts[address]; ok {
		return id, nil
	}
	return address, nil
}

// NamespaceOwner implements OwnershipResolver.
func (r StaticResolver) NamespaceOwner(_ context.Context, namespace string) (string, bool, error) {
	owner, ok := r.Owners[namespace]
	return owner, ok, nil
}
