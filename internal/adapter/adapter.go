package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/store"
)

// Adapter exposes account status and the adapter configuration.
type Adapter struct {
	store    *store.Store
	resolver OwnershipResolver
}

// NewAdapter returns an Adapter persisting to s.
func NewAdapter(s *store.Store, resolver OwnershipResolver) *Adapter {
	return &Adapter{store: s, resolver: resolver}
}

// SetStatus records status for the account behind caller and returns that
// account ID.
func (a *Adapter) SetStatus(ctx context.Context, caller, status string) (string, error) {
	accountID, err := a.resolver.AccountID(ctx, caller)
	if err != nil {
		return "", fmt.Errorf("resolve account for %s: %w", caller, err)
	}
	if err := a.store.SetStatus(ctx, accountID, status); err != nil {
		return "", err
	}
	slog.Info("status set", "account_id", accountID, "new_status", status)
	return accountID, nil
}

// Status returns the status recorded for accountID.
func (a *Adapter) Status(ctx context.Context, accountID string) (string, bool, error) {
	return a.store.Status(ctx, accountID)
}

// UpdateConfig writes entries into the configuration. Only the owner of Namespace may
// call it; an unclaimed namespace rejects every caller.
func (a *Adapter) UpdateConfig(ctx context.Context, caller string, entries map[string]string) error {
	owner, found, err := a.resolver.NamespaceOwner(ctx, Namespace)
	if err != nil {
		return fmt.Errorf("resolve namespace %s: %w", Namespace, err)
	}
	if !found || owner != caller {
		return ir.NewUnauthorizedError(caller)
	}
	if err := a.store.SaveConfig(ctx, entries); err != nil {
		return err
	}
	slog.Info("config updated", "caller", caller, "entries", len(entries))
	return nil
}

// Config returns the saved configuration.
func (a *Adapter) Config(ctx context.Context) (map[string]string, bool, error) {
	return a.store.Config(ctx)
}
