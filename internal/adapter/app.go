package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bitsong/usb/internal/engine"
	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/store"
)

// ErrNotInstantiated is returned by counter operations before Instantiate.
var ErrNotInstantiated = errors.New("app is not instantiated")

// App is the application surface: instantiate, and the admin counter.
type App struct {
	store  *store.Store
	engine *engine.Engine
	corr   *reply.Correlator
	admin  string
}

// NewApp returns an App whose admin-gated operations accept only admin.
func NewApp(s *store.Store, eng *engine.Engine, corr *reply.Correlator, admin string) *App {
	return &App{store: s, engine: eng, corr: corr, admin: admin}
}

// Instantiate saves the initial configuration and count, then completes the
// instantiate reply token through the engine. It blocks until the reply is
// routed, so the engine must be running.
func (a *App) Instantiate(ctx context.Context, count int32, config map[string]string) (reply.Response, error) {
	if err := a.store.SaveConfig(ctx, config); err != nil {
		return reply.Response{}, err
	}
	if err := a.store.SetCount(ctx, count); err != nil {
		return reply.Response{}, err
	}

	setupID := "instantiate/" + a.engine.NewBatch()
	p, err := a.corr.Acquire(reply.InstantiateReply, setupID)
	if err != nil {
		return reply.Response{}, err
	}
	if _, err := a.engine.Deliver(ir.Reply{
		DispatchID: setupID,
		Token:      uint64(reply.InstantiateReply),
		Outcome:    ir.OutcomeSuccess,
	}); err != nil {
		a.corr.Release(reply.InstantiateReply, setupID)
		return reply.Response{}, fmt.Errorf("instantiate: %w", err)
	}

	resp, err := p.Wait(ctx)
	if err != nil {
		return reply.Response{}, fmt.Errorf("instantiate: %w", err)
	}
	slog.Info("app instantiated", "count", count, "config_entries", len(config))
	return resp, nil
}

// Count returns the current count.
func (a *App) Count(ctx context.Context) (int32, bool, error) {
	return a.store.Count(ctx)
}

// Increment adds one to the count. Admin only.
func (a *App) Increment(ctx context.Context, caller string) (int32, error) {
	if err := a.assertAdmin(caller); err != nil {
		return 0, err
	}
	n, err := a.store.IncrementCount(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotInstantiated
	}
	return n, err
}

// Reset sets the count. Admin only.
func (a *App) Reset(ctx context.Context, caller string, count int32) error {
	if err := a.assertAdmin(caller); err != nil {
		return err
	}
	return a.store.SetCount(ctx, count)
}

func (a *App) assertAdmin(caller string) error {
	if a.admin == "" || caller != a.admin {
		return ir.NewUnauthorizedError(caller)
	}
	return nil
}
