package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitsong/usb/internal/adapter"
	"github.com/bitsong/usb/internal/catalog"
	"github.com/bitsong/usb/internal/config"
	"github.com/bitsong/usb/internal/engine"
	"github.com/bitsong/usb/internal/envelope"
	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/metrics"
	"github.com/bitsong/usb/internal/natsrelay"
	"github.com/bitsong/usb/internal/relay"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/store"
	"github.com/bitsong/usb/internal/wire"
)

// stackOptions tunes how a relay stack is opened.
type stackOptions struct {
	Database   string                // overrides the configured db_path
	Registerer prometheus.Registerer // nil disables metrics
	BatchIDs   engine.BatchIDGenerator
}

// relayStack is one wired relay process: store, engine, correlator,
// executor and the transport chosen by the config. Without a NATS URL the
// in-process loopback relay completes every dispatch at once.
type relayStack struct {
	store   *store.Store
	corr    *reply.Correlator
	engine  *engine.Engine
	exec    *relay.Executor
	app     *adapter.App
	adapter *adapter.Adapter
	nats    *natsrelay.Relay

	sub       natsrelay.Subscription
	closeConn func() error
	cancel    context.CancelFunc
	done      chan error
	pending   []*reply.Pending
}

// openStack wires a relay stack. The engine is not running until start.
func openStack(cfg config.Config, opts stackOptions) (*relayStack, error) {
	dbPath := cmp.Or(opts.Database, cfg.DBPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	reg, err := catalog.Load()
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		if m, err = metrics.New(opts.Registerer); err != nil {
			st.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	s := &relayStack{
		store: st,
		corr:  reply.NewCorrelator(),
	}

	var transport engine.Relay
	loop := &relay.Loopback{}
	if cfg.NATSURL != "" {
		conn, closeConn, err := natsrelay.Dial(cfg.NATSURL, "usb")
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to NATS", err)
		}
		s.closeConn = closeConn
		s.nats = natsrelay.New(conn)
		transport = s.nats
	} else {
		transport = loop
	}

	engOpts := []engine.Option{engine.WithMetrics(m)}
	if opts.BatchIDs != nil {
		engOpts = append(engOpts, engine.WithBatchIDGenerator(opts.BatchIDs))
	}
	s.engine = engine.New(st, transport, s.corr, engOpts...)
	loop.Engine = s.engine

	s.exec = relay.NewExecutor(
		wire.NewEncoder(reg),
		envelope.NewBuilder(cfg.Envelope()),
		s.engine,
		s.corr,
		relay.WithMetrics(m),
	)
	s.adapter = adapter.NewAdapter(st, cfg.Resolver())
	s.app = adapter.NewApp(st, s.engine, s.corr, cfg.Admin)

	slog.Debug("relay stack opened",
		"db", dbPath,
		"host_chain", cfg.HostChain,
		"nats", cfg.NATSURL != "",
	)
	return s, nil
}

// start recovers persisted state, subscribes to replies when relaying over
// NATS and runs the engine loop in the background.
func (s *relayStack) start(ctx context.Context) error {
	pending, err := s.engine.Recover(ctx)
	if err != nil {
		return err
	}
	s.pending = pending

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.nats != nil {
		sub, err := s.nats.Listen(runCtx, s.engine)
		if err != nil {
			cancel()
			return WrapExitError(ExitCommandError, "failed to subscribe to replies", err)
		}
		s.sub = sub
	}

	s.done = make(chan error, 1)
	go func() {
		s.done <- s.engine.Run(runCtx)
	}()
	return nil
}

// awaitReply polls the log until a reply for dispatchID is recorded.
func (s *relayStack) awaitReply(ctx context.Context, dispatchID string) (ir.Reply, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		r, found, err := s.store.ReadReply(ctx, dispatchID)
		if err != nil {
			return ir.Reply{}, err
		}
		if found {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return ir.Reply{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// wait blocks until the engine loop returns.
func (s *relayStack) wait() error {
	err := <-s.done
	s.done = nil
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close drains the engine and releases the store and the NATS connection.
func (s *relayStack) Close() error {
	if s.done != nil {
		s.engine.Stop()
		if err := s.wait(); err != nil {
			slog.Error("engine stopped with error", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.closeConn != nil {
		if err := s.closeConn(); err != nil {
			slog.Warn("error draining NATS connection", "error", err)
		}
	}
	return s.store.Close()
}
