package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/bitsong/usb/internal/reply"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay engine and record replies",
		Long: `Start the relay engine as a long-running process.

The engine recovers from the database, re-arms the reply tokens of
dispatches still waiting for a reply and, when nats_url is configured,
subscribes to the reply subject of the host chain. Every reply that
arrives is logged and routed until the process is interrupted.

With --metrics-addr the Prometheus counters are served on /metrics.

Example:
  usb run --config usb.yaml
  usb run --config usb.yaml --metrics-addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to db_path from config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	registry := prometheus.NewRegistry()
	stack, err := openStack(cfg, stackOptions{
		Database:   opts.Database,
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if opts.MetricsAddr != "" {
		srv := metricsServer(opts.MetricsAddr, registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	if err := stack.start(ctx); err != nil {
		return err
	}
	for _, p := range stack.pending {
		go logLateReply(ctx, p)
	}

	slog.Info("relay running", "host_chain", cfg.HostChain, "pending", len(stack.pending))
	fmt.Fprintln(cmd.OutOrStdout(), "Relay started. Waiting for replies...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := stack.wait(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// logLateReply reports the reply of a dispatch sent before this run.
func logLateReply(ctx context.Context, p *reply.Pending) {
	resp, err := p.Wait(ctx)
	if err != nil {
		return
	}
	slog.Info("recovered dispatch completed",
		"dispatch_id", p.DispatchID,
		"action", resp.Action,
		"outcome", resp.Outcome,
	)
}

func metricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
