package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/reconciler"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("metrics-addr", "", "Address for /metrics, /health and /ready (default: metrics.addr)")
	serveCmd.Flags().Duration("health-interval", time.Minute, "How often upstream health is checked")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the certificate renewer and expose metrics",
	Long: `Serve keeps running in the foreground. It renews certificates on the
configured interval, refreshes inventory gauges and serves Prometheus
metrics alongside /health and /ready endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = a.cfg.Metrics.Addr
		}
		healthInterval, _ := cmd.Flags().GetDuration("health-interval")

		metrics.SetVersion(Version)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fmt.Println("Starting Burrow...")
		fmt.Printf("  Base domain: %s\n", a.rec.BaseDomain())
		fmt.Printf("  Resolvers: %s\n", a.resolver)
		fmt.Printf("  Store: %s\n", a.store.Path())
		fmt.Printf("  Issuer: %s\n", a.issuer.Name())
		fmt.Printf("  Metrics: %s\n", addr)
		fmt.Println()

		sub := a.broker.Subscribe()
		defer a.broker.Unsubscribe(sub)
		go logEvents(sub)

		healthConfig := health.DefaultConfig()
		healthConfig.Interval = healthInterval
		monitor := health.NewMonitor(healthConfig, metrics.UpdateComponent)
		a.registerChecks(monitor)
		monitor.Start(ctx)
		fmt.Println("✓ Health monitor started")

		renewer := reconciler.NewRenewer(a.rec, a.cfg.Certs.RenewInterval, a.cfg.Certs.RenewBeforeDays)
		renewer.Start(ctx)
		fmt.Println("✓ Certificate renewer started")

		collector := metrics.NewCollector(a.rec, 5*time.Minute)
		collector.Start()
		fmt.Println("✓ Metrics collector started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %v", err)
			}
		}()

		fmt.Println()
		fmt.Println("Burrow is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Logger.Warn().Err(err).Msg("Metrics server did not shut down cleanly")
		}

		cancel()
		renewer.Stop()
		collector.Stop()
		monitor.Stop()

		if n := a.broker.Dropped(); n > 0 {
			log.Logger.Warn().Uint64("dropped", n).Msg("Event subscribers fell behind")
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for e := range sub {
		ev := logger.Info()
		if e.Type.Failure() {
			ev = logger.Warn()
		}
		for k, v := range e.Metadata {
			ev = ev.Str(k, v)
		}
		ev.Str("event", string(e.Type)).Str("event_id", e.ID).Msg(e.Message)
	}
}
