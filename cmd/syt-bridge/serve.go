package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devblac/syt-bridge/internal/cache"
	"github.com/devblac/syt-bridge/internal/health"
	"github.com/devblac/syt-bridge/internal/httpapi"
	"github.com/devblac/syt-bridge/internal/metrics"
	"github.com/spf13/cobra"
)

var flagListen string

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "HTTP listen address (overrides global.listen)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the debate and evidence HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfgPath, appOptions{withMetrics: true, withSinks: true})
		if err != nil {
			return err
		}
		defer a.close()

		addr := a.cfg.Global.Listen
		if flagListen != "" {
			addr = flagListen
		}

		srv := newAPIServer(a, addr)

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("http listening", "addr", addr, "chains", a.registry.ChainIDs())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown", "err", err)
		}
		return nil
	},
}

// newAPIServer builds the HTTP server for the routes, health and metrics.
func newAPIServer(a *app, addr string) *http.Server {
	checker := health.Checker{
		DBPing:  a.store.Ping,
		RPCPing: health.NewRPCChecker(a.registry).Ping,
	}
	if rc, ok := a.cache.(*cache.Redis); ok {
		checker.CachePing = rc.Ping
	}

	api := httpapi.New(httpapi.Config{
		Service: a.svc,
		Logger:  a.log,
		RateLimit: httpapi.RateLimit{
			RequestsPerMinute: float64(a.cfg.HTTP.RequestsPerMinute),
			Burst:             a.cfg.HTTP.Burst,
		},
		TrustProxy: a.cfg.HTTP.TrustProxy,
		Health:     health.Handler(checker),
		Metrics:    metrics.Handler(),
	})
	return &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
