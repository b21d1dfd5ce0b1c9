package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/khanhnv2901/headerscope/internal/api"
	"github.com/khanhnv2901/headerscope/internal/application"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headerscope as a REST API service",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config
		logger := appCtx.Logger

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		container, err := application.NewContainer(application.Options{
			FetchTimeout: cfg.Scan.Timeout,
			WAFDetection: cfg.Scan.WAFDetection,
			Logger:       logger,
			Registerer:   registry,
		})
		if err != nil {
			return err
		}

		health := &healthAPIService{scanner: container.ScanService}
		server := api.NewServer(api.Config{
			Scanner:     container.ScanService,
			Health:      health,
			AuthToken:   cfg.Serve.AuthToken,
			Logger:      logger,
			Metrics:     api.NewMetrics(registry),
			CORSOrigins: cfg.Serve.CORSOrigins,
			RateLimit:   cfg.Serve.RateLimit,
			RateBurst:   cfg.Serve.RateBurst,
			TrustProxy:  cfg.Serve.TrustProxy,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              cfg.Serve.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Scans can legitimately take the whole fetch timeout
			WriteTimeout: cfg.Scan.Timeout + 10*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		ln, err := net.Listen("tcp", cfg.Serve.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Serve.Addr, err)
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s API server listening on %s\n", colorInfo("→"), ln.Addr())
		fmt.Fprintf(out, "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
		logger.Info("server_started",
			zap.String("addr", ln.Addr().String()),
			zap.Duration("fetch_timeout", cfg.Scan.Timeout),
			zap.Bool("waf_detection", cfg.Scan.WAFDetection),
			zap.Int("rate_limit", cfg.Serve.RateLimit),
		)

		health.ready.Store(true)
		if err := runServer(ctx, httpServer, ln, cfg.Serve.ShutdownTimeout, out); err != nil {
			return err
		}

		logger.Info("server_stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", defaultAddr, "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests (X-Auth-Token)")
	serveCmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", defaultRateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", defaultRateBurst, "Rate limit burst size")
	serveCmd.Flags().Bool("trust-proxy", false, "Use X-Forwarded-For to identify clients")
	addScanFlags(serveCmd.Flags())
}

// runServer serves on ln until ctx is done, then shuts down gracefully,
// forcing connections closed if shutdownTimeout elapses first.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, out io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintf(out, "\n%s Initiating graceful shutdown...\n", colorInfo("→"))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			if closeErr := srv.Close(); closeErr != nil {
				return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
			}
			return fmt.Errorf("failed to gracefully shutdown server: %w", err)
		}

		fmt.Fprintf(out, "%s Server shutdown complete\n", colorInfo("✓"))
		return nil
	})

	return g.Wait()
}

type healthAPIService struct {
	scanner api.ScanService
	ready   atomic.Bool
}

func (s *healthAPIService) Check(ctx context.Context) error {
	if s.scanner == nil {
		return fmt.Errorf("scan service not configured")
	}
	return nil
}

func (s *healthAPIService) Ready(ctx context.Context) error {
	if err := s.Check(ctx); err != nil {
		return err
	}
	if !s.ready.Load() {
		return fmt.Errorf("server is starting")
	}
	return nil
}
