package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/Clarence404/batchkit/internal/relay"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultMetricsAddr     = ":9090"
	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	configPathFlag := flag.String("config", "batch-relay.yaml", "path to the relay config file")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "address to listen on for prometheus metrics")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	log := newLogger(*verboseFlag)

	cfg, err := relay.LoadConfig(*configPathFlag)
	if err != nil {
		log.Error("failed to load config", "path", *configPathFlag, "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	if *metricsAddrFlag != "" {
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	r, err := relay.New(cfg, log, reg)
	if err != nil {
		log.Error("failed to create relay", "error", err)
		return err
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", "address", cfg.ListenAddr, "upstream", cfg.UpstreamURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Drain buffered events into final upstream batches before exit.
	r.Close()
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
	}))
}
