package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sessionhouse/internal/audit"
	"sessionhouse/internal/config"
	"sessionhouse/internal/metrics"
	sessionhousenet "sessionhouse/internal/net"
	"sessionhouse/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	collector := metrics.New(prometheus.DefaultRegisterer)

	auditWriter := io.Discard
	if cfg.Logging.AuditPath != "" && cfg.Logging.AuditPath != "-" {
		f, err := os.OpenFile(cfg.Logging.AuditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Logging.AuditPath).Msg("failed to open audit log")
		}
		defer f.Close()
		auditWriter = f
	}
	auditSink := audit.New(auditWriter, log.Logger)
	defer auditSink.Close()

	sv := supervisor.New(cfg.Session.SnapshotDepth, collector, auditSink, log.Logger)

	srv := sessionhousenet.New(
		cfg.Listen.Address, cfg.Listen.Port, sv,
		cfg.Session.WorkerPoolSize, cfg.Session.ReapInterval, log.Logger,
	)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Listen.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}
