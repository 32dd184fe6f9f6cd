package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the server and blocks until a shutdown signal arrives.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}

	if err := s.Start(); err != nil {
		return err
	}

	// Prometheus-format metrics endpoint, if configured.
	s.StartMetricsHTTP()

	// Periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	slog.Info("chat relay running",
		"addr", s.cfg.ListenAddr,
		"db", s.cfg.DBPath,
		"history_limit", s.cfg.HistoryLimit,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}
