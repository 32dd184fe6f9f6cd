package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chatrelay/chatrelay/pkg/logging"
	"github.com/chatrelay/chatrelay/pkg/server"
	"github.com/chatrelay/chatrelay/pkg/store"
	"github.com/chatrelay/chatrelay/pkg/version"
)

func main() {
	defaults := server.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file (flags override it)")
	listenAddr := flag.String("listen", defaults.ListenAddr, "TCP bind address")
	dbPath := flag.String("db", defaults.DBPath, "SQLite database file path")
	historyLimit := flag.Int("history-limit", defaults.HistoryLimit, "Chat lines replayed after login")
	metricsAddr := flag.String("metrics", defaults.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags given on the command line take precedence over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "db":
			cfg.DBPath = *dbPath
		case "history-limit":
			cfg.HistoryLimit = *historyLimit
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	slog.Info("starting chat relay", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Store: st})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
