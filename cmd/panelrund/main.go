// Command panelrund serves the run orchestrator over HTTP.
//
// Configuration is environment based (a .env file is honored when present):
//
//	PANELRUN_ADDR            listen address (default :8080)
//	PANELRUN_LOG_LEVEL       debug|info|warn|error (default info)
//	PANELRUN_LOG_FORMAT      json|text (default json)
//	PANELRUN_QUOTA_DB        path to the sqlite quota database (in-memory when unset)
//	PANELRUN_MAX_PARALLEL    default per-run concurrency (default 3)
//	PANELRUN_GLOBAL_MAX      process-wide panel concurrency ceiling (0 = off)
//	OPENAI_API_KEY           platform credential for the openai provider
//	ANTHROPIC_API_KEY        platform credential for the anthropic provider
//	GEMINI_API_KEY           platform credential for the gemini provider
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hupe1980/panelrun"
	"github.com/hupe1980/panelrun/core"
	"github.com/hupe1980/panelrun/engine"
	"github.com/hupe1980/panelrun/logging"
	"github.com/hupe1980/panelrun/quota/sqlite"
	"github.com/hupe1980/panelrun/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "panelrund:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     parseLogLevel(os.Getenv("PANELRUN_LOG_LEVEL")),
		Format:    envOr("PANELRUN_LOG_FORMAT", "json"),
		Output:    os.Stdout,
		Component: "panelrund",
	})

	var store core.UsageStore
	if path := os.Getenv("PANELRUN_QUOTA_DB"); path != "" {
		s, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("open quota store: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("using sqlite quota store", "path", path)
	}

	credentials := engine.StaticCredentials{}
	for provider, env := range map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		if key := os.Getenv(env); key != "" {
			credentials[provider] = key
		}
	}
	if len(credentials) == 0 {
		logger.Warn("no platform provider credentials configured, only BYOK panels will succeed")
	}

	cfg := engine.DefaultConfig
	cfg.DefaultMaxParallel = envInt("PANELRUN_MAX_PARALLEL", cfg.DefaultMaxParallel)
	cfg.GlobalMaxConcurrent = envInt("PANELRUN_GLOBAL_MAX", cfg.GlobalMaxConcurrent)

	pr := panelrun.New(func(o *panelrun.Options) {
		o.EngineConfig = cfg
		o.Credentials = credentials
		o.Logger = logger
		if store != nil {
			o.UsageStore = store
		}
	})
	defer pr.Close()

	srv := server.New(pr.Engine(), func(o *server.Options) {
		o.Addr = envOr("PANELRUN_ADDR", ":8080")
		o.Logger = logger.WithComponent("server")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseLogLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
