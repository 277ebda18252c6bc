package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediarelay/internal/bot"
	"mediarelay/internal/cache"
	"mediarelay/internal/circuitbreaker"
	"mediarelay/internal/config"
	"mediarelay/internal/delivery"
	"mediarelay/internal/dispatch"
	"mediarelay/internal/extractor"
	"mediarelay/internal/metrics"
	"mediarelay/internal/ratelimit"
	"mediarelay/internal/server"
	"mediarelay/internal/session"
	"mediarelay/internal/transport"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to config file (overrides CONFIG_FILE env var)")
	flag.Parse()

	// Load environment variables from file
	loadEnvFile(*configFile)

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize metrics
	m := metrics.New()
	m.StartRuntimeMetricsCollector()

	// Initialize circuit breaker around the extraction tool
	breaker := circuitbreaker.New("extractor", cfg, m)
	logger.Info("initialized circuit breaker", zap.String("name", "extractor"))

	// Initialize resolved-URL cache
	urlCache, err := cache.New(ctx, cfg, m)
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer urlCache.Close()

	// Initialize messaging transport
	tg, err := transport.NewTelegram(cfg.Token, logger)
	if err != nil {
		logger.Fatal("failed to initialize transport", zap.Error(err))
	}
	logger.Info("initialized transport")

	// Admission, sessions, extraction, delivery
	gate := ratelimit.New(cfg.Cooldown, cfg.PlatformLimits)
	sessions := session.NewStore()
	runner := extractor.NewRunner(logger, cfg, m, breaker, urlCache)
	policy := delivery.NewPolicy(logger, tg, runner, cfg.MaxSendSize, cfg.SendPause, m)

	// Worker pool
	dispatcher := dispatch.New(logger, m, cfg.Workers, policy.Run)
	dispatcher.Start()
	logger.Info("started workers", zap.Int("count", cfg.Workers))

	b := bot.New(logger, tg, gate, sessions, dispatcher, m, cfg.RequiredGroupID, cfg.RequiredGroupLink)

	// Ops server with health checks
	healthHandler := server.NewHealthHandler(logger, m, map[string]server.Check{
		"extractor": func(context.Context) error {
			_, err := exec.LookPath(cfg.ToolPath)
			return err
		},
		"cache": urlCache.Ping,
	})
	srv := server.New(logger, cfg, healthHandler)
	srv.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx, tg.Events(gctx))
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("bot stopped", zap.Error(err))
	}

	// Drain in-flight jobs, then bring down the ops server
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ExtractTimeout)
	defer cancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		logger.Warn("dispatcher drain interrupted", zap.Error(err))
	}

	shutdownCtx, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// loadEnvFile loads environment variables from a file
// Priority: --config flag > CONFIG_FILE env var > .env file
// Silently continues if file doesn't exist (falls back to OS env vars)
func loadEnvFile(flagConfigFile string) {
	var configFile string

	// 1. Check --config flag
	if flagConfigFile != "" {
		configFile = flagConfigFile
	} else {
		// 2. Check CONFIG_FILE env var
		configFile = os.Getenv("CONFIG_FILE")
	}

	// 3. Try specified file or default to .env
	if configFile != "" {
		// User specified a file - fail if it doesn't exist
		if err := godotenv.Load(configFile); err != nil {
			log.Fatalf("failed to load config file %s: %v", configFile, err)
		}
		log.Printf("loaded config from: %s", configFile)
	} else {
		// Try .env but don't error if it doesn't exist
		if err := godotenv.Load(); err == nil {
			log.Println("loaded config from: .env")
		}
		// Silently continue if .env doesn't exist - will use OS env vars
	}
}
