package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpAdapter "github.com/suggestkit/rankstats/internal/adapter/http"
	"github.com/suggestkit/rankstats/internal/persistence"
	"github.com/suggestkit/rankstats/internal/stats"
)

const (
	Version     = "1.0.0"
	ServiceName = "rankstats"
)

type Config struct {
	HTTPPort int
	DataDir  string

	FlushInterval time.Duration
	MemoryBudget  int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration

	EnableCORS bool
}

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Printf("%s v%s starting (dir=%s, shards=%d, budget=%s)",
		ServiceName, Version, cfg.DataDir, stats.ShardCount, formatBytes(cfg.MemoryBudget))

	fileStore := persistence.NewFileStore(filepath.Join(cfg.DataDir, "stat"), persistence.DefaultCodec())
	store := stats.NewStore(stats.Config{
		Storage:           fileStore,
		MemoryBudgetBytes: cfg.MemoryBudget,
	})

	flushCtx, stopFlusher := context.WithCancel(context.Background())
	go periodicFlush(flushCtx, store, cfg.FlushInterval)

	httpCfg := httpAdapter.DefaultServerConfig()
	httpCfg.Port = cfg.HTTPPort
	httpCfg.ReadTimeout = cfg.HTTPReadTimeout
	httpCfg.WriteTimeout = cfg.HTTPWriteTimeout
	httpCfg.IdleTimeout = cfg.HTTPIdleTimeout
	httpCfg.EnableCORS = cfg.EnableCORS

	srv := httpAdapter.NewServer(store, httpCfg)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()
	log.Printf("HTTP server started on :%d", cfg.HTTPPort)

	gracefulShutdown(cfg, srv, store, stopFlusher)
}

// periodicFlush persists dirty shards on a fixed cadence until ctx is
// done, then performs one final flush.
func periodicFlush(ctx context.Context, store *stats.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = store.Flush()
			return
		case <-ticker.C:
			_ = store.Flush()
		}
	}
}

func gracefulShutdown(cfg *Config, srv *httpAdapter.Server, store *stats.Store, stopFlusher context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigCh
	log.Printf("Signal received: %v", sig)
	log.Println("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	stopFlusher()

	if err := store.Flush(); err != nil {
		log.Printf("Final flush error: %v", err)
	} else {
		log.Println("Statistics flushed")
	}

	st := store.Stats()
	log.Printf("Final state: %d resident units, %s in memory",
		st.ResidentUnits, formatBytes(st.MemoryUsed))
	log.Println("Shutdown complete")
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		HTTPPort: getenvInt("PORT", 8080),
		DataDir:  getenv("DATA_DIR", "./data"),

		FlushInterval: getenvDuration("FLUSH_INTERVAL", 30*time.Second),
		MemoryBudget:  int64(getenvInt("MEMORY_BUDGET_BYTES", 0)),

		HTTPReadTimeout:  getenvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		HTTPWriteTimeout: getenvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:  getenvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout:  getenvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		EnableCORS: getenvBool("ENABLE_CORS", false),
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("PORT must be 1-65535, got %d", cfg.HTTPPort)
	}
	if cfg.MemoryBudget < 0 {
		return nil, fmt.Errorf("memory budget cannot be negative")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	return cfg, nil
}

func getenv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getenvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getenvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
