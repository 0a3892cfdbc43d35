package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyward/ledgercore/internal/graph"
	"github.com/tallyward/ledgercore/internal/service"
	"github.com/tallyward/ledgercore/internal/storage/sqlite"
	"github.com/tallyward/ledgercore/internal/txn"
	"github.com/tallyward/ledgercore/pkg/logging"
	"github.com/tallyward/ledgercore/pkg/metrics"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logging.Setup()

	dbPath := getEnv("DB_PATH", "./data/ledger.db")
	port := getEnvInt("PORT", 8080)

	store, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", dbPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	engine := service.New(store, service.Config{
		Txn: txn.Config{
			MaxNestingDepth: getEnvInt("MAX_NESTING_DEPTH", txn.DefaultMaxNestingDepth),
			CommitTimeout:   getEnvDuration("COMMIT_TIMEOUT", txn.DefaultCommitTimeout),
		},
		Graph: graph.Config{
			MaxDepth: getEnvInt("GRAPH_MAX_DEPTH", graph.DefaultMaxDepth),
		},
		Metrics: metrics.NewTransactionMetrics(reg),
		Logger:  slog.Default(),
	})

	mux := http.NewServeMux()
	registerRoutes(mux, engine)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := loggingMiddleware(corsMiddleware(mux))

	addr := fmt.Sprintf(":%d", port)
	slog.Info("Ledger server starting", "address", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
