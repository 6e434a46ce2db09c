package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warden-ai/warden/internal/api"
	"github.com/warden-ai/warden/internal/audit"
	"github.com/warden-ai/warden/internal/capability"
	"github.com/warden-ai/warden/internal/config"
	"github.com/warden-ai/warden/internal/cost"
	"github.com/warden-ai/warden/internal/gateway"
	"github.com/warden-ai/warden/internal/pii"
	"github.com/warden-ai/warden/internal/storage"
	"github.com/warden-ai/warden/internal/store"
	"github.com/warden-ai/warden/internal/twofa"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("WARDEN_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("WARDEN_HTTP_PORT", "8080")
	policyFile := os.Getenv("WARDEN_POLICY_FILE")
	sqlitePath := envOrDefault("WARDEN_SQLITE_PATH", "warden.db")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")

	// Security policy
	policy := config.Default()
	if policyFile != "" {
		var err error
		policy, err = config.LoadPolicy(policyFile)
		if err != nil {
			logger.Fatal("failed to load policy", zap.String("path", policyFile), zap.Error(err))
		}
		logger.Info("policy loaded", zap.String("path", policyFile))
	} else {
		logger.Warn("no WARDEN_POLICY_FILE set, using permissive defaults")
	}
	if v := os.Getenv("WARDEN_OPERATOR_KEY_HASH"); v != "" {
		policy.OperatorKeyHash = v
	}
	if v := os.Getenv("WARDEN_DAILY_COST_LIMIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			policy.DailyCostLimitUSD = f
		}
	}

	logger.Info("starting warden server",
		zap.String("http_port", httpPort),
		zap.Int("blocked_tools", len(policy.BlockedTools)),
		zap.Int("capability_restricted", len(policy.ToolCapabilities)),
		zap.Int("twofa_tools", len(policy.Require2FA)),
		zap.Bool("pii_detection", policy.PIIDetection),
		zap.Float64("daily_cost_limit_usd", policy.DailyCostLimitUSD),
	)

	// Store — Postgres when a DSN is set, embedded SQLite otherwise
	var (
		st  *store.Store
		err error
	)
	if postgresDSN != "" {
		st, err = store.OpenPostgres(postgresDSN, logger)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		logger.Info("postgres connected")
	} else {
		st, err = store.OpenSQLite(sqlitePath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.String("path", sqlitePath), zap.Error(err))
		}
		logger.Info("sqlite store opened", zap.String("path", sqlitePath))
	}
	defer func() { _ = st.Close() }()

	// Audit mirror — ClickHouse or LogWriter fallback
	var mirror storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			mirror = storage.NewLogWriter(logger)
		} else {
			mirror = chWriter
			logger.Info("clickhouse mirror connected")
		}
	} else {
		mirror = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, mirroring audit events to log")
	}
	defer mirror.Close()

	// Security components
	auditLog := audit.NewLogger(st, mirror, logger)
	tracker := cost.NewTracker(st, policy.DailyCostLimitUSD, logger)
	gw := gateway.New(
		capability.NewChecker(capability.Policy{
			BlockedTools:     policy.BlockedTools,
			ToolCapabilities: policy.ToolCapabilities,
		}, logger),
		twofa.NewManager(policy.Require2FA, logger),
		pii.NewScanner(policy.PIIDetection, logger),
		auditLog,
		tracker,
		logger,
	)

	// HTTP operator surface
	deps := &api.Dependencies{
		Gateway:         gw,
		Audit:           auditLog,
		Costs:           tracker,
		Logger:          logger,
		OperatorKeyHash: policy.OperatorKeyHash,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("warden server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
