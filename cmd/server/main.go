// Package main is the entry point for the trade admission engine: the
// gate chain, signal validator, adaptive symbol risk state, position
// replacement and command reconciliation loops, plus the ops API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/admission"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/api"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/decision"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/engine"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/lock"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/market"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/queue"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/replacement"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/riskstate"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/store"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/tracker"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/validator"
	"github.com/MikeHotel0815/ngTradingBot-sub001/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Config file path (YAML)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting trade admission engine",
		zap.String("config", *configPath),
		zap.Strings("accounts", cfg.Engine.Accounts),
		zap.Bool("redis", cfg.Redis.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage and coordination primitives. Redis serves the distributed
	// lock and the command queue when enabled; single-process runs use
	// the in-memory implementations.
	st := store.NewMemoryStore(logger)
	var (
		locker lock.Locker
		q      queue.Queue
	)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable at startup, lock will fail open",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locker = lock.NewRedisLocker(client, logger)
		q = queue.NewRedisQueue(client)
	} else {
		locker = lock.NewMemoryLocker()
		q = queue.NewMemoryQueue()
	}

	recorder := metrics.New()
	hub := api.NewHub(logger)
	decisions := decision.NewLogger(st, logger, hub)

	marketState := market.NewState()
	spread := market.NewSpreadTracker()

	breaker := tracker.NewCircuitBreaker(logger, recorder,
		cfg.Risk.MaxDailyLossPercent,
		cfg.Risk.MaxTotalDrawdownPercent,
		cfg.Risk.BreakerFailureThreshold)
	cmdTracker := tracker.NewTracker(logger, st, q, breaker, recorder, decisions, cfg.Engine.CommandTimeout)

	riskCtl := riskstate.NewController(logger, st, decisions,
		cfg.Risk.MinAutotradeConfidence,
		cfg.Risk.PauseAfterConsecutiveLosses,
		cfg.Risk.ResumeAfterCooldownHours)

	replacer := replacement.NewManager(logger, st, q, cmdTracker, decisions, recorder, cfg.Replacement)

	admissionCtl := admission.NewController(logger, cfg, admission.Deps{
		Store:      st,
		Locker:     locker,
		Queue:      q,
		Tracker:    cmdTracker,
		Breaker:    breaker,
		RiskCtl:    riskCtl,
		Replacer:   replacer,
		Ticks:      marketState,
		Accounts:   marketState,
		Indicators: marketState,
		Calendar:   marketState,
		Spread:     spread,
		Decisions:  decisions,
		Metrics:    recorder,
	})

	sigValidator := validator.New(logger, st, marketState, marketState, decisions, recorder)

	eng := engine.New(logger, cfg, admissionCtl, sigValidator, cmdTracker,
		breaker, riskCtl, replacer, marketState, recorder)

	server := api.NewServer(logger, cfg.Server, eng, breaker, st, marketState, spread, hub)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Engine started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)))

	<-sigChan
	logger.Info("Shutdown signal received")

	cancel()

	if err := eng.Stop(); err != nil {
		logger.Error("Error stopping engine", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Engine stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
