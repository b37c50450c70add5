package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/api"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/auth"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/feedback"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/notify"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/service"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := internal.NewLogger(cfg.LogLevel, cfg.LogPath)

	if cfg.DBType == "file" {
		if _, err := os.Stat("data"); os.IsNotExist(err) {
			_ = os.Mkdir("data", 0755)
		}
	}

	store, err := storage.NewStore(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}

	clk := clock.SystemClock{}
	cat := catalog.Default()
	engine := service.NewEngine(store, clk, cat, cfg, logger)
	sessions := service.NewSessionManager(engine, clk, cfg, logger)

	queue := notify.NewQueue(notify.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, logger), logger)
	detector := service.NewDetector(store, queue, clk, cfg, logger)

	var dispatcher *feedback.Dispatcher
	if cfg.OpenAIKey != "" {
		dispatcher = feedback.NewDispatcher(feedback.NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIModel), logger)
	}

	var provider auth.Provider
	if cfg.Env == "development" {
		provider = auth.NewLocalAuthProvider(cfg.AuthToken, logger)
	} else {
		provider = auth.NewRemoteAuthProvider(cfg.AuthServiceURL, logger)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	app := &api.App{
		Sessions: sessions,
		Engine:   engine,
		Detector: detector,
		Store:    store,
		Feedback: dispatcher,
		Logger:   logger,
	}
	app.Routes(r, provider, cfg)

	// Scheduled scans and session sweeping run in-process; the HTTP scan
	// endpoints remain available for an external scheduler to drive instead.
	scanCtx, stopScans := context.WithCancel(context.Background())
	go runScans(scanCtx, detector, clk, time.Duration(cfg.ScanIntervalM)*time.Minute, logger)
	go sweepSessions(scanCtx, sessions)

	go func() {
		logger.Infof("server running on :%s", cfg.Port)
		if err := r.Run(":" + cfg.Port); err != nil {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopScans()
	if err := store.Close(); err != nil {
		logger.Errorf("failed to flush storage: %v", err)
	}
	logger.Info("shutdown complete")
}

func runScans(ctx context.Context, detector *service.Detector, clk clock.Clock, interval time.Duration, logger internal.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := clk.Now()
			if _, err := detector.RunScan(ctx, now); err != nil {
				logger.Errorf("scheduled pattern scan failed: %v", err)
			}
			if _, err := detector.RunGhostingScan(ctx, now); err != nil {
				logger.Errorf("scheduled ghosting scan failed: %v", err)
			}
		}
	}
}

func sweepSessions(ctx context.Context, sessions *service.SessionManager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep()
		}
	}
}
