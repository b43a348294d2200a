package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"irislab/config"
	"irislab/db"
	qhttp "irislab/http"
	"irislab/logger"
	"irislab/ml"
	"irislab/monitoring"
	"irislab/pipeline"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Path: cfg.Log.Path})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	logger.Set(l)
	defer l.Sync()

	flush, err := logger.InitSentry(logger.SentryOptions{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
	})
	if err != nil {
		l.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		l.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	l.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Model cache, reloaded when the artifact changes on disk
	cache, err := ml.NewArtifactCache(cfg.Cache.Size, pipeline.Schema(), l)
	if err != nil {
		l.Fatal("failed to create model cache", zap.Error(err))
	}
	defer cache.Close()
	if cfg.Cache.Watch {
		if err := cache.Watch(cfg.Model.ArtifactPath); err != nil {
			l.Warn("artifact watch disabled", zap.Error(err))
		}
	}
	if _, err := cache.Get(cfg.Model.ArtifactPath); err != nil {
		l.Warn("model not loaded yet", zap.Error(err))
	}

	sessions, err := qhttp.NewSessionStore(1024)
	if err != nil {
		l.Fatal("failed to create session store", zap.Error(err))
	}

	metrics := monitoring.NewMetricsCollector()
	predictor := pipeline.NewPredictor(pipeline.SettingsFrom(cfg), cache, l)
	predictor.Store = store
	predictor.Metrics = metrics

	app := &qhttp.App{
		Predictor: predictor,
		Cache:     cache,
		History:   store,
		Metrics:   metrics,
		Sessions:  sessions,
		Logger:    l,
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfigFrom(cfg), app)
	go func() {
		if err := server.Start(); err != nil {
			l.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("shutting down")

	if err := server.Stop(); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}

	l.Info("exiting")
}
