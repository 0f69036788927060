package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spcguard/internal/alerts"
	"spcguard/internal/api"
	"spcguard/internal/catalog"
	"spcguard/internal/config"
	"spcguard/internal/engine"
	"spcguard/internal/ingest"
	"spcguard/internal/logging"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/publish"
	"spcguard/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingest, alert generation and the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	manager, err := loadManager()
	if err != nil {
		return err
	}
	cfg := manager.Get()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		alertRepo engine.AlertRepository = alerts.NewStore(cfg.Alerts.StoreLimit)
		history   engine.MeasurementRepository
	)
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
		alertRepo = store
		history = store
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	summaries := metrics.NewStore(cfg.Metrics.StoreLimit)
	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), catalog.New(cfg.Parameters), summaries, alertRepo, history)
	if cfg.Publish.Enabled {
		pub := publish.NewKafkaPublisher(cfg.Publish, logging.Component(logger, "publish"))
		defer pub.Close()
		eng.SetPublisher(pub)
	}

	measurements := make(chan model.Measurement, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, measurements)

	ingestLogger := logging.Component(logger, "ingest")
	ingest.StartREST(ctx, manager, measurements, ingestLogger)
	ingest.StartTCPStream(ctx, manager, measurements, ingestLogger)
	ingest.StartFileTail(ctx, manager, measurements, ingestLogger)
	ingest.StartKafka(ctx, manager, ingest.NewParser(), measurements, ingestLogger)
	api.Start(ctx, manager, eng, summaries, logging.Component(logger, "api"), version)

	go manager.Watch(ctx, 3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		logger.Info("config reloaded", "path", manager.Path(), "parameters", len(next.Parameters))
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	})

	logger.Info("spcguard started", "version", version, "parameters", len(cfg.Parameters))
	<-ctx.Done()
	logger.Info("spcguard stopping")
	return nil
}
