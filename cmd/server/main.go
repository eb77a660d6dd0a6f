// Package main is the entry point for the prognos energy forecast pipeline.
// The service reconstructs consumption from metered history, forecasts the
// coming week per grid connection point, splits it into residual loads and
// delivers the results to the internal schedule management and the external
// trading partner under their gate closures.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voltatlas/prognos/internal/bus"
	"github.com/voltatlas/prognos/internal/config"
	"github.com/voltatlas/prognos/internal/database"
	"github.com/voltatlas/prognos/internal/exchange"
	"github.com/voltatlas/prognos/internal/predictor"
	"github.com/voltatlas/prognos/internal/scheduler"
	"github.com/voltatlas/prognos/internal/server"
	"github.com/voltatlas/prognos/internal/service"
	"github.com/voltatlas/prognos/internal/storage"
	"github.com/voltatlas/prognos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting prognos")

	// Databases: the locations store carries the shipment audit trail, the
	// metering archive is read-only history.
	locationsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "locations.db"),
		Profile: database.ProfileLedger,
		Name:    "locations",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open locations database")
	}
	defer locationsDB.Close()

	meteringDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "metering.db"),
		Profile: database.ProfileStandard,
		Name:    "metering",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open metering database")
	}
	defer meteringDB.Close()

	store, err := storage.NewStore(locationsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize locations store")
	}
	metering, err := exchange.NewMeteringRetriever(meteringDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metering retriever")
	}

	ctx := context.Background()
	fileStore, err := exchange.NewS3FileStore(ctx, cfg.S3, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize exchange file store")
	}

	sender := exchange.NewDeliverySender(
		exchange.NewEmailSender(cfg.SMTP, log),
		exchange.NewPartnerUploader(fileStore, log),
	)

	b := bus.New(log)
	handlers := service.NewHandlers(service.Config{
		UnitOfWork:  store.Factory(),
		Retrievers:  exchange.NewRegistry(fileStore, log),
		Metering:    metering,
		Sender:      sender,
		Predictor:   predictor.NewProfilePredictor(),
		Recipient:   cfg.InternalRecipient,
		SendEnabled: cfg.SendPredictionsEnabled,
	}, log)
	handlers.Register(b)

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		Bus:         b,
		UnitOfWork:  store.Factory(),
		LocationsDB: locationsDB,
		MeteringDB:  meteringDB,
		Port:        cfg.Port,
	})
	b.Observe(srv.EventStreamSink().Publish)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.UpdatePredictSchedule, scheduler.NewUpdatePredictJob(b, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register update job")
	}
	if err := sched.AddJob(cfg.PartnerForwardSchedule, scheduler.NewPartnerForwardJob(b, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register partner forward job")
	}
	sched.Start()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}
