package main

import (
	"context"
	stderrs "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/questlabs/quest-profile/pkg/ai"
	"github.com/questlabs/quest-profile/pkg/bootstrap"
	"github.com/questlabs/quest-profile/pkg/config"
	"github.com/questlabs/quest-profile/pkg/db"
	"github.com/questlabs/quest-profile/pkg/extraction"
	"github.com/questlabs/quest-profile/pkg/notify"
	"github.com/questlabs/quest-profile/pkg/profile"
	"github.com/questlabs/quest-profile/pkg/server"
)

func main() {
	logger := bootstrap.NewLogger()

	envs, err := config.LoadConfig(true)
	if err != nil {
		panic(errors.Wrap(err, "Unable to load config"))
	}
	logger.Info("Using database path", "path", envs.DBPath)

	natsServer, err := bootstrap.StartEmbeddedNATSServer(logger)
	if err != nil {
		panic(errors.Wrap(err, "Unable to start nats server"))
	}
	defer natsServer.Shutdown()

	nc, err := bootstrap.NewNatsClient()
	if err != nil {
		panic(errors.Wrap(err, "Unable to create nats client"))
	}
	defer nc.Close()
	logger.Info("NATS client started")

	store, err := db.NewStore(envs.DBPath, logger)
	if err != nil {
		logger.Error("Unable to create or initialize database", "error", err)
		panic(errors.Wrap(err, "Unable to create or initialize database"))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()
	logger.Info("SQLite database initialized")

	repository := profile.NewRepository(store.DB(), logger)
	aiService := ai.NewOpenAIService(logger, envs.CompletionsAPIKey, envs.CompletionsAPIURL)
	extractor := extraction.NewExtractor(logger, aiService, envs.ExtractionModel)
	notifier := notify.NewService(nc)

	extractionService := extraction.NewService(extraction.ServiceInput{
		Logger:    logger,
		Extractor: extractor,
		Store:     repository,
		Notifier:  notifier,
		Timeout:   envs.ExtractionTimeout,
	})

	srv := server.New(server.Input{
		Logger:     logger,
		Service:    extractionService,
		Repository: repository,
		NatsClient: nc,
	})

	httpServer := &http.Server{
		Addr:    ":" + envs.HTTPPort,
		Handler: srv.Handler(envs.AllowedOrigins),
	}

	go func() {
		logger.Info("HTTP server listening", "port", envs.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !stderrs.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", "error", err)
			panic(errors.Wrap(err, "HTTP server stopped unexpectedly"))
		}
	}()

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()
	<-appCtx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}
}
