package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"deviation-classifier-go/internal/api"
	"deviation-classifier-go/internal/config"
	"deviation-classifier-go/internal/history"
	"deviation-classifier-go/internal/inference"
	"deviation-classifier-go/internal/logger"
	"deviation-classifier-go/internal/pipeline"
	"deviation-classifier-go/internal/review"
	"deviation-classifier-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "deviation-classifier-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcriber := transcription.New(transcription.Config{
		URL:          cfg.Transcription.URL,
		Model:        cfg.Transcription.Model,
		Language:     cfg.Transcription.Language,
		Timeout:      cfg.Transcription.Timeout,
		MaxRetryTime: cfg.Transcription.MaxRetryTime,
	}, log.Entry)
	inferrer := inference.New(cfg.ModelPath, log.Entry)
	reviewer := review.New(review.Config{
		APIKey:  cfg.Review.APIKey,
		BaseURL: cfg.Review.BaseURL,
		Model:   cfg.Review.Model,
		Timeout: cfg.Review.Timeout,
	}, log.Entry)

	var store history.Store = history.Nop{}
	if cfg.DatabaseURL != "" {
		pg, err := history.Open(ctx, cfg.DatabaseURL, log.Entry)
		if err != nil {
			log.WithError(err).Fatal("failed to open history store")
		}
		defer pg.Close()
		store = pg
	} else {
		log.Info("DATABASE_URL not set, classifications will not be recorded")
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.New(api.Deps{
			Pipeline:       pipeline.New(transcriber, inferrer, reviewer, log.Entry),
			Transcriber:    transcriber,
			Inferrer:       inferrer,
			Reviewer:       reviewer,
			History:        store,
			Log:            log,
			MaxUploadBytes: cfg.MaxUploadMB << 20,
		}).Routes(),
		ReadTimeout: 60 * time.Second,
		// transcription of a long recording plus one review round trip
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
