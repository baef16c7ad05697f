package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/api"
	"github.com/MikeSquared-Agency/interviewer/internal/config"
	"github.com/MikeSquared-Agency/interviewer/internal/detector"
	"github.com/MikeSquared-Agency/interviewer/internal/drive"
	"github.com/MikeSquared-Agency/interviewer/internal/events"
	"github.com/MikeSquared-Agency/interviewer/internal/interview"
	"github.com/MikeSquared-Agency/interviewer/internal/llm"
	"github.com/MikeSquared-Agency/interviewer/internal/logging"
	"github.com/MikeSquared-Agency/interviewer/internal/protocol"
	"github.com/MikeSquared-Agency/interviewer/internal/qualtrics"
	"github.com/MikeSquared-Agency/interviewer/internal/transcript"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Protocol
	def, err := protocol.Load(cfg.ProtocolFile)
	if err != nil {
		slog.Error("failed to load protocol", "file", cfg.ProtocolFile, "error", err)
		os.Exit(1)
	}
	cfg.ApplyModel(def.Model)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("interviewer starting", "port", cfg.Port, "protocol", def.Name, "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	// Provider, chosen once for the process
	provider, err := llm.New(cfg.LLMProvider, cfg.APIKey(), cfg.LLMBaseURL)
	if err != nil {
		slog.Error("failed to create provider", "error", err)
		os.Exit(1)
	}
	provider = llm.WithRetry(provider, cfg.LLMRetries, cfg.LLMRetryDelay, logger)

	// Transcript store: all three tiers live on the local filesystem.
	store := transcript.NewOSStore(transcript.Dirs{
		Transcripts: cfg.TranscriptsDir,
		Backups:     cfg.BackupsDir,
		Emergency:   cfg.EmergencyDir,
	})

	shutdownOpts := []interview.ShutdownOption{
		interview.WithFinalRetries(cfg.FinalRetries, cfg.FinalRetryDelay),
	}

	// Drive (optional)
	if cfg.DriveEnabled() {
		dc, err := drive.NewClient(ctx, cfg.DriveFolderID, cfg.DriveCredentialsFile, cfg.DriveCredentialsJSON, logger)
		if err != nil {
			slog.Error("failed to create drive client", "error", err)
			os.Exit(1)
		}
		shutdownOpts = append(shutdownOpts, interview.WithUploader(dc))
		slog.Info("drive upload enabled", "folder", cfg.DriveFolderID)
	} else {
		slog.Warn("drive not configured, transcripts stay local")
	}

	// Qualtrics (optional)
	if cfg.QualtricsEnabled() {
		qc := qualtrics.NewClient(cfg.QualtricsAPIToken, cfg.QualtricsSurveyID, cfg.QualtricsDatacenter, logger)
		shutdownOpts = append(shutdownOpts, interview.WithNotifier(qc))
		slog.Info("qualtrics notification enabled", "survey", cfg.QualtricsSurveyID)
	}

	// NATS (optional)
	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nc, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = nc
		shutdownOpts = append(shutdownOpts, interview.WithEvents(nc))
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	shutdown := interview.NewShutdown(store, logger, shutdownOpts...)
	det := detector.FromProtocol(def)
	loc := cfg.Location()

	newDriver := func(entry interview.Entry) *interview.Driver {
		return interview.NewDriver(interview.Options{
			Provider:      provider,
			Protocol:      def,
			Detector:      det,
			Store:         store,
			Shutdown:      shutdown,
			Events:        publisher,
			Logger:        logger,
			Model:         cfg.LLMModel,
			Location:      loc,
			RedirectDelay: cfg.RedirectDelay,
		}, entry)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, newDriver, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("interviewer ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("interviewer stopped")
}
