// Package main provides the voxnote daemon entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/voxnote/voxnote/internal/capture"
	"github.com/voxnote/voxnote/internal/config"
	"github.com/voxnote/voxnote/internal/enrich"
	"github.com/voxnote/voxnote/internal/server"
	"github.com/voxnote/voxnote/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	listen := flag.String("listen", "", "API listen address (default from config)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.voxnote)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment as-is")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.RecordingsDir = *dataDir + "/recordings"
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if cfg.OpenAI.APIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is required")
	}

	if err := cfg.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	persistence, err := store.NewSQLitePersistence(store.SQLiteConfig{
		Path:     cfg.DBPath(),
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer persistence.Close()

	notes, err := store.Open(ctx, persistence, store.OSArtifactChecker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load note catalog")
	}

	service := enrich.NewOpenAIService(enrich.OpenAIConfig{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		AnalyzeModel:    cfg.OpenAI.AnalyzeModel,
	})
	pipeline := enrich.NewPipeline(ctx, service, notes)
	controller := capture.NewController(notes, pipeline)
	api := server.New(notes, controller, pipeline, cfg.RecordingsDir)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(ctx, cfg.ListenAddr)
	})

	if cfg.WatchInbox {
		watcher, err := capture.NewInboxWatcher(ctx, cfg.RecordingsDir, controller)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create inbox watcher")
		}
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start inbox watcher")
		}
		g.Go(func() error {
			<-ctx.Done()
			return watcher.Stop()
		})
	}

	log.Info().
		Str("version", Version).
		Str("dataDir", cfg.DataDir).
		Int("notes", notes.Len()).
		Msg("voxnote started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown with error")
	}

	// Let in-flight enrichment reach a terminal state before closing the DB.
	pipeline.Wait()
	log.Info().Msg("voxnote stopped")
}
