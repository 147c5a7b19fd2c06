package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobsift/jobsift/pkg/analyzer"
	"github.com/jobsift/jobsift/pkg/config"
	"github.com/jobsift/jobsift/pkg/database"
	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/prompt"
	"github.com/jobsift/jobsift/pkg/sanitize"
	"github.com/jobsift/jobsift/pkg/scheduler"
	"github.com/jobsift/jobsift/pkg/seclog"
	"github.com/jobsift/jobsift/pkg/store"
	"github.com/jobsift/jobsift/pkg/validator"
	"github.com/jobsift/jobsift/pkg/version"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "jobsift",
		Short:         "Tiered job posting analysis pipeline",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "jobsift.yaml",
		"path to the optional YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newScheduleCmd(&configPath),
		newStatusCmd(&configPath),
		newTierCmd(&configPath, models.Tier1),
		newTierCmd(&configPath, models.Tier2),
		newTierCmd(&configPath, models.Tier3),
		newAllCmd(&configPath),
	)
	return root
}

// pipeline bundles everything a command needs.
type pipeline struct {
	settings  *config.Settings
	db        *database.Client
	store     store.Store
	client    *llm.Client
	scheduler *scheduler.Scheduler
}

func (p *pipeline) close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}
}

// buildPipeline loads settings and wires the full stack. Configuration
// problems come back as usageError.
func buildPipeline(ctx context.Context, configPath string) (*pipeline, error) {
	settings, err := config.Initialize(configPath)
	if err != nil {
		return nil, usageError{err}
	}
	if err := settings.Validate(); err != nil {
		return nil, usageError{err}
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, usageError{err}
	}
	db, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to PostgreSQL database")

	jsonl, err := seclog.NewJSONLSink(settings.StorageDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	sink := seclog.MultiSink{jsonl, seclog.NewPostgresSink(db.DB)}

	registry := prompt.NewRegistry(
		filepath.Join(settings.StorageDir, "prompt_hashes.json"), sink)
	if err := registry.RegisterBuiltins(); err != nil {
		db.Close()
		return nil, err
	}

	catalog := llm.DefaultCatalog()
	ledger := llm.NewLedger(
		filepath.Join(settings.StorageDir, "gemini_usage.json"),
		settings.DailyTokenLimit, settings.DailyRequestLimit)
	client := llm.NewClient(llm.Config{
		APIKey:         settings.GeminiAPIKey,
		BaseURL:        settings.GeminiBaseURL,
		MaxRetries:     settings.MaxRetries,
		RequestTimeout: settings.RequestTimeout(),
		Temperature:    settings.Temperature,
		FallbackModel:  settings.FallbackModel,
	}, catalog, ledger, sink)
	client.RefreshCatalog(ctx)

	val, err := validator.NewService(sink, sanitize.NewService(sink))
	if err != nil {
		db.Close()
		return nil, err
	}

	st := store.NewPostgres(db.DB)
	engine := analyzer.NewEngine(st, client, registry, val, sink)

	windows, err := scheduleWindows(settings)
	if err != nil {
		db.Close()
		return nil, usageError{err}
	}
	sched := scheduler.New(engine, client, windows, settings.ScheduleTick())

	return &pipeline{
		settings:  settings,
		db:        db,
		store:     st,
		client:    client,
		scheduler: sched,
	}, nil
}

// scheduleWindows converts configured windows, falling back to the default
// overnight schedule when none are set.
func scheduleWindows(settings *config.Settings) (scheduler.Windows, error) {
	if len(settings.Windows) == 0 {
		return scheduler.DefaultWindows(), nil
	}

	names := map[string]models.Tier{
		"tier1": models.Tier1,
		"tier2": models.Tier2,
		"tier3": models.Tier3,
	}
	windows := scheduler.DefaultWindows()
	for name, w := range settings.Windows {
		tier, ok := names[name]
		if !ok {
			continue
		}
		start, end, err := w.Minutes()
		if err != nil {
			return nil, err
		}
		windows[tier] = scheduler.Window{Start: start, End: end}
	}
	return windows, nil
}

func initLogging() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
