package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/choraleia/daydigest/pkg/config"
	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/service"
	"github.com/choraleia/daydigest/pkg/summarizer"
	"github.com/choraleia/daydigest/pkg/utils"
)

// App wires the services shared by the HTTP server and the CLI commands.
type App struct {
	Config    *config.AppConfig
	Emitter   *event.Emitter
	Dialogues *service.DialogueService
	Summaries *service.SummaryStore
	History   *service.RunHistoryService
	Engine    *summarizer.Engine
	Analyzer  *service.AnalyzerService

	redis  *event.RedisBridge
	logger *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	logger := utils.GetLogger()
	dataDir := cfg.DataDir()

	emitter := event.NewEmitter()

	redisBridge, err := event.NewRedisBridge(ctx, emitter, event.RedisBridgeOptions{
		Addr:     cfg.Notify.Redis.Addr,
		Password: cfg.Notify.Redis.Password,
		DB:       cfg.Notify.Redis.DB,
		Channel:  cfg.RedisChannel(),
	}, logger)
	if err != nil {
		// Notifications are optional; the service runs without them.
		logger.Warn("Redis notifications disabled", "addr", cfg.Notify.Redis.Addr, "error", err)
	}

	history, err := service.OpenRunHistory(dataDir)
	if err != nil {
		redisBridge.Close()
		return nil, err
	}

	backend := service.NewModelService().ResolveBackend(ctx, cfg)
	engine := summarizer.New(backend, summarizer.Options{MinReportLength: cfg.MinReportLength()})

	dialogues := service.NewDialogueService(dataDir, emitter)
	summaries := service.NewSummaryStore(dataDir)

	analyzer, err := service.NewAnalyzerService(dialogues, summaries, engine, history, emitter, service.AnalyzerConfig{
		CronSpec:         cfg.CronSpec(),
		ReconcileOnStart: cfg.ReconcileOnStart(),
		HistoryRetention: cfg.HistoryRetention(),
	})
	if err != nil {
		history.Close()
		redisBridge.Close()
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	logger.Info("Application initialized",
		"data_dir", dataDir,
		"summarizer", backend.Mode(),
		"messages", dialogues.Stats().Total)

	return &App{
		Config:    cfg,
		Emitter:   emitter,
		Dialogues: dialogues,
		Summaries: summaries,
		History:   history,
		Engine:    engine,
		Analyzer:  analyzer,
		redis:     redisBridge,
		logger:    logger,
	}, nil
}

// Close releases the database and the Redis connection.
func (a *App) Close() {
	if err := a.History.Close(); err != nil {
		a.logger.Warn("Failed to close run history", "error", err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("Failed to close redis bridge", "error", err)
	}
}
