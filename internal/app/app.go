// Package app wires the configured components into a runnable tracker.
package app

import (
	"fmt"
	"net/http"

	"github.com/kdimtricp/lostfound/internal/api"
	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/config"
	"github.com/kdimtricp/lostfound/internal/database"
	"github.com/kdimtricp/lostfound/internal/engine"
	"github.com/kdimtricp/lostfound/internal/gc"
	"github.com/kdimtricp/lostfound/internal/logger"
	"github.com/kdimtricp/lostfound/internal/logreader"
	"github.com/kdimtricp/lostfound/internal/persistence"
	"github.com/kdimtricp/lostfound/internal/storage"
	"github.com/kdimtricp/lostfound/internal/tracker"
)

type App struct {
	Config    *config.Config
	Engine    *engine.Engine
	Frames    *storage.FrameStore
	Artifacts *persistence.ArtifactWriter
	// DB and History are nil when no database is configured.
	DB      *database.DB
	History *database.LostObjectRepo

	log *logger.Logger
}

// New builds every component from cfg, which must have been validated.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, log: log}

	frames, err := storage.NewFrameStore(cfg.Paths.Frames)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize frame storage: %w", err)
	}
	a.Frames = frames

	cmp, err := color.New(cfg.Kind())
	if err != nil {
		return nil, err
	}
	tr, err := tracker.New(tracker.Config{
		Threshold:      *cfg.ColorSimilarityThreshold,
		LostThreshold:  cfg.LostThreshold(),
		MaxLostFrames:  tracker.MaxLostFrames(cfg.MaxLostTimeSeconds, cfg.FramesPerSecond),
		Rematch:        *cfg.LostPoolRematch,
		IgnoredClasses: cfg.IgnoredClasses,
	}, color.NewExtractor(cmp, frames))
	if err != nil {
		return nil, err
	}

	snapshot, err := persistence.NewSnapshotWriter(cfg.Paths.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot writer: %w", err)
	}
	artifacts, err := persistence.NewArtifactWriter(cfg.Paths.Artifacts, frames)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact storage: %w", err)
	}
	a.Artifacts = artifacts

	var history engine.LostHistory
	if cfg.Database.Type != "" {
		db, err := database.NewDB(database.Config{
			Type:       cfg.Database.Type,
			Host:       cfg.Database.Host,
			Port:       cfg.Database.Port,
			User:       cfg.Database.User,
			Password:   cfg.Database.Password,
			Name:       cfg.Database.Name,
			SQLitePath: cfg.Database.SQLitePath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.RunMigrations(log); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.DB = db
		a.History = database.NewLostObjectRepo(db)
		history = a.History
	}

	eng, err := engine.New(engine.Deps{
		Reader: logreader.New(cfg.Paths.Log, logreader.Options{
			Strategy:  cfg.Strategy(),
			Numbering: cfg.Numbering(),
		}),
		Tracker:   tr,
		Snapshot:  snapshot,
		Artifacts: artifacts,
		Collector: gc.New(frames, *cfg.RetentionWindowFrames, log),
		History:   history,
		Logger:    log,
	}, engine.Options{
		PollInterval:      cfg.PollInterval(),
		MissingLogBackoff: cfg.MissingLogBackoff(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng
	return a, nil
}

// Handler returns the read-only HTTP facade.
func (a *App) Handler() http.Handler {
	cfg := api.Config{
		SnapshotPath:   a.Config.Paths.Snapshot,
		Frames:         a.Frames,
		Artifacts:      a.Artifacts.Store(),
		IgnoredClasses: a.Config.IgnoredClasses,
		Logger:         a.log.With("component", "http"),
	}
	if a.History != nil {
		cfg.History = a.History
	}
	return api.NewRouter(api.NewServer(cfg))
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
