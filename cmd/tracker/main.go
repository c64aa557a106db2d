package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/lostfound/internal/app"
	"github.com/kdimtricp/lostfound/internal/config"
	"github.com/kdimtricp/lostfound/internal/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("tracker stopped with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("starting tracker",
		"log", cfg.Paths.Log,
		"snapshot", cfg.Paths.Snapshot,
		"frames", cfg.Paths.Frames,
		"artifacts", cfg.Paths.Artifacts,
		"descriptor", cfg.DescriptorKind,
		"threshold", *cfg.ColorSimilarityThreshold,
		"strategy", cfg.ReadStrategy,
		"rematch", *cfg.LostPoolRematch,
		"database", cfg.Database.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Engine.Run(ctx)
	})

	if cfg.HTTP.Enabled {
		server := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("http server shutdown", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("graceful shutdown complete")
	return err
}
