package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/api"
	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/crawler"
	"github.com/user/news-ingest/internal/monitoring"
	"github.com/user/news-ingest/internal/storage"
)

func newRunCommand() *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl all enabled sources once, or keep crawling on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := buildLogger(cfg.Engine)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runEngine(cmd.Context(), cfg, logger, cronExpr)
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", `cron schedule for recurring runs (e.g. "0 3 * * *"); empty runs once`)
	return cmd
}

func runEngine(parent context.Context, cfg *config.Config, logger *zap.Logger, cronExpr string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgresStore(cfg.Engine.PostgresURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	cps, err := checkpoint.New(cfg.Engine)
	if err != nil {
		return err
	}

	var cache crawler.Cache
	if cfg.Engine.CacheEnabled {
		csvCache, err := storage.NewCSVCache(filepath.Join(cfg.Engine.StateDir, "cache"))
		if err != nil {
			return err
		}
		cache = csvCache
	}

	metrics := monitoring.NewMetrics()
	eng := crawler.NewEngine(cfg, store, cache, cps, metrics, logger)

	server := api.NewServer(cfg, eng, store, cps, metrics, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()
	logger.Info("observability server listening", zap.String("addr", cfg.Engine.ListenAddr))

	runOnce := func() bool {
		log := logger.With(zap.String("run_id", uuid.New().String()))
		log.Info("run starting", zap.Int("sources", len(cfg.EnabledSources())))
		reports := eng.Run(ctx)
		failed := 0
		for _, r := range reports {
			if r.Failed {
				failed++
			}
		}
		log.Info("run finished", zap.Int("sources", len(reports)), zap.Int("failed", failed))
		return failed == 0
	}

	var runErr error
	if cronExpr == "" {
		if !runOnce() {
			runErr = errors.New("one or more sources failed, see the log")
		}
	} else {
		c := cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))
		if _, err := c.AddFunc(cronExpr, func() { runOnce() }); err != nil {
			return fmt.Errorf("parsing cron schedule %q: %w", cronExpr, err)
		}
		c.Start()
		logger.Info("scheduler started", zap.String("schedule", cronExpr))
		<-ctx.Done()
		logger.Info("shutting down")
		waitForJobs(c.Stop(), cfg.Engine.ShutdownGrace)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	return runErr
}

// waitForJobs blocks until in-flight cron jobs finish, up to the grace period.
func waitForJobs(jobs context.Context, grace time.Duration) {
	select {
	case <-jobs.Done():
	case <-time.After(grace):
	}
}
