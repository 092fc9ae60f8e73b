package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/config"
	"ops-dashboard/internal/repository"
	"ops-dashboard/internal/service"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "opsdashboard",
		Short:         "Operations dashboard: recurring tasks, events and the task board",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(previewCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired service graph shared by all commands.
type app struct {
	cfg         config.Config
	clock       clock.Clock
	subscribers *repository.SubscriberRepository
	series      *service.SeriesService
	tasks       *service.TaskService
	events      *service.EventService
	digests     *service.DigestService
	close       func()
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyLogging()

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	closeDB := func() {}
	if sqlDB, err := db.DB(); err == nil {
		closeDB = func() {
			if err := sqlDB.Close(); err != nil {
				log.WithError(err).Warn("close database")
			}
		}
	}

	clk := clock.System{Location: cfg.Location}

	seriesRepo := repository.NewSeriesRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	eventRepo := repository.NewEventRepository(db)
	spaceRepo := repository.NewSpaceRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)

	engine := backfill.NewEngine(repository.NewOccurrenceStore(seriesRepo, taskRepo, eventRepo), clk, cfg.Location)

	spaceSvc := service.NewSpaceService(spaceRepo)
	seriesSvc := service.NewSeriesService(seriesRepo, taskRepo, eventRepo, spaceSvc, engine)
	eventSvc := service.NewEventService(eventRepo, spaceSvc)

	items := repository.NewBoardStore(taskRepo)
	b := board.New(items, clk,
		board.WithCompletionHook(seriesSvc.OnOccurrenceCompleted),
		board.WithMutationTimeout(cfg.BulkTimeout),
	)
	taskSvc := service.NewTaskService(taskRepo, items, spaceSvc, seriesSvc, b, clk)
	digestSvc := service.NewDigestService(items, eventSvc, clk, cfg.Location)

	return &app{
		cfg:         cfg,
		clock:       clk,
		subscribers: subscriberRepo,
		series:      seriesSvc,
		tasks:       taskSvc,
		events:      eventSvc,
		digests:     digestSvc,
		close:       closeDB,
	}, nil
}
