package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ops-dashboard/internal/api"
	"ops-dashboard/internal/bot"
	"ops-dashboard/internal/service"
)

const (
	jobTimeout      = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	var noBot bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the background backfill and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context(), !noBot)
		},
	}
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "do not start the Telegram bot even when a token is set")
	return cmd
}

func (a *app) serve(ctx context.Context, withBot bool) error {
	var telegramBot *bot.Bot
	if withBot && a.cfg.TelegramToken != "" {
		var err error
		telegramBot, err = bot.New(a.cfg.TelegramToken, a.tasks, a.series, a.digests, a.subscribers, a.clock, a.cfg.Location)
		if err != nil {
			return err
		}
	}

	scheduler := service.NewSchedulerService(a.cfg.Location)
	if _, err := scheduler.ScheduleInterval(a.cfg.BackfillInterval, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		if _, err := a.series.BackfillAll(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("scheduled backfill")
		}
	}); err != nil {
		return err
	}
	if telegramBot != nil {
		if _, err := scheduler.ScheduleDaily(a.cfg.DigestTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if err := telegramBot.SendDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("scheduled digest")
			}
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Catch up once at startup.
	if _, err := a.series.BackfillAll(ctx); err != nil {
		log.WithError(err).Warn("startup backfill")
	}

	e := api.NewServer()
	api.Register(e, a.tasks, a.series, a.events, a.clock, a.cfg.Location)

	errs := make(chan error, 2)
	go func() {
		log.WithField("addr", a.cfg.HTTPAddr).Info("http server listening")
		if err := e.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("shutdown complete")
	return runErr
}
