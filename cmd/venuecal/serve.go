package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"venuecal/internal/calendar"
	"venuecal/internal/config"
	appLog "venuecal/internal/log"
	"venuecal/internal/materialize"
	"venuecal/internal/preview"
	"venuecal/internal/store"
	"venuecal/internal/sweep"
	"venuecal/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the orphan sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf)
		},
	}
}

func serve(ctx context.Context, conf *config.Config) error {
	appLog.Info("venuecal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"locale", conf.Locale,
		"database", conf.Database,
		"safety_cap", conf.Preview.SafetyCap,
		"default_horizon", conf.Preview.DefaultHorizon,
		"sweep", conf.SweepCron,
		"rate_limit", conf.RateLimit.RequestsPerMinute,
	)

	db, err := store.NewDB(conf.Database)
	if err != nil {
		appLog.Error("failed to open database", err, "database", conf.Database)
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	loc := conf.Location()
	locale := calendar.ParseLocale(conf.Locale)

	events := store.NewEventRepository(db)
	exceptions := store.NewExceptionRepository(db)
	ctrl := materialize.NewController(events, exceptions, materialize.Options{Locale: locale, Location: loc})
	svc := preview.NewService(events, exceptions, ctrl, preview.Options{
		Cap:      conf.Preview.SafetyCap,
		Locale:   locale,
		Location: loc,
	})

	sweeper := sweep.New(events, ctrl, loc)
	if conf.SweepCron != "" {
		if _, err := sweeper.Schedule(conf.SweepCron); err != nil {
			appLog.Error("invalid sweep schedule", err, "sweep", conf.SweepCron)
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	srv := web.NewServer(conf, web.Deps{
		Events:      events,
		Exceptions:  exceptions,
		Preview:     svc,
		Materialize: ctrl,
		Orphans:     sweeper,
	})
	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "addr", conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			return err
		}
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
		return err
	}
	appLog.Info("venuecal exiting")
	return nil
}
