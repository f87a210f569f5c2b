package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/api"
	"sprout-pricing/internal/metrics"
	"sprout-pricing/internal/service"
)

// Serve runs the HTTP API until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	return a.run(ctx, false)
}

// Run serves the HTTP API and drives scheduled ingestion side by side.
func (a *App) Run(ctx context.Context) error {
	return a.run(ctx, true)
}

func (a *App) run(ctx context.Context, withIngestion bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	router := api.NewRouter(analytics.NewService(store, a.Logger), store, m, a.Logger)
	server := api.NewServer(a.Config.HTTP, router, a.Logger)

	var ingestor *service.Ingestor
	if withIngestion {
		sched, err := a.newScheduler()
		if err != nil {
			return err
		}
		ingestor = a.newIngestor(store, sched, m)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(gctx)
	})
	if ingestor != nil {
		group.Go(func() error {
			a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting scheduled ingestion")
			return ingestor.Run(gctx)
		})
	}

	a.Logger.Info().Str("addr", a.Config.HTTP.Addr).Bool("ingestion", withIngestion).Msg("sprout pricing service starting")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sprout pricing service stopped")
	return nil
}
