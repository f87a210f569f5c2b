package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"sprout-pricing/internal/alerting"
	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/config"
	"sprout-pricing/internal/fetcher"
	"sprout-pricing/internal/metrics"
	"sprout-pricing/internal/scheduler"
	"sprout-pricing/internal/service"
	"sprout-pricing/internal/storage"
	"sprout-pricing/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) openStore(ctx context.Context) (storage.Repository, error) {
	if !a.Config.Database.Configured() {
		return nil, fmt.Errorf("%w: set database.dsn or database.driver=sqlite", storage.ErrNotConfigured)
	}
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.Config.Database.Driver, err)
	}
	return store, nil
}

func (a *App) newFetcher() fetcher.MarketPriceFetcher {
	cfg := a.Config.USDA

	var fallback fetcher.MarketPriceFetcher
	if cfg.MockFallback {
		fallback = fetcher.NewSynthetic(cfg.MockDays, 0)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent(a.Config.App.Name)
	}

	return fetcher.NewUSDA(fetcher.USDAOptions{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		UserAgent:       userAgent,
		Timeout:         cfg.RequestTimeout,
		RequestsPerSec:  cfg.RequestsPerSec,
		MaxRetryElapsed: cfg.MaxRetryElapsed,
		Fallback:        fallback,
		FallbackOnError: cfg.MockFallback,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)
}

func (a *App) newIngestor(store storage.ObservationStore, sched *scheduler.Scheduler, m *metrics.Metrics) *service.Ingestor {
	analyzer := analytics.NewService(store, a.Logger)
	return service.New(a.Config, sched, a.newFetcher(), store, analyzer, a.newNotifier(), m, a.Logger)
}

// IngestOptions scope a single ingestion pass.
type IngestOptions struct {
	Crops   []string
	County  string
	ZipCode string
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	Crop   string
	County string
	JSON   bool
	Notify bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Crop   string
	County string
	Limit  int
}

// ExportOptions hold parameters for exporting a price history.
type ExportOptions struct {
	Crop      string
	County    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SeedOptions configure synthetic history generation.
type SeedOptions struct {
	Days   int
	County string
	Crops  []string
	Seed   uint64
}
