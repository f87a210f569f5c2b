package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sprout-pricing/internal/alerting"
	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/config"
	"sprout-pricing/internal/fetcher"
	"sprout-pricing/internal/metrics"
	"sprout-pricing/internal/scheduler"
	"sprout-pricing/internal/storage"
)

// Analyzer models the stored history of one crop/county pair.
type Analyzer interface {
	Analyze(ctx context.Context, cropName, county string) (analytics.Result, error)
	MinDataPoints() int
	ConfidenceLevel() float64
}

// Report summarises one ingestion pass.
type Report struct {
	RunAt        time.Time
	Fetched      int
	Inserted     int
	FailedCrops  []string
	Predictions  []*analytics.Prediction
	Insufficient []*analytics.InsufficientData
	Skipped      bool
}

// Status classifies the pass for metrics.
func (r Report) Status() string {
	switch {
	case r.Skipped:
		return metrics.RunSkipped
	case len(r.FailedCrops) > 0:
		return metrics.RunPartial
	default:
		return metrics.RunOK
	}
}

// Ingestor orchestrates fetching, persistence, analysis, and notification.
type Ingestor struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.MarketPriceFetcher
	store     storage.ObservationStore
	analyzer  Analyzer
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	crops   []string
	county  string
	zipCode string
	unit    string
	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the ingestion service. sched and notifier may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.MarketPriceFetcher, store storage.ObservationStore, analyzer Analyzer, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Ingestor {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Ingestor{
		scheduler: sched,
		fetcher:   source,
		store:     store,
		analyzer:  analyzer,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "ingestion").Logger(),
		crops:     cfg.Ingestion.Crops,
		county:    cfg.Ingestion.County,
		zipCode:   cfg.Ingestion.ZipCode,
		unit:      cfg.Ingestion.Unit,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// WithTargets overrides the configured crops, county, and zip code.
// Empty values keep the configured ones.
func (s *Ingestor) WithTargets(crops []string, county, zipCode string) *Ingestor {
	clone := *s
	if len(crops) > 0 {
		clone.crops = crops
	}
	if county != "" {
		clone.county = county
	}
	if zipCode != "" {
		clone.zipCode = zipCode
	}
	return &clone
}

// Run drives RunOnce from the scheduler until ctx is cancelled.
func (s *Ingestor) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, runAt time.Time) error {
		_, err := s.RunOnce(ctx, runAt)
		return err
	})
}

// RunOnce executes a single ingestion pass.
func (s *Ingestor) RunOnce(ctx context.Context, runAt time.Time) (Report, error) {
	report := Report{RunAt: runAt}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.metrics.ObserveIngestionRun(metrics.RunFailed)
		return report, err
	}
	if !proceed {
		s.logger.Debug().Time("run_at", runAt).Msg("skip run because advisory lock held elsewhere")
		report.Skipped = true
		s.metrics.ObserveIngestionRun(report.Status())
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := s.execute(ctx, &report); err != nil {
		s.metrics.ObserveIngestionRun(metrics.RunFailed)
		return report, err
	}
	s.metrics.ObserveIngestionRun(report.Status())

	s.logger.Info().Time("run_at", runAt).
		Int("fetched", report.Fetched).
		Int("inserted", report.Inserted).
		Int("predictions", len(report.Predictions)).
		Int("insufficient", len(report.Insufficient)).
		Strs("failed_crops", report.FailedCrops).
		Msg("ingestion run completed")
	return report, nil
}

func (s *Ingestor) execute(ctx context.Context, report *Report) error {
	for _, crop := range s.crops {
		if err := ctx.Err(); err != nil {
			return err
		}

		prices, err := s.fetcher.FetchPrices(ctx, crop, s.zipCode)
		if err != nil {
			event := s.logger.Warn()
			if !errors.Is(err, fetcher.ErrNoPrices) {
				event = s.logger.Error()
			}
			event.Err(err).Str("crop", crop).Msg("failed to fetch market prices")
			report.FailedCrops = append(report.FailedCrops, crop)
			continue
		}

		observations := s.toObservations(crop, prices)
		report.Fetched += len(observations)

		inserted, err := s.store.InsertObservations(ctx, observations)
		if err != nil {
			return fmt.Errorf("persist %s observations: %w", crop, err)
		}
		report.Inserted += inserted
		s.metrics.AddIngested(crop, inserted)

		s.logger.Debug().Str("crop", crop).
			Int("fetched", len(observations)).
			Int("inserted", inserted).
			Msg("market prices persisted")
	}

	for _, crop := range s.crops {
		result, err := s.analyzer.Analyze(ctx, crop, s.county)
		if err != nil {
			s.metrics.ObserveAnalysis(metrics.OutcomeError)
			return fmt.Errorf("analyze %s: %w", crop, err)
		}
		switch r := result.(type) {
		case *analytics.Prediction:
			s.metrics.ObserveAnalysis(metrics.OutcomePrediction)
			report.Predictions = append(report.Predictions, r)
		case *analytics.InsufficientData:
			s.metrics.ObserveAnalysis(metrics.OutcomeInsufficient)
			report.Insufficient = append(report.Insufficient, r)
		}
	}

	s.notify(ctx, report)
	return nil
}

func (s *Ingestor) toObservations(crop string, prices []fetcher.MarketPrice) []storage.PriceObservation {
	observations := make([]storage.PriceObservation, 0, len(prices))
	for _, p := range prices {
		price := p.Representative()
		if !price.IsPositive() || p.Date.IsZero() {
			s.logger.Warn().Str("crop", crop).Time("date", p.Date).
				Str("price", price.String()).
				Msg("skipping unusable market price")
			continue
		}
		unit := s.unit
		if unit == "" {
			unit = p.Unit
		}
		observations = append(observations, storage.PriceObservation{
			CropName: crop,
			County:   s.county,
			Date:     storage.NormalizeDate(p.Date),
			Price:    price,
			Unit:     unit,
		})
	}
	return observations
}

func (s *Ingestor) notify(ctx context.Context, report *Report) {
	if s.notifier == nil {
		return
	}
	note := Digest(report.RunAt, s.county, report.Predictions, report.Insufficient, s.analyzer.ConfidenceLevel())
	if note.Empty() {
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("run_at", report.RunAt).Msg("failed to dispatch insight digest")
	}
}

// Digest builds the notification for a set of analysis results.
func Digest(generatedAt time.Time, county string, predictions []*analytics.Prediction, insufficient []*analytics.InsufficientData, confidence float64) alerting.Notification {
	note := alerting.Notification{GeneratedAt: generatedAt, County: county}
	for _, p := range predictions {
		note.Insights = append(note.Insights, alerting.CropInsight{
			CropName:  p.CropName,
			Direction: analytics.Direction(p),
			Text:      analytics.Insight(p, confidence),
		})
	}
	for _, r := range insufficient {
		note.Insufficient = append(note.Insufficient, r.CropName)
	}
	return note
}

func (s *Ingestor) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
