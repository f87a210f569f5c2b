package analytics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"sprout-pricing/internal/storage"
)

const (
	// MinDataPoints is the smallest history the service will model.
	MinDataPoints = 3
	// MovingAverageWindow is the rolling mean width, in observations.
	MovingAverageWindow = 3
	// ConfidenceLevel is the two-tailed coverage of the prediction interval.
	ConfidenceLevel = 0.95

	// InsufficientDataMessage accompanies every InsufficientData result.
	InsufficientDataMessage = "Not enough data for statistical significance"
)

// HistoryStore supplies observations for a crop/county pair ordered by date ascending.
type HistoryStore interface {
	FetchHistory(ctx context.Context, cropName, county string) ([]storage.PriceObservation, error)
}

// Service fits a linear trend to a price history and predicts the next price.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	store      HistoryStore
	logger     zerolog.Logger
	minPoints  int
	window     int
	confidence float64
}

// NewService constructs the pricing analytics service.
func NewService(store HistoryStore, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		logger:     logger.With().Str("component", "pricing_analytics").Logger(),
		minPoints:  MinDataPoints,
		window:     MovingAverageWindow,
		confidence: ConfidenceLevel,
	}
}

// MinDataPoints reports the threshold below which Analyze returns InsufficientData.
func (s *Service) MinDataPoints() int { return s.minPoints }

// ConfidenceLevel reports the prediction interval coverage.
func (s *Service) ConfidenceLevel() float64 { return s.confidence }

// Analyze reads the full history for (cropName, county) and models it.
// The only error it returns is a failure from the store.
func (s *Service) Analyze(ctx context.Context, cropName, county string) (Result, error) {
	history, err := s.store.FetchHistory(ctx, cropName, county)
	if err != nil {
		return nil, fmt.Errorf("fetch price history: %w", err)
	}

	result := s.Model(cropName, county, history)
	switch r := result.(type) {
	case *Prediction:
		s.logger.Debug().Str("crop", cropName).Str("county", county).
			Int("data_points", r.DataPoints).
			Float64("trend_slope", r.TrendSlope).
			Float64("predicted_next_price", r.PredictedNextPrice).
			Msg("price prediction computed")
	case *InsufficientData:
		s.logger.Debug().Str("crop", cropName).Str("county", county).
			Int("data_points", r.DataPoints).
			Int("min_data_points", s.minPoints).
			Msg("insufficient price history")
	}
	return result, nil
}

// Model computes the result for an already fetched history, which must be
// ordered by date ascending.
func (s *Service) Model(cropName, county string, history []storage.PriceObservation) Result {
	summary := Summary{CropName: cropName, County: county, DataPoints: len(history)}
	if len(history) < s.minPoints {
		return &InsufficientData{Summary: summary, Message: InsufficientDataMessage}
	}

	x := make([]float64, len(history))
	y := make([]float64, len(history))
	for i, obs := range history {
		x[i] = dayOrdinal(obs.Date)
		y[i] = obs.Price.InexactFloat64()
	}

	fit, sxx := fitLine(x, y)
	// Anchored to the last observation, not to today.
	xNext := x[len(x)-1] + 1
	low, high := predictionInterval(x, y, fit, sxx, xNext, s.confidence)

	return &Prediction{
		Summary:                summary,
		TrendSlope:             round(fit.slope, 6),
		CurrentAverage:         round(stat.Mean(y, nil), 2),
		PredictedNextPrice:     round(fit.at(xNext), 2),
		PredictionIntervalLow:  round(low, 2),
		PredictionIntervalHigh: round(high, 2),
		MovingAverages:         roundAll(MovingAverages(y, s.window), 2),
	}
}
