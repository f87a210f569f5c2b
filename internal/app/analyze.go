package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/service"
)

type analysisOutput struct {
	Result  analytics.Result `json:"result"`
	Insight string           `json:"insight"`
}

// Analyze models one crop/county history and prints the outcome.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if opts.Crop == "" {
		return errors.New("--crop is required")
	}
	county := opts.County
	if county == "" {
		county = a.Config.Ingestion.County
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := analytics.NewService(store, a.Logger)
	result, err := svc.Analyze(ctx, opts.Crop, county)
	if err != nil {
		return err
	}

	var (
		text         string
		predictions  []*analytics.Prediction
		insufficient []*analytics.InsufficientData
	)
	switch r := result.(type) {
	case *analytics.Prediction:
		text = analytics.Insight(r, svc.ConfidenceLevel())
		predictions = append(predictions, r)
	case *analytics.InsufficientData:
		text = analytics.InsufficientDetail(r, svc.MinDataPoints())
		insufficient = append(insufficient, r)
	}

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analysisOutput{Result: result, Insight: text}); err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
	} else {
		fmt.Fprintln(a.Out, text)
	}

	if !opts.Notify {
		return nil
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured; enable alerting.telegram")
	}
	note := service.Digest(time.Now().UTC(), county, predictions, insufficient, svc.ConfidenceLevel())
	return notifier.Notify(ctx, note)
}
