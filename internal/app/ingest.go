package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sprout-pricing/internal/metrics"
)

// Ingest runs one fetch, persist, and analyze pass outside the scheduler.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	ingestor := a.newIngestor(store, nil, nil).
		WithTargets(a.Config.ResolveCrops(opts.Crops), opts.County, opts.ZipCode)

	report, err := ingestor.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Fprintln(a.Out, "ingestion skipped: another instance holds the advisory lock")
		return nil
	}

	fmt.Fprintf(a.Out, "fetched %d observation(s), inserted %d new\n", report.Fetched, report.Inserted)
	for _, p := range report.Predictions {
		fmt.Fprintf(a.Out, "  %-14s predicted %.2f (%.2f - %.2f)\n", p.CropName, p.PredictedNextPrice, p.PredictionIntervalLow, p.PredictionIntervalHigh)
	}
	for _, r := range report.Insufficient {
		fmt.Fprintf(a.Out, "  %-14s %d data point(s), not enough history\n", r.CropName, r.DataPoints)
	}
	if report.Status() == metrics.RunPartial {
		return fmt.Errorf("fetch failed for: %s", strings.Join(report.FailedCrops, ", "))
	}
	return nil
}
