package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sprout-pricing/internal/fetcher"
	"sprout-pricing/internal/storage"
)

// DefaultSeedDays is how much synthetic history seed writes by default.
const DefaultSeedDays = 60

// Seed backfills synthetic daily history ending today for each crop.
// Existing (crop, county, date) rows are left untouched, so reruns are safe.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	days := opts.Days
	if days <= 0 {
		days = DefaultSeedDays
	}
	county := opts.County
	if county == "" {
		county = a.Config.Ingestion.County
	}
	crops := a.Config.ResolveCrops(opts.Crops)
	if len(crops) == 0 {
		return errors.New("no crops to seed")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	today := storage.NormalizeDate(time.Now().UTC())
	inserted, err := seedHistory(ctx, store, fetcher.NewSynthetic(days, opts.Seed), crops, county, a.Config.Ingestion.Unit, today, days)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("days", days).Str("county", county).Strs("crops", crops).
		Int("inserted", inserted).Msg("synthetic history seeded")
	fmt.Fprintf(a.Out, "seeded %d observation(s) for %d crop(s) in %s\n", inserted, len(crops), county)
	return nil
}

func seedHistory(ctx context.Context, store storage.ObservationStore, gen *fetcher.Synthetic, crops []string, county, unit string, today time.Time, days int) (int, error) {
	from := today.AddDate(0, 0, -(days - 1))

	total := 0
	for _, crop := range crops {
		prices := gen.History(crop, from, days)
		batch := make([]storage.PriceObservation, 0, len(prices))
		for _, p := range prices {
			obsUnit := unit
			if obsUnit == "" {
				obsUnit = p.Unit
			}
			batch = append(batch, storage.PriceObservation{
				CropName: crop,
				County:   county,
				Date:     p.Date,
				Price:    p.Representative(),
				Unit:     obsUnit,
			})
		}

		n, err := store.InsertObservations(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("seed %s: %w", crop, err)
		}
		total += n
	}
	return total, nil
}
