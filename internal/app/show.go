package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the most recent observations for a crop/county pair.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
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

	records, err := store.ListRecent(ctx, opts.Crop, county, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(a.Out, "no observations found for %s in %s\n", opts.Crop, county)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tCrop\tCounty\tPrice\tUnit\tRecorded (UTC)")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Date.Format("2006-01-02"),
			sanitizeInline(rec.CropName),
			sanitizeInline(rec.County),
			rec.Price.StringFixed(2),
			rec.Unit,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
