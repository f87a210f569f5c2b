package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/storage"
)

// exportRow is one observation with its trailing moving average, if any.
type exportRow struct {
	obs     storage.PriceObservation
	movAvg  float64
	hasMovg bool
}

// Export renders a crop/county history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Crop == "" {
		return errors.New("--crop is required")
	}
	county := opts.County
	if county == "" {
		county = a.Config.Ingestion.County
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	history, err := store.FetchHistory(ctx, opts.Crop, county)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		a.Logger.Info().Str("crop", opts.Crop).Str("county", county).Msg("no observations found for export")
		return nil
	}

	svc := analytics.NewService(store, a.Logger)
	result := svc.Model(opts.Crop, county, history)
	rows := buildExportRows(history, analytics.MovingAverageWindow)

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		prediction, _ := result.(*analytics.Prediction)
		if err := writeHistoryPNG(opts.PNGPath, opts.Crop, county, downsampled, prediction); err != nil {
			return err
		}
	}

	return nil
}

func buildExportRows(history []storage.PriceObservation, window int) []exportRow {
	prices := make([]float64, len(history))
	for i, obs := range history {
		prices[i] = obs.Price.InexactFloat64()
	}

	rows := make([]exportRow, len(history))
	for i, obs := range history {
		rows[i] = exportRow{obs: obs}
	}
	if len(prices) < window {
		return rows
	}

	// MovingAverages()[k] covers prices[k : k+window], so it belongs to row k+window-1.
	for k, v := range analytics.MovingAverages(prices, window) {
		rows[k+window-1].movAvg = v
		rows[k+window-1].hasMovg = true
	}
	return rows
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeHistoryCSV(path string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"date", "crop_name", "county", "price", "unit", "moving_average"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		movAvg := ""
		if row.hasMovg {
			movAvg = strconv.FormatFloat(row.movAvg, 'f', 2, 64)
		}
		record := []string{
			row.obs.Date.Format(storage.DateLayout),
			row.obs.CropName,
			row.obs.County,
			row.obs.Price.StringFixed(2),
			row.obs.Unit,
			movAvg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path, crop, county string, rows []exportRow, prediction *analytics.Prediction) error {
	if len(rows) < 2 {
		return fmt.Errorf("at least 2 observations are needed to chart, got %d", len(rows))
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	prices := make([]float64, len(rows))
	var maX []time.Time
	var maY []float64
	for i, row := range rows {
		x[i] = row.obs.Date
		prices[i] = row.obs.Price.InexactFloat64()
		if row.hasMovg {
			maX = append(maX, row.obs.Date)
			maY = append(maY, row.movAvg)
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Price",
			XValues: x,
			YValues: prices,
		},
	}
	if len(maX) >= 2 {
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("%d-point moving average", analytics.MovingAverageWindow),
			XValues: maX,
			YValues: maY,
		})
	}
	if prediction != nil {
		last := rows[len(rows)-1]
		next := last.obs.Date.AddDate(0, 0, 1)
		lastPrice := last.obs.Price.InexactFloat64()
		band := chart.Style{StrokeColor: drawing.ColorRed, StrokeDashArray: []float64{5, 5}}

		series = append(series,
			chart.TimeSeries{
				Name:    "Predicted",
				XValues: []time.Time{last.obs.Date, next},
				YValues: []float64{lastPrice, prediction.PredictedNextPrice},
				Style:   chart.Style{StrokeColor: drawing.ColorRed, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    fmt.Sprintf("%d%% interval low", int(math.Round(analytics.ConfidenceLevel*100))),
				XValues: []time.Time{last.obs.Date, next},
				YValues: []float64{lastPrice, prediction.PredictionIntervalLow},
				Style:   band,
			},
			chart.TimeSeries{
				Name:    fmt.Sprintf("%d%% interval high", int(math.Round(analytics.ConfidenceLevel*100))),
				XValues: []time.Time{last.obs.Date, next},
				YValues: []float64{lastPrice, prediction.PredictionIntervalHigh},
				Style:   band,
			},
		)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s, %s", crop, county),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
