package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout-pricing/internal/config"
	"sprout-pricing/internal/fetcher"
	"sprout-pricing/internal/storage"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Name: "sprout-pricing"},
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "sprout.db"),
		},
		USDA:      config.USDAConfig{MockDays: 30, MockFallback: true, RequestsPerSec: 2},
		Ingestion: config.IngestionConfig{Crops: []string{"Tomatoes", "Zucchini"}, County: "Multnomah", Unit: "lb"},
		Export:    config.ExportConfig{MaxDataPoints: 100000},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestOpenStoreRequiresConfiguration(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Database = config.DatabaseConfig{Driver: config.DriverPostgres}

	_, err := a.openStore(context.Background())
	require.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)

	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 10, Seed: 7}))
	assert.Contains(t, out.String(), "seeded 20 observation(s) for 2 crop(s) in Multnomah")

	out.Reset()
	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 10, Seed: 7}))
	assert.Contains(t, out.String(), "seeded 0 observation(s)")
}

func TestSeedHistoryEndsToday(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a, _ := newTestApp(t)
	today := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	gen := fetcher.NewSynthetic(5, 11)

	n, err := seedHistory(context.Background(), store, gen, []string{"Kale"}, "Lane", a.Config.Ingestion.Unit, today, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	history, err := store.FetchHistory(context.Background(), "Kale", "Lane")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC), history[0].Date)
	assert.Equal(t, today, history[4].Date)
	for _, obs := range history {
		assert.True(t, obs.Price.IsPositive())
		assert.Equal(t, "lb", obs.Unit)
	}
}

func TestShowPrintsRecentObservations(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)
	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 5, Seed: 1}))
	out.Reset()

	require.NoError(t, a.Show(ctx, ShowOptions{Crop: "Tomatoes", Limit: 3}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Date"))
	assert.Contains(t, lines[1], time.Now().UTC().Format("2006-01-02"))

	out.Reset()
	require.NoError(t, a.Show(ctx, ShowOptions{Crop: "Okra", Limit: 3}))
	assert.Equal(t, "no observations found for Okra in Multnomah\n", out.String())
}

func TestAnalyzePrintsInsightOrShortage(t *testing.T) {
	ctx := context.Background()
	a, out := newTestApp(t)
	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 12, Seed: 3}))
	out.Reset()

	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{Crop: "Zucchini"}))
	assert.Contains(t, out.String(), "Based on 12 historical data points, the price trend for Zucchini in Multnomah is")

	out.Reset()
	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{Crop: "Okra", County: "Lane"}))
	assert.Equal(t,
		"Not enough historical data to generate a prediction for 'Okra' in 'Lane' (0 data point(s) found, minimum 3 required).\n",
		out.String())

	out.Reset()
	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{Crop: "Tomatoes", JSON: true}))
	var payload struct {
		Result struct {
			CropName       string    `json:"crop_name"`
			DataPoints     int       `json:"data_points"`
			MovingAverages []float64 `json:"moving_averages"`
		} `json:"result"`
		Insight string `json:"insight"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	assert.Equal(t, "Tomatoes", payload.Result.CropName)
	assert.Equal(t, 12, payload.Result.DataPoints)
	assert.Len(t, payload.Result.MovingAverages, 10)
	assert.NotEmpty(t, payload.Insight)
}

func TestAnalyzeNotify(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 5, Seed: 9}))

	require.Error(t, a.Analyze(ctx, AnalyzeOptions{Crop: "Tomatoes", Notify: true}))

	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		text = body["text"]
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	a.Config.Alerting = config.AlertingConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c", APIBase: srv.URL},
	}
	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{Crop: "Tomatoes", Notify: true}))
	assert.Contains(t, text, "Tomatoes (")
	assert.Contains(t, text, "Based on 5 historical data points")
}

func TestExportCSVAndPNG(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t)
	require.NoError(t, a.Seed(ctx, SeedOptions{Days: 8, Seed: 5}))

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "tomatoes.csv")
	pngPath := filepath.Join(dir, "out", "tomatoes.png")
	require.NoError(t, a.Export(ctx, ExportOptions{Crop: "Tomatoes", CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 9)
	assert.Equal(t, []string{"date", "crop_name", "county", "price", "unit", "moving_average"}, records[0])
	assert.Empty(t, records[1][5])
	assert.Empty(t, records[2][5])
	assert.NotEmpty(t, records[3][5])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportRequiresTarget(t *testing.T) {
	a, _ := newTestApp(t)
	require.Error(t, a.Export(context.Background(), ExportOptions{Crop: "Tomatoes"}))
}

func TestBuildExportRowsAlignsMovingAverage(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []storage.PriceObservation
	for i, p := range []string{"1", "2", "3", "4"} {
		history = append(history, storage.PriceObservation{Date: start.AddDate(0, 0, i), Price: decimal.RequireFromString(p)})
	}

	rows := buildExportRows(history, 3)
	require.Len(t, rows, 4)
	assert.False(t, rows[0].hasMovg)
	assert.False(t, rows[1].hasMovg)
	assert.InDelta(t, 2.0, rows[2].movAvg, 1e-9)
	assert.InDelta(t, 3.0, rows[3].movAvg, 1e-9)

	short := buildExportRows(history[:2], 3)
	assert.False(t, short[1].hasMovg)
}

func TestDownsampleRows(t *testing.T) {
	rows := make([]exportRow, 10)
	for i := range rows {
		rows[i].movAvg = float64(i)
	}

	sampled := downsampleRows(rows, 4)
	require.Len(t, sampled, 4)
	assert.Equal(t, 0.0, sampled[0].movAvg)
	assert.Equal(t, 9.0, sampled[3].movAvg)
	assert.Len(t, downsampleRows(rows, 20), 10)
	assert.Len(t, downsampleRows(rows, 1), 1)
}

func TestMigrateSQLiteIsNoop(t *testing.T) {
	a, _ := newTestApp(t)
	require.NoError(t, a.Migrate(context.Background()))
}
