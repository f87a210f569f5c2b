package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func day(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := ParseDate(v)
	require.NoError(t, err)
	return d
}

func obs(t *testing.T, crop, county, date, price string) PriceObservation {
	t.Helper()
	return PriceObservation{
		CropName: crop,
		County:   county,
		Date:     day(t, date),
		Price:    decimal.RequireFromString(price),
		Unit:     "lb",
	}
}

func TestSQLiteFetchHistoryOrderedByDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.InsertObservations(ctx, []PriceObservation{
		obs(t, "Tomatoes", "Multnomah", "2025-03-03", "3.20"),
		obs(t, "Tomatoes", "Multnomah", "2025-03-01", "3.00"),
		obs(t, "Tomatoes", "Multnomah", "2025-03-02", "3.10"),
		obs(t, "Tomatoes", "Fresno", "2025-03-01", "4.00"),
		obs(t, "tomatoes", "Multnomah", "2025-03-01", "9.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, inserted)

	history, err := store.FetchHistory(ctx, "Tomatoes", "Multnomah")
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, "2025-03-01", history[0].Date.Format(DateLayout))
	assert.Equal(t, "2025-03-02", history[1].Date.Format(DateLayout))
	assert.Equal(t, "2025-03-03", history[2].Date.Format(DateLayout))
	assert.True(t, history[2].Price.Equal(decimal.RequireFromString("3.2")))
	assert.NotEqual(t, uuid.Nil, history[0].ID)
}

func TestSQLiteFetchHistoryEmpty(t *testing.T) {
	store := newTestStore(t)

	history, err := store.FetchHistory(context.Background(), "Kale", "Lane")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteInsertSkipsDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := obs(t, "Zucchini", "Multnomah", "2025-03-01", "2.50")
	n, err := store.InsertObservations(ctx, []PriceObservation{first})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again := obs(t, "Zucchini", "Multnomah", "2025-03-01", "2.75")
	n, err = store.InsertObservations(ctx, []PriceObservation{again, obs(t, "Zucchini", "Multnomah", "2025-03-02", "2.60")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := store.FetchHistory(ctx, "Zucchini", "Multnomah")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Price.Equal(decimal.RequireFromString("2.50")), "first write wins")

	count, err := store.CountObservations(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSQLiteCreateAndGetObservation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateObservation(ctx, obs(t, "Cucumbers", "Lane", "2025-04-10", "2.20"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := store.GetObservation(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cucumbers", got.CropName)
	assert.Equal(t, "Lane", got.County)
	assert.Equal(t, "lb", got.Unit)

	_, err = store.CreateObservation(ctx, obs(t, "Cucumbers", "Lane", "2025-04-10", "2.30"))
	assert.ErrorIs(t, err, ErrDuplicateObservation)

	_, err = store.GetObservation(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListObservationsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertObservations(ctx, []PriceObservation{
		obs(t, "Tomatoes", "Multnomah", "2025-03-01", "3.00"),
		obs(t, "Tomatoes", "Multnomah", "2025-03-02", "3.10"),
		obs(t, "Tomatoes", "Fresno", "2025-03-01", "4.00"),
		obs(t, "Corn", "Kern", "2025-03-01", "6.75"),
	})
	require.NoError(t, err)

	all, err := store.ListObservations(ctx, ObservationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	tomatoes, err := store.ListObservations(ctx, ObservationFilter{CropName: "Tomatoes"})
	require.NoError(t, err)
	assert.Len(t, tomatoes, 3)

	paged, err := store.ListObservations(ctx, ObservationFilter{CropName: "Tomatoes", County: "Multnomah", Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "2025-03-02", paged[0].Date.Format(DateLayout))
}

func TestSQLiteListRecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertObservations(ctx, []PriceObservation{
		obs(t, "Tomatoes", "Multnomah", "2025-03-01", "3.00"),
		obs(t, "Tomatoes", "Multnomah", "2025-03-02", "3.10"),
		obs(t, "Tomatoes", "Multnomah", "2025-03-03", "3.20"),
	})
	require.NoError(t, err)

	recent, err := store.ListRecent(ctx, "Tomatoes", "Multnomah", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-03-03", recent[0].Date.Format(DateLayout))
	assert.Equal(t, "2025-03-02", recent[1].Date.Format(DateLayout))
}

func TestNormalizeDateDropsClock(t *testing.T) {
	in := time.Date(2025, 5, 6, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC), NormalizeDate(in))
}
