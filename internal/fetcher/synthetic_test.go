package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticDeterministicWithSeed(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := NewSynthetic(10, 99).History("Tomatoes", from, 10)
	b := NewSynthetic(10, 99).History("Tomatoes", from, 10)
	require.Len(t, a, 10)

	for i := range a {
		assert.True(t, a[i].AvgPrice.Decimal.Equal(b[i].AvgPrice.Decimal), "day %d", i)
		assert.Equal(t, from.AddDate(0, 0, i), a[i].Date)
	}
}

func TestSyntheticPricesStayAboveFloor(t *testing.T) {
	s := NewSynthetic(60, 1)
	floor := decimal.NewFromFloat(syntheticFloor)

	for _, p := range s.History("Unknown Crop", time.Now(), 60) {
		assert.True(t, p.AvgPrice.Valid)
		assert.True(t, p.AvgPrice.Decimal.GreaterThanOrEqual(floor), "price %s below floor", p.AvgPrice.Decimal)
		assert.True(t, p.LowPrice.LessThanOrEqual(p.AvgPrice.Decimal))
		assert.True(t, p.HighPrice.GreaterThanOrEqual(p.AvgPrice.Decimal))
		assert.Equal(t, "lb", p.Unit)
	}
}

func TestSyntheticFetchEndsToday(t *testing.T) {
	s := NewSynthetic(4, 3)
	fixed := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	prices, err := s.FetchPrices(context.Background(), "Zucchini", "")
	require.NoError(t, err)
	require.Len(t, prices, 4)
	assert.Equal(t, time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC), prices[0].Date)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), prices[3].Date)
}

func TestRepresentativePrefersAverage(t *testing.T) {
	p := MarketPrice{
		LowPrice:  decimal.RequireFromString("2.00"),
		HighPrice: decimal.RequireFromString("3.01"),
	}
	assert.True(t, p.Representative().Equal(decimal.RequireFromString("2.51")))

	p.AvgPrice = decimal.NewNullDecimal(decimal.RequireFromString("2.755"))
	assert.True(t, p.Representative().Equal(decimal.RequireFromString("2.76")))
}
