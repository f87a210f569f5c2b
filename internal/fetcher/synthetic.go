package fetcher

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CropProfile parameterises a synthetic price curve.
type CropProfile struct {
	Base      float64
	Amplitude float64
	Trend     float64
	Noise     float64
}

// DefaultProfiles mirror typical organic produce prices per lb.
var DefaultProfiles = map[string]CropProfile{
	"Tomatoes":     {Base: 3.00, Amplitude: 0.60, Trend: 0.005, Noise: 0.15},
	"Zucchini":     {Base: 2.50, Amplitude: 0.50, Trend: 0.008, Noise: 0.12},
	"Bell Peppers": {Base: 3.50, Amplitude: 0.40, Trend: 0.003, Noise: 0.18},
	"Cucumbers":    {Base: 2.20, Amplitude: 0.35, Trend: 0.006, Noise: 0.10},
}

var fallbackProfile = CropProfile{Base: 2.50, Amplitude: 0.40, Trend: 0.005, Noise: 0.15}

const (
	syntheticPeriodDays = 90
	syntheticFloor      = 0.50
)

// Synthetic generates plausible daily prices when no real feed is available.
type Synthetic struct {
	days     int
	location string
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic builds a generator producing the given number of trailing days.
// A zero seed draws one at random.
func NewSynthetic(days int, seed uint64) *Synthetic {
	if days <= 0 {
		days = 30
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Synthetic{
		days:     days,
		location: "Portland Terminal Market",
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// FetchPrices returns one price per day ending today.
func (s *Synthetic) FetchPrices(ctx context.Context, commodity, zipCode string) ([]MarketPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := truncateDay(s.now())
	return s.History(commodity, today.AddDate(0, 0, -(s.days-1)), s.days), nil
}

// History returns days consecutive prices starting at from.
func (s *Synthetic) History(commodity string, from time.Time, days int) []MarketPrice {
	profile, ok := DefaultProfiles[commodity]
	if !ok {
		profile = fallbackProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from = truncateDay(from)
	prices := make([]MarketPrice, 0, days)
	for d := 0; d < days; d++ {
		avg := s.price(profile, d)
		prices = append(prices, MarketPrice{
			Commodity: commodity,
			Variety:   "Organic",
			Unit:      "lb",
			LowPrice:  avg.Mul(decimal.NewFromFloat(0.90)).Round(2),
			HighPrice: avg.Mul(decimal.NewFromFloat(1.10)).Round(2),
			AvgPrice:  decimal.NewNullDecimal(avg),
			Date:      from.AddDate(0, 0, d),
			Location:  s.location,
		})
	}
	return prices
}

func (s *Synthetic) price(p CropProfile, day int) decimal.Decimal {
	seasonal := p.Amplitude * math.Sin(2*math.Pi*float64(day)/syntheticPeriodDays)
	trend := p.Trend * float64(day)
	noise := s.rng.NormFloat64() * p.Noise
	v := math.Max(syntheticFloor, p.Base+seasonal+trend+noise)
	return decimal.NewFromFloat(v).Round(2)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ MarketPriceFetcher = (*Synthetic)(nil)
