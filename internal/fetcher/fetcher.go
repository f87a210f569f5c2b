package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPrices is returned when a source answers successfully but with no usable rows.
var ErrNoPrices = errors.New("no pricing data returned")

// MarketPrice is one wholesale quote for a commodity on a report date.
type MarketPrice struct {
	Commodity string
	Variety   string
	Unit      string
	LowPrice  decimal.Decimal
	HighPrice decimal.Decimal
	AvgPrice  decimal.NullDecimal
	Date      time.Time
	Location  string
}

// Representative is the average price when reported, else the low/high midpoint,
// rounded to cents.
func (p MarketPrice) Representative() decimal.Decimal {
	if p.AvgPrice.Valid && p.AvgPrice.Decimal.IsPositive() {
		return p.AvgPrice.Decimal.Round(2)
	}
	return p.LowPrice.Add(p.HighPrice).Div(decimal.NewFromInt(2)).Round(2)
}

// MarketPriceFetcher retrieves recent wholesale prices for a commodity.
type MarketPriceFetcher interface {
	FetchPrices(ctx context.Context, commodity, zipCode string) ([]MarketPrice, error)
}
