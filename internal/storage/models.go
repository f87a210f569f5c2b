package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date wire and storage format.
const DateLayout = "2006-01-02"

// DefaultListLimit caps ListObservations when the caller passes no limit.
const DefaultListLimit = 100

// PriceObservation is one commodity price for a crop in a county on a day.
// (CropName, County, Date) is the natural key.
type PriceObservation struct {
	ID        uuid.UUID
	CropName  string
	County    string
	Date      time.Time
	Price     decimal.Decimal
	Unit      string
	CreatedAt time.Time
}

// ObservationFilter narrows ListObservations. Empty strings match everything.
type ObservationFilter struct {
	CropName string
	County   string
	Offset   int
	Limit    int
}

// NormalizeDate truncates t to a UTC calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (f ObservationFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ObservationFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

func prepareObservation(obs PriceObservation, now time.Time) PriceObservation {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	obs.Date = NormalizeDate(obs.Date)
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now.UTC()
	}
	return obs
}
