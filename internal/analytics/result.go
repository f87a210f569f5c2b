package analytics

// Summary identifies what was analysed and how many observations were found.
type Summary struct {
	CropName   string `json:"crop_name"`
	County     string `json:"county"`
	DataPoints int    `json:"data_points"`
}

func (s Summary) summary() Summary { return s }

// Result is either *Prediction or *InsufficientData. Callers type-switch on it.
type Result interface {
	summary() Summary
}

// Describe returns the identifying fields shared by both result variants.
func Describe(r Result) Summary {
	if r == nil {
		return Summary{}
	}
	return r.summary()
}

// Prediction is the modelled outcome for a series with enough history.
//
// TrendSlope is in price units per day and rounded to 6 decimals; every other
// number is rounded to 2 decimals. PredictionIntervalLow <= PredictedNextPrice
// <= PredictionIntervalHigh always holds.
type Prediction struct {
	Summary
	TrendSlope             float64   `json:"trend_slope"`
	CurrentAverage         float64   `json:"current_average"`
	PredictedNextPrice     float64   `json:"predicted_next_price"`
	PredictionIntervalLow  float64   `json:"prediction_interval_low"`
	PredictionIntervalHigh float64   `json:"prediction_interval_high"`
	MovingAverages         []float64 `json:"moving_averages"`
}

// InsufficientData is returned instead of a Prediction when fewer than
// MinDataPoints observations exist. It is a normal outcome, not an error.
type InsufficientData struct {
	Summary
	Message string `json:"message"`
}

var (
	_ Result = (*Prediction)(nil)
	_ Result = (*InsufficientData)(nil)
)
