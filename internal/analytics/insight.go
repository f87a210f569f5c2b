package analytics

import (
	"fmt"
	"math"
)

// Direction is "rising" for a non-negative slope and "falling" otherwise.
func Direction(p *Prediction) string {
	if p.TrendSlope >= 0 {
		return "rising"
	}
	return "falling"
}

// Insight renders a prediction as one plain-language paragraph.
func Insight(p *Prediction, confidence float64) string {
	return fmt.Sprintf(
		"Based on %d historical data points, the price trend for %s in %s is %s (slope: %+.4f/day). "+
			"The next projected price is $%.2f, with a %d%% prediction interval of $%.2f to $%.2f.",
		p.DataPoints, p.CropName, p.County, Direction(p), p.TrendSlope,
		p.PredictedNextPrice, int(math.Round(confidence*100)),
		p.PredictionIntervalLow, p.PredictionIntervalHigh,
	)
}

// InsufficientDetail explains why no prediction was produced.
func InsufficientDetail(r *InsufficientData, minimum int) string {
	return fmt.Sprintf(
		"Not enough historical data to generate a prediction for '%s' in '%s' "+
			"(%d data point(s) found, minimum %d required).",
		r.CropName, r.County, r.DataPoints, minimum,
	)
}
