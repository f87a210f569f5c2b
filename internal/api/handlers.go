package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sprout-pricing/internal/analytics"
	"sprout-pricing/internal/metrics"
	"sprout-pricing/internal/storage"
	"sprout-pricing/internal/version"
)

// MaxListLimit caps the page size of the pricing list.
const MaxListLimit = 1000

// Analyzer produces predictions for a crop/county pair.
type Analyzer interface {
	Analyze(ctx context.Context, cropName, county string) (analytics.Result, error)
	MinDataPoints() int
	ConfidenceLevel() float64
}

// PredictivePricingResponse is the analytics endpoint payload.
type PredictivePricingResponse struct {
	CropName             string    `json:"crop_name"`
	County               string    `json:"county"`
	TrendSlope           float64   `json:"trend_slope"`
	PredictedPrice       float64   `json:"predicted_price"`
	PILow                float64   `json:"pi_low"`
	PIHigh               float64   `json:"pi_high"`
	DataPoints           int       `json:"data_points"`
	CurrentAverage       float64   `json:"current_average"`
	MovingAverages       []float64 `json:"moving_averages"`
	PlainLanguageInsight string    `json:"plain_language_insight"`
}

// PricingRequest creates one price observation.
type PricingRequest struct {
	CropName string  `json:"crop_name" validate:"required,max=100"`
	County   string  `json:"county" validate:"required,max=100"`
	Date     string  `json:"date" validate:"required,datetime=2006-01-02"`
	Price    float64 `json:"price" validate:"gt=0"`
	Unit     string  `json:"unit" validate:"required,max=20"`
}

// Bind implements render.Binder.
func (p *PricingRequest) Bind(*http.Request) error {
	p.CropName = strings.TrimSpace(p.CropName)
	p.County = strings.TrimSpace(p.County)
	p.Date = strings.TrimSpace(p.Date)
	p.Unit = strings.TrimSpace(p.Unit)
	return nil
}

// PricingResponse is one stored observation.
type PricingResponse struct {
	ID        uuid.UUID `json:"id"`
	CropName  string    `json:"crop_name"`
	County    string    `json:"county"`
	Date      string    `json:"date"`
	Price     float64   `json:"price"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

func newPricingResponse(obs storage.PriceObservation) PricingResponse {
	return PricingResponse{
		ID:        obs.ID,
		CropName:  obs.CropName,
		County:    obs.County,
		Date:      obs.Date.Format(storage.DateLayout),
		Price:     obs.Price.InexactFloat64(),
		Unit:      obs.Unit,
		CreatedAt: obs.CreatedAt,
	}
}

// Handlers serves the pricing and analytics endpoints.
type Handlers struct {
	analyzer Analyzer
	store    storage.ObservationStore
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandlers constructs the endpoint handlers.
func NewHandlers(analyzer Analyzer, store storage.ObservationStore, m *metrics.Metrics, logger zerolog.Logger) *Handlers {
	return &Handlers{
		analyzer: analyzer,
		store:    store,
		metrics:  m,
		validate: newValidator(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// PredictivePricing handles GET /api/v1/analytics/predictive-pricing.
func (h *Handlers) PredictivePricing(w http.ResponseWriter, r *http.Request) {
	crop := r.URL.Query().Get("crop_name")
	county := r.URL.Query().Get("county")
	if crop == "" || county == "" {
		_ = render.Render(w, r, errBadRequest("crop_name and county query parameters are required"))
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), crop, county)
	if err != nil {
		h.metrics.ObserveAnalysis(metrics.OutcomeError)
		h.logger.Error().Err(err).Str("crop", crop).Str("county", county).Msg("predictive pricing failed")
		_ = render.Render(w, r, errInternal())
		return
	}

	switch res := result.(type) {
	case *analytics.InsufficientData:
		h.metrics.ObserveAnalysis(metrics.OutcomeInsufficient)
		_ = render.Render(w, r, errNotFound(analytics.InsufficientDetail(res, h.analyzer.MinDataPoints())))
	case *analytics.Prediction:
		h.metrics.ObserveAnalysis(metrics.OutcomePrediction)
		render.JSON(w, r, PredictivePricingResponse{
			CropName:             res.CropName,
			County:               res.County,
			TrendSlope:           res.TrendSlope,
			PredictedPrice:       res.PredictedNextPrice,
			PILow:                res.PredictionIntervalLow,
			PIHigh:               res.PredictionIntervalHigh,
			DataPoints:           res.DataPoints,
			CurrentAverage:       res.CurrentAverage,
			MovingAverages:       res.MovingAverages,
			PlainLanguageInsight: analytics.Insight(res, h.analyzer.ConfidenceLevel()),
		})
	default:
		_ = render.Render(w, r, errInternal())
	}
}

// CreatePricing handles POST /api/v1/pricing/.
func (h *Handlers) CreatePricing(w http.ResponseWriter, r *http.Request) {
	var req PricingRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, errBadRequest("request body must be a JSON pricing record"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		_ = render.Render(w, r, errValidation(err))
		return
	}

	date, err := storage.ParseDate(req.Date)
	if err != nil {
		_ = render.Render(w, r, errValidation(err))
		return
	}

	created, err := h.store.CreateObservation(r.Context(), storage.PriceObservation{
		CropName: req.CropName,
		County:   req.County,
		Date:     date,
		Price:    decimal.NewFromFloat(req.Price),
		Unit:     req.Unit,
	})
	switch {
	case errors.Is(err, storage.ErrDuplicateObservation):
		_ = render.Render(w, r, errConflict("A pricing record for this crop, county and date already exists"))
		return
	case err != nil:
		h.logger.Error().Err(err).Str("crop", req.CropName).Msg("create pricing record failed")
		_ = render.Render(w, r, errInternal())
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newPricingResponse(created))
}

// ListPricing handles GET /api/v1/pricing/.
func (h *Handlers) ListPricing(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		_ = render.Render(w, r, errBadRequest("offset must be a non-negative integer"))
		return
	}
	limit, err := intParam(query.Get("limit"), storage.DefaultListLimit)
	if err != nil || limit < 1 || limit > MaxListLimit {
		_ = render.Render(w, r, errBadRequest("limit must be between 1 and 1000"))
		return
	}

	records, err := h.store.ListObservations(r.Context(), storage.ObservationFilter{
		CropName: query.Get("crop_name"),
		County:   query.Get("county"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("list pricing records failed")
		_ = render.Render(w, r, errInternal())
		return
	}

	out := make([]PricingResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newPricingResponse(rec))
	}
	render.JSON(w, r, out)
}

// GetPricing handles GET /api/v1/pricing/{id}.
func (h *Handlers) GetPricing(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = render.Render(w, r, errBadRequest("id must be a UUID"))
		return
	}

	record, err := h.store.GetObservation(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		_ = render.Render(w, r, errNotFound("Pricing record not found"))
		return
	case err != nil:
		h.logger.Error().Err(err).Str("id", id.String()).Msg("get pricing record failed")
		_ = render.Render(w, r, errInternal())
		return
	}
	render.JSON(w, r, newPricingResponse(record))
}

// HealthResponse reports liveness and store reachability.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Observations int64  `json:"observations"`
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountObservations(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("health check store probe failed")
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, HealthResponse{Status: "degraded", Version: version.Version})
		return
	}
	render.JSON(w, r, HealthResponse{Status: "ok", Version: version.Version, Observations: count})
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
