package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	usdaReportsPath = "/reports"
	defaultUSDABase = "https://marsapi.ams.usda.gov/services/v1.2"
	defaultUnit     = "lb"
)

var reportDateLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339}

// USDAOptions parameterise the USDA Market News client.
type USDAOptions struct {
	BaseURL         string
	APIKey          string
	UserAgent       string
	Timeout         time.Duration
	RequestsPerSec  float64
	MaxRetryElapsed time.Duration
	// Fallback serves prices when no API key is configured, and on API failure
	// when FallbackOnError is set.
	Fallback        MarketPriceFetcher
	FallbackOnError bool
}

// USDA fetches wholesale terminal market reports from USDA AMS Market News.
type USDA struct {
	opts    USDAOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewUSDA constructs a USDA Market News fetcher.
func NewUSDA(opts USDAOptions, logger zerolog.Logger) *USDA {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	if opts.MaxRetryElapsed <= 0 {
		opts.MaxRetryElapsed = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultUSDABase
	}

	return &USDA{
		opts:    opts,
		logger:  logger.With().Str("component", "usda_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
	}
}

// FetchPrices retrieves report rows for commodity, optionally near zipCode.
func (u *USDA) FetchPrices(ctx context.Context, commodity, zipCode string) ([]MarketPrice, error) {
	if strings.TrimSpace(commodity) == "" {
		return nil, errors.New("commodity is required")
	}

	if u.opts.APIKey == "" {
		if u.opts.Fallback == nil {
			return nil, errors.New("usda api key not configured")
		}
		u.logger.Info().Str("commodity", commodity).Msg("no usda api key; using synthetic prices")
		return u.opts.Fallback.FetchPrices(ctx, commodity, zipCode)
	}

	prices, err := u.fetchReports(ctx, commodity, zipCode)
	if err != nil && u.opts.FallbackOnError && u.opts.Fallback != nil && ctx.Err() == nil {
		u.logger.Warn().Err(err).Str("commodity", commodity).Msg("usda fetch failed; falling back to synthetic prices")
		return u.opts.Fallback.FetchPrices(ctx, commodity, zipCode)
	}
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoPrices, commodity)
	}
	return prices, nil
}

func (u *USDA) fetchReports(ctx context.Context, commodity, zipCode string) ([]MarketPrice, error) {
	params := url.Values{}
	params.Set("q", commodity)
	if zipCode != "" {
		params.Set("zip", zipCode)
	}
	endpoint := u.baseURL + usdaReportsPath + "?" + params.Encode()

	var payload []byte
	operation := func() error {
		if err := u.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(u.opts.APIKey, "")
		if ua := strings.TrimSpace(u.opts.UserAgent); ua != "" {
			req.Header.Set("User-Agent", ua)
		}

		resp, err := u.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			payload = body
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return parseHTTPError(resp.StatusCode, body)
		default:
			return backoff.Permanent(parseHTTPError(resp.StatusCode, body))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = u.opts.MaxRetryElapsed

	notify := func(err error, wait time.Duration) {
		u.logger.Debug().Err(err).Dur("retry_in", wait).Str("commodity", commodity).Msg("retrying usda request")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("fetch usda reports: %w", err)
	}

	return u.decodeReports(commodity, payload)
}

type reportsResponse struct {
	Results []json.RawMessage `json:"results"`
}

type reportRow struct {
	CommodityName string `json:"commodity_name"`
	Variety       string `json:"variety"`
	Package       struct {
		Unit string `json:"unit"`
	} `json:"package"`
	LowPrice   decimal.NullDecimal `json:"low_price"`
	HighPrice  decimal.NullDecimal `json:"high_price"`
	AvgPrice   decimal.NullDecimal `json:"avg_price"`
	ReportDate string              `json:"report_date"`
	Location   string              `json:"location"`
}

func (u *USDA) decodeReports(commodity string, payload []byte) ([]MarketPrice, error) {
	var envelope reportsResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode usda reports: %w", err)
	}

	prices := make([]MarketPrice, 0, len(envelope.Results))
	for i, raw := range envelope.Results {
		price, err := toMarketPrice(commodity, raw)
		if err != nil {
			u.logger.Warn().Err(err).Int("row", i).Str("commodity", commodity).Msg("skipping malformed usda row")
			continue
		}
		prices = append(prices, price)
	}
	return prices, nil
}

func toMarketPrice(commodity string, raw json.RawMessage) (MarketPrice, error) {
	var row reportRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return MarketPrice{}, err
	}

	date, err := parseReportDate(row.ReportDate)
	if err != nil {
		return MarketPrice{}, err
	}
	if !row.AvgPrice.Valid && (!row.LowPrice.Valid || !row.HighPrice.Valid) {
		return MarketPrice{}, errors.New("row has neither avg_price nor low/high prices")
	}

	name := row.CommodityName
	if name == "" {
		name = commodity
	}
	unit := row.Package.Unit
	if unit == "" {
		unit = defaultUnit
	}
	location := row.Location
	if location == "" {
		location = "Unknown"
	}

	price := MarketPrice{
		Commodity: name,
		Variety:   row.Variety,
		Unit:      unit,
		LowPrice:  row.LowPrice.Decimal,
		HighPrice: row.HighPrice.Decimal,
		AvgPrice:  row.AvgPrice,
		Date:      date,
		Location:  location,
	}
	if !price.Representative().IsPositive() {
		return MarketPrice{}, errors.New("non-positive price")
	}
	return price, nil
}

func parseReportDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range reportDateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised report_date %q", v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("usda api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Detail != "" {
			return fmt.Errorf("usda api error (%d): %s", status, apiErr.Detail)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("usda api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("usda api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("usda api error (%d)", status)
}

var _ MarketPriceFetcher = (*USDA)(nil)
