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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultPolygonBaseURL = "https://api.polygon.io/v2"

// ErrNoData is returned when Polygon answers without results.
var ErrNoData = errors.New("no data found for symbol")

// PolygonOptions parameterise the Polygon fetcher.
type PolygonOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	UserAgent     string
}

// Polygon fetches the previous close from Polygon.io. When the key is missing
// or every attempt fails it returns a synthetic sample instead of an error.
type Polygon struct {
	opts      PolygonOptions
	logger    zerolog.Logger
	client    *http.Client
	baseURL   string
	synthetic *Synthetic
}

// NewPolygon constructs a Polygon fetcher.
func NewPolygon(opts PolygonOptions, logger zerolog.Logger) *Polygon {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultPolygonBaseURL
	}

	return &Polygon{
		opts:      opts,
		logger:    logger.With().Str("component", "polygon_fetcher").Logger(),
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		synthetic: NewSynthetic(0),
	}
}

// GetPrice implements PriceProvider.
func (p *Polygon) GetPrice(ctx context.Context, symbol string) (PriceSample, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return PriceSample{}, &SymbolError{}
	}

	if p.opts.APIKey == "" {
		p.logger.Debug().Str("symbol", symbol).Msg("no api key configured; using synthetic price")
		return p.synthetic.Sample(symbol), nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		price, err := p.fetchPrevClose(ctx, symbol)
		if err == nil {
			return PriceSample{
				Symbol:    symbol,
				Price:     price.InexactFloat64(),
				Timestamp: time.Now().UTC(),
				Origin:    OriginLive,
			}, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrNoData) || attempt == p.opts.RetryAttempts {
			break
		}
		if !sleepContext(ctx, p.opts.RetryDelay) {
			break
		}
	}

	p.logger.Warn().Err(lastErr).Str("symbol", symbol).Msg("polygon fetch failed; using synthetic price")
	return p.synthetic.Sample(symbol), nil
}

func (p *Polygon) fetchPrevClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/aggs/ticker/%s/prev?adjusted=true&apikey=%s",
		p.baseURL, url.PathEscape(symbol), url.QueryEscape(p.opts.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	var agg prevCloseResponse
	if err := json.Unmarshal(payload, &agg); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode polygon response: %w", err)
	}
	if len(agg.Results) == 0 {
		return decimal.Decimal{}, ErrNoData
	}
	return agg.Results[0].Close, nil
}

type prevCloseResponse struct {
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	Results []struct {
		Close decimal.Decimal `json:"c"`
		Open  decimal.Decimal `json:"o"`
		High  decimal.Decimal `json:"h"`
		Low   decimal.Decimal `json:"l"`
		Time  int64           `json:"t"`
	} `json:"results"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("polygon api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("polygon api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("polygon api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("polygon api error (%d)", status)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ PriceProvider = (*Polygon)(nil)
