package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultAlphaVantageURL = "https://www.alphavantage.co/query"
	DefaultProviderTimeout = 30 * time.Second
)

var (
	// ErrProviderNotConfigured is returned when no API key is set
	ErrProviderNotConfigured = errors.New("Alpha Vantage API key not configured")
	// ErrNoData is returned when the provider has nothing for a symbol
	ErrNoData = errors.New("no data returned")
	// ErrRateLimited is returned when a rate limit notice replaced the payload
	ErrRateLimited = errors.New("provider rate limit reached")
)

// ProviderError is an error reported by the provider itself
type ProviderError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Alpha Vantage %s error: %s (status: %d)", e.Function, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("Alpha Vantage %s error: %s", e.Function, e.Message)
}

// GlobalQuote is the GLOBAL_QUOTE payload, keyed by Alpha Vantage's labels
type GlobalQuote struct {
	Symbol           string `json:"01. symbol"`
	Open             string `json:"02. open"`
	High             string `json:"03. high"`
	Low              string `json:"04. low"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	PreviousClose    string `json:"08. previous close"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

// CompanyOverview is the OVERVIEW payload
type CompanyOverview struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Exchange             string `json:"Exchange"`
	Sector               string `json:"Sector"`
	Industry             string `json:"Industry"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	DividendYield        string `json:"DividendYield"`
	EPS                  string `json:"EPS"`
	High52Week           string `json:"52WeekHigh"`
	Low52Week            string `json:"52WeekLow"`
}

// PricePoint is one bar of a time series
type PricePoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// SymbolMatch is one SYMBOL_SEARCH result
type SymbolMatch struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Region     string  `json:"region"`
	Currency   string  `json:"currency"`
	MatchScore float64 `json:"match_score"`
}

// Interval selects a TIME_SERIES function
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// AlphaVantageClient handles Alpha Vantage API calls
type AlphaVantageClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// AlphaVantageOption configures the client
type AlphaVantageOption func(*AlphaVantageClient)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) AlphaVantageOption {
	return func(c *AlphaVantageClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) AlphaVantageOption {
	return func(c *AlphaVantageClient) {
		c.logger = logger
	}
}

// WithRatePerMinute paces outgoing requests. Zero or less disables pacing.
func WithRatePerMinute(requests int) AlphaVantageOption {
	return func(c *AlphaVantageClient) {
		if requests <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requests)), requests)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) AlphaVantageOption {
	return func(c *AlphaVantageClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewAlphaVantageClient creates a new Alpha Vantage client
func NewAlphaVantageClient(apiKey string, opts ...AlphaVantageOption) *AlphaVantageClient {
	c := &AlphaVantageClient{
		baseURL: DefaultAlphaVantageURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultProviderTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(12*time.Second), 5),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.logger.Warn().Msg("ALPHA_VANTAGE_API_KEY is not set, stock lookups will use stored data only")
	}

	return c
}

// query performs a rate-limited call and returns the top-level payload
func (c *AlphaVantageClient) query(ctx context.Context, function string, params url.Values) (map[string]json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrProviderNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("function", function)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{Function: function, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", function, err)
	}

	if raw, ok := payload["Error Message"]; ok {
		return nil, &ProviderError{Function: function, Message: rawString(raw)}
	}

	for _, key := range []string{"Note", "Information"} {
		if raw, ok := payload[key]; ok {
			c.logger.Warn().
				Str("function", function).
				Str("notice", rawString(raw)).
				Msg("Alpha Vantage API limit reached")
		}
	}

	return payload, nil
}

// FetchQuote fetches the real-time quote for a symbol
func (c *AlphaVantageClient) FetchQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	payload, err := c.query(ctx, "GLOBAL_QUOTE", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	raw, ok := payload["Global Quote"]
	if !ok {
		return nil, noDataError(payload, symbol)
	}

	var quote GlobalQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if quote.Symbol == "" {
		return nil, noDataError(payload, symbol)
	}

	return &quote, nil
}

// FetchOverview fetches company fundamentals for a symbol
func (c *AlphaVantageClient) FetchOverview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	payload, err := c.query(ctx, "OVERVIEW", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var overview CompanyOverview
	if raw, ok := payload["Symbol"]; ok {
		overview.Symbol = rawString(raw)
	}
	if overview.Symbol == "" {
		return nil, noDataError(payload, symbol)
	}

	// Re-decode the full object into the typed struct
	full, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode overview: %w", err)
	}
	if err := json.Unmarshal(full, &overview); err != nil {
		return nil, fmt.Errorf("failed to decode overview: %w", err)
	}

	return &overview, nil
}

// FetchTimeSeries fetches the compact price history, oldest first
func (c *AlphaVantageClient) FetchTimeSeries(ctx context.Context, symbol string, interval Interval) ([]PricePoint, error) {
	var function, key string
	switch interval {
	case IntervalWeekly:
		function, key = "TIME_SERIES_WEEKLY", "Weekly Time Series"
	case IntervalMonthly:
		function, key = "TIME_SERIES_MONTHLY", "Monthly Time Series"
	default:
		function, key = "TIME_SERIES_DAILY", "Time Series (Daily)"
	}

	payload, err := c.query(ctx, function, url.Values{"symbol": {symbol}, "outputsize": {"compact"}})
	if err != nil {
		return nil, err
	}

	raw, ok := payload[key]
	if !ok {
		return nil, noDataError(payload, symbol)
	}

	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("failed to decode time series: %w", err)
	}

	points := make([]PricePoint, 0, len(series))
	for date, bar := range series {
		point := PricePoint{Date: date}
		if v := parseNumber(bar["1. open"]); v != nil {
			point.Open = *v
		}
		if v := parseNumber(bar["2. high"]); v != nil {
			point.High = *v
		}
		if v := parseNumber(bar["3. low"]); v != nil {
			point.Low = *v
		}
		if v := parseNumber(bar["4. close"]); v != nil {
			point.Close = *v
		}
		if v := parseCount(bar["5. volume"]); v != nil {
			point.Volume = *v
		}
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	return points, nil
}

// SearchSymbols runs a keyword search
func (c *AlphaVantageClient) SearchSymbols(ctx context.Context, keywords string) ([]SymbolMatch, error) {
	payload, err := c.query(ctx, "SYMBOL_SEARCH", url.Values{"keywords": {keywords}})
	if err != nil {
		return nil, err
	}

	raw, ok := payload["bestMatches"]
	if !ok {
		if _, limited := rateLimitNotice(payload); limited {
			return nil, ErrRateLimited
		}
		return []SymbolMatch{}, nil
	}

	var matches []map[string]string
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	results := make([]SymbolMatch, 0, len(matches))
	for _, m := range matches {
		match := SymbolMatch{
			Symbol:   m["1. symbol"],
			Name:     m["2. name"],
			Type:     m["3. type"],
			Region:   m["4. region"],
			Currency: m["8. currency"],
		}
		if score := parseNumber(m["9. matchScore"]); score != nil {
			match.MatchScore = *score
		}
		results = append(results, match)
	}

	return results, nil
}

func noDataError(payload map[string]json.RawMessage, symbol string) error {
	if notice, limited := rateLimitNotice(payload); limited {
		return fmt.Errorf("%w for %s: %s", ErrRateLimited, symbol, notice)
	}
	return fmt.Errorf("%w for %s", ErrNoData, symbol)
}

func rateLimitNotice(payload map[string]json.RawMessage) (string, bool) {
	for _, key := range []string{"Note", "Information"} {
		if raw, ok := payload[key]; ok {
			return rawString(raw), true
		}
	}
	return "", false
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
