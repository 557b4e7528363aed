// Package kite is a client for the Kite Connect REST API covering the two
// calls the downloader needs: the instrument listing and historical candles.
// Session and login flows are out of scope; the caller supplies an access
// token that is already valid.
package kite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/instrument"
	"github.com/svaha/downloader/internal/metrics"
)

const (
	defaultBaseURL = "https://api.kite.trade"
	apiVersion     = "3"
	candleLayout   = "2006-01-02T15:04:05-0700"
	queryLayout    = "2006-01-02 15:04:05"
	dateFormat     = "2006-01-02"
)

// APIError is an error envelope returned by the API.
type APIError struct {
	StatusCode int    `json:"-"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrorType == "" {
		return fmt.Sprintf("kite: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kite: %s (HTTP %d): %s", e.ErrorType, e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if retried later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to Kite Connect.
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
}

// New creates a Client with the given options applied.
func New(apiKey, accessToken string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(3), 1), // historical API: 3 req/s
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(5, 30*time.Second)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit caps requests per second. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithBreaker opens the circuit after consecutive server-side failures and
// keeps it open for cooldown.
func WithBreaker(consecutive uint32, cooldown time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(consecutive, cooldown) }
}

func newBreaker(consecutive uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "kite",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutive
		},
		// Rejections for a bad token or symbol say nothing about the
		// provider's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("kite: circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Instruments returns the instrument listing for exchange.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]instrument.Instrument, error) {
	body, err := c.get(ctx, "instruments", "/instruments/"+url.PathEscape(strings.ToUpper(exchange)), nil)
	if err != nil {
		return nil, err
	}
	instruments, err := instrument.ParseCSV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kite: parse instruments: %w", err)
	}
	return instruments, nil
}

type historicalResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

// HistoricalData returns candles for token between from and to, both
// inclusive calendar days.
func (c *Client) HistoricalData(ctx context.Context, token int64, from, to time.Time, interval bar.Interval) ([]bar.Bar, error) {
	q := url.Values{}
	q.Set("from", startOfDay(from).Format(queryLayout))
	q.Set("to", endOfDay(to).Format(queryLayout))

	path := fmt.Sprintf("/instruments/historical/%d/%s", token, url.PathEscape(string(interval)))
	body, err := c.get(ctx, "historical", path, q)
	if err != nil {
		return nil, err
	}

	var resp historicalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kite: parse historical response: %w", err)
	}

	bars := make([]bar.Bar, 0, len(resp.Data.Candles))
	for i, row := range resp.Data.Candles {
		b, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("kite: candle %d: %w", i, err)
		}
		bars = append(bars, b)
	}

	slog.Debug("kite: retrieved candles", "token", token, "interval", interval,
		"from", from.Format(dateFormat), "to", to.Format(dateFormat), "count", len(bars))
	return bars, nil
}

func parseCandle(row []any) (bar.Bar, error) {
	if len(row) < 6 {
		return bar.Bar{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	ts, ok := row[0].(string)
	if !ok {
		return bar.Bar{}, fmt.Errorf("timestamp is %T", row[0])
	}
	date, err := time.Parse(candleLayout, ts)
	if err != nil {
		return bar.Bar{}, err
	}

	var vals [5]float64
	for i := range vals {
		v, ok := row[i+1].(float64)
		if !ok {
			return bar.Bar{}, fmt.Errorf("field %d is %T", i+1, row[i+1])
		}
		vals[i] = v
	}

	return bar.Bar{
		Date:   date,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: int64(vals[4]),
	}, nil
}

// get performs a paced, breaker-guarded GET and returns the body of a 200.
func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, path, q)
	})
	metrics.ProviderLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderRequests.WithLabelValues(endpoint, "rejected").Inc()
		return nil, fmt.Errorf("kite: %s: %w", endpoint, err)
	case err != nil:
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, path string, q url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", apiVersion)
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)

	res, err := c.client.Do(req) //nolint:gosec // URL built from internal config
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("kite: read body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
