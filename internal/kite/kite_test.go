package kite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svaha/downloader/internal/bar"
)

const instrumentsCSV = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
738561,2885,RELIANCE,RELIANCE INDUSTRIES,0,,0,0.05,1,EQ,NSE,NSE
`

const candlesJSON = `{"status":"success","data":{"candles":[
["2023-01-02T00:00:00+0530",2550.5,2580,2540.1,2575.35,4120543],
["2023-01-03T00:00:00+0530",2575,2590.9,2561,2570,3300012]
]}}`

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	opts = append([]Option{
		WithBaseURL(ts.URL),
		WithHTTPClient(ts.Client()),
		WithRateLimit(0),
	}, opts...)
	return New("key", "secret-token", opts...)
}

func TestInstruments(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instruments/NSE", r.URL.Path)
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "token key:secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(instrumentsCSV))
	}))

	got, err := c.Instruments(context.Background(), "nse")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(738561), got[0].Token)
	assert.Equal(t, "RELIANCE", got[0].Symbol)
}

func TestHistoricalData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instruments/historical/738561/day", r.URL.Path)
		assert.Equal(t, "2023-01-01 00:00:00", r.URL.Query().Get("from"))
		assert.Equal(t, "2023-03-01 23:59:59", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(candlesJSON))
	}))

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	bars, err := c.HistoricalData(context.Background(), 738561, from, to, bar.Day)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, 2550.5, bars[0].Open)
	assert.Equal(t, 2575.35, bars[0].Close)
	assert.Equal(t, int64(4120543), bars[0].Volume)
	_, offset := bars[0].Date.Zone()
	assert.Equal(t, 19800, offset)
	assert.Equal(t, 2, bars[0].Date.Day())
}

func TestHistoricalData_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"Incorrect api_key or access_token.","error_type":"TokenException"}`))
	}))

	_, err := c.HistoricalData(context.Background(), 1, time.Now(), time.Now(), bar.Day)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "TokenException", apiErr.ErrorType)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestHistoricalData_BadCandle(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"candles":[["not-a-time",1,2,3,4,5]]}}`))
	}))

	_, err := c.HistoricalData(context.Background(), 1, time.Now(), time.Now(), bar.Day)
	assert.Error(t, err)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}), WithBreaker(2, time.Minute))

	ctx := context.Background()
	for range 2 {
		_, err := c.HistoricalData(ctx, 1, time.Now(), time.Now(), bar.Day)
		require.Error(t, err)
	}

	_, err := c.HistoricalData(ctx, 1, time.Now(), time.Now(), bar.Day)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"invalid token","error_type":"InputException"}`))
	}), WithBreaker(2, time.Minute))

	for range 4 {
		_, err := c.HistoricalData(context.Background(), 1, time.Now(), time.Now(), bar.Day)
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestRateLimit_HonoursContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(candlesJSON))
	}), WithRateLimit(0.001))

	ctx := context.Background()
	_, err := c.HistoricalData(ctx, 1, time.Now(), time.Now(), bar.Day)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.HistoricalData(ctx, 1, time.Now(), time.Now(), bar.Day)
	assert.Error(t, err)
}
