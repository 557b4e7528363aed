package instrument

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kiteDump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
738561,2885,RELIANCE,RELIANCE INDUSTRIES,0,,0,0.05,1,EQ,NSE,NSE
2953217,11536,TCS,TATA CONSULTANCY SERV LT,0,,0,0.05,1,EQ,NSE,NSE
256265,1001,NIFTY 50,NIFTY 50,0,,0,0,0,EQ,INDICES,INDICES
12345,48,NIFTY23JANFUT,NIFTY,0,2023-01-25,0,0.05,50,FUT,NFO-FUT,NFO
`

type fakeLister struct {
	calls       int
	instruments []Instrument
	err         error
}

func (f *fakeLister) Instruments(_ context.Context, _ string) ([]Instrument, error) {
	f.calls++
	return f.instruments, f.err
}

func TestParseCSV(t *testing.T) {
	got, err := ParseCSV(strings.NewReader(kiteDump))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, Instrument{
		Token: 738561, ExchangeToken: 2885, Symbol: "RELIANCE", Name: "RELIANCE INDUSTRIES",
		InstrumentType: "EQ", Segment: "NSE", Exchange: "NSE",
	}, got[0])
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("tradingsymbol,instrument_type\nA,EQ\n"))
	assert.Error(t, err, "missing token column")

	_, err = ParseCSV(strings.NewReader("instrument_token,tradingsymbol,instrument_type\nabc,A,EQ\n"))
	assert.Error(t, err, "bad token")

	_, err = ParseCSV(strings.NewReader(""))
	assert.Error(t, err, "empty")
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in, err := ParseCSV(strings.NewReader(kiteDump))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	out, err := ParseCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestBuildMap_FiltersType(t *testing.T) {
	in, err := ParseCSV(strings.NewReader(kiteDump))
	require.NoError(t, err)

	m := BuildMap(in, "EQ")
	assert.Len(t, m, 3)
	tok, ok := m.Token("TCS")
	assert.True(t, ok)
	assert.Equal(t, int64(2953217), tok)

	_, ok = m.Token("NIFTY23JANFUT")
	assert.False(t, ok)
}

func TestResolver_FetchesThenUsesCache(t *testing.T) {
	in, err := ParseCSV(strings.NewReader(kiteDump))
	require.NoError(t, err)

	lister := &fakeLister{instruments: in}
	r := NewResolver(lister, t.TempDir(), "EQ", nil)
	ctx := context.Background()

	m, err := r.Resolve(ctx, "nse")
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Equal(t, 1, lister.calls)
	assert.FileExists(t, r.CachePath("NSE"))

	m, err = r.Resolve(ctx, "NSE")
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Equal(t, 1, lister.calls, "second resolve should hit the cache")

	_, err = r.Refresh(ctx, "NSE")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestResolver_FetchError(t *testing.T) {
	r := NewResolver(&fakeLister{err: errors.New("token expired")}, t.TempDir(), "EQ", nil)
	_, err := r.Resolve(context.Background(), "NSE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestResolver_NoMatchingType(t *testing.T) {
	r := NewResolver(&fakeLister{instruments: []Instrument{{Token: 1, Symbol: "X", InstrumentType: "FUT"}}}, t.TempDir(), "EQ", nil)
	_, err := r.Resolve(context.Background(), "NSE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no EQ instruments")

	m, err := r.Refresh(context.Background(), "NSE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no EQ instruments")
	assert.Nil(t, m)
}

func TestResolver_CorruptCache(t *testing.T) {
	lister := &fakeLister{}
	r := NewResolver(lister, t.TempDir(), "EQ", nil)
	require.NoError(t, os.WriteFile(r.CachePath("NSE"), []byte("garbage\n"), 0o644))

	_, err := r.Resolve(context.Background(), "NSE")
	assert.Error(t, err)
	assert.Zero(t, lister.calls)
}
