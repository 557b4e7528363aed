// Package instrument builds the symbol → instrument token lookup the
// historical-data API needs, backed by an on-disk cache of the provider's
// instrument listing.
package instrument

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Instrument is one row of the provider's instrument listing.
type Instrument struct {
	Token          int64
	ExchangeToken  int64
	Symbol         string
	Name           string
	InstrumentType string
	Segment        string
	Exchange       string
}

var columns = []string{
	"instrument_token", "exchange_token", "tradingsymbol", "name",
	"instrument_type", "segment", "exchange",
}

// ParseCSV reads an instrument listing. Columns are located by header name so
// both the provider's full dump and the cache layout are accepted.
func ParseCSV(r io.Reader) ([]Instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read instrument header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range []string{"instrument_token", "tradingsymbol", "instrument_type"} {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("instrument listing missing column %q", c)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := pos[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []Instrument
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read instrument line %d: %w", line, err)
		}

		token, err := strconv.ParseInt(field(rec, "instrument_token"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad instrument_token: %w", line, err)
		}
		exToken, _ := strconv.ParseInt(field(rec, "exchange_token"), 10, 64)

		out = append(out, Instrument{
			Token:          token,
			ExchangeToken:  exToken,
			Symbol:         field(rec, "tradingsymbol"),
			Name:           field(rec, "name"),
			InstrumentType: field(rec, "instrument_type"),
			Segment:        field(rec, "segment"),
			Exchange:       field(rec, "exchange"),
		})
	}
	return out, nil
}

// WriteCSV writes instruments in the cache layout.
func WriteCSV(w io.Writer, instruments []Instrument) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, in := range instruments {
		if err := cw.Write([]string{
			strconv.FormatInt(in.Token, 10),
			strconv.FormatInt(in.ExchangeToken, 10),
			in.Symbol,
			in.Name,
			in.InstrumentType,
			in.Segment,
			in.Exchange,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Map resolves trading symbols to instrument tokens.
type Map map[string]int64

// BuildMap keeps instruments of the given type. An empty type keeps all.
func BuildMap(instruments []Instrument, instrumentType string) Map {
	m := make(Map)
	for _, in := range instruments {
		if instrumentType != "" && in.InstrumentType != instrumentType {
			continue
		}
		m[in.Symbol] = in.Token
	}
	return m
}

// Token returns the token for symbol.
func (m Map) Token(symbol string) (int64, bool) {
	t, ok := m[symbol]
	return t, ok
}
