// Package bar defines the OHLCV price bar returned by market-data providers and
// the interval granularities they accept.
package bar

import (
	"fmt"
	"time"
)

// Interval is a bar granularity accepted by the historical-data API.
type Interval string

const (
	Minute        Interval = "minute"
	ThreeMinute   Interval = "3minute"
	FiveMinute    Interval = "5minute"
	TenMinute     Interval = "10minute"
	FifteenMinute Interval = "15minute"
	ThirtyMinute  Interval = "30minute"
	SixtyMinute   Interval = "60minute"
	Day           Interval = "day"
)

// Intervals lists every supported interval in ascending granularity.
var Intervals = []Interval{
	Minute, ThreeMinute, FiveMinute, TenMinute,
	FifteenMinute, ThirtyMinute, SixtyMinute, Day,
}

// ParseInterval validates s against the supported intervals.
func ParseInterval(s string) (Interval, error) {
	for _, iv := range Intervals {
		if string(iv) == s {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// Bar is a single OHLCV candle. Date keeps the provider's wall clock and
// offset; callers that need timezone-naive bucketing use its calendar fields.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
