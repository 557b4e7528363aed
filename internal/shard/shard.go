// Package shard groups bars into calendar buckets. Bucketing uses the bar's
// wall-clock date and ignores its offset, so a bar stamped
// 2023-03-31T23:00:00+05:30 always lands in March.
package shard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/svaha/downloader/internal/bar"
)

// LabelFormat is the layout of a shard label.
const LabelFormat = "2006-01-02"

// Sharding selects the calendar period rows are grouped by.
type Sharding int

const (
	None Sharding = iota
	Day
	Week
	Month
	Quarter
	Year
)

var names = map[Sharding]string{
	None:    "None",
	Day:     "By Day",
	Week:    "By Week",
	Month:   "By Month",
	Quarter: "By Quarter",
	Year:    "By Year",
}

// String returns the label recorded in the metadata index.
func (s Sharding) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("Sharding(%d)", int(s))
}

// Valid reports whether s is one of the defined periods.
func (s Sharding) Valid() bool {
	_, ok := names[s]
	return ok
}

// Parse accepts either the metadata label ("By Month") or the short form
// ("month"), case-insensitively. An empty string means None.
func Parse(s string) (Sharding, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "by ")
	switch v {
	case "", "none":
		return None, nil
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	case "quarter":
		return Quarter, nil
	case "year":
		return Year, nil
	}
	return None, fmt.Errorf("unknown sharding %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Sharding) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown sharding %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sharding) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// BucketEnd returns the last calendar day of the bucket containing t, as a
// midnight UTC date. Weeks end on Sunday. For None it returns the zero time.
func (s Sharding) BucketEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	switch s {
	case Day:
		return day
	case Week:
		return day.AddDate(0, 0, (7-int(day.Weekday()))%7)
	case Month:
		return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
	case Quarter:
		qEnd := ((int(m)-1)/3 + 1) * 3
		return time.Date(y, time.Month(qEnd)+1, 0, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// Group is the set of bars that fall in one bucket.
type Group struct {
	Label string
	Bars  []bar.Bar
}

// Partition splits bars into non-empty buckets ordered by label. Bars keep
// their input order within a bucket. For None a single unlabelled group
// holding every bar is returned; an empty input yields no groups.
func (s Sharding) Partition(bars []bar.Bar) []Group {
	if len(bars) == 0 {
		return nil
	}
	if s == None {
		return []Group{{Bars: bars}}
	}

	byLabel := make(map[string][]bar.Bar)
	for _, b := range bars {
		label := s.BucketEnd(b.Date).Format(LabelFormat)
		byLabel[label] = append(byLabel[label], b)
	}

	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	groups := make([]Group, 0, len(labels))
	for _, l := range labels {
		groups = append(groups, Group{Label: l, Bars: byLabel[l]})
	}
	return groups
}
