// Package series turns raw (date, value) records into a validated,
// chronologically ordered time series with an inferred sampling period.
//
// A Series is immutable once built: accessors hand out copies so a series can
// be shared by the concurrent backtests of a single forecast request without
// any locking.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrValidation marks input the caller must fix (too few points, bad dates,
// non-numeric values, out-of-range parameters).
var ErrValidation = errors.New("validation error")

// Record is one raw row as received from a request body or an uploaded file.
type Record struct {
	Date  string
	Value string
}

// Point is a single observation.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is an ordered sequence of points with strictly increasing timestamps.
type Series struct {
	points []Point
	period Period
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDate parses an ISO-8601 date or date-time. Values without a zone are
// interpreted as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

// ParseValue parses a finite real number.
func ParseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %q is not finite", s)
	}
	return v, nil
}

// Normalize validates records and builds a Series.
//
// Records are sorted by timestamp. Records sharing a timestamp are coalesced
// into one point holding the mean of their values. The sampling period is the
// most frequent gap between consecutive timestamps.
func Normalize(records []Record) (*Series, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: at least 2 data points are required, got %d", ErrValidation, len(records))
	}

	points := make([]Point, len(records))
	for i, r := range records {
		ts, err := ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrValidation, i, err)
		}
		v, err := ParseValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrValidation, i, err)
		}
		points[i] = Point{Timestamp: ts, Value: v}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	points = coalesce(points)
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: at least 2 distinct timestamps are required, got %d", ErrValidation, len(points))
	}

	return &Series{
		points: points,
		period: inferPeriod(points),
	}, nil
}

// FromValues builds a Series from evenly spaced values starting at start.
// It is a convenience for callers that already hold clean data.
func FromValues(start time.Time, step time.Duration, values []float64) (*Series, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be > 0", ErrValidation)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: at least 2 data points are required, got %d", ErrValidation, len(values))
	}

	points := make([]Point, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %d is not finite", ErrValidation, i)
		}
		points[i] = Point{Timestamp: start.Add(time.Duration(i) * step).UTC(), Value: v}
	}

	return &Series{points: points, period: Period{Duration: step}}, nil
}

// coalesce merges runs of equal timestamps into their mean. points must be sorted.
func coalesce(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for i := 0; i < len(points); {
		j := i
		sum := 0.0
		for j < len(points) && points[j].Timestamp.Equal(points[i].Timestamp) {
			sum += points[j].Value
			j++
		}
		out = append(out, Point{Timestamp: points[i].Timestamp, Value: sum / float64(j-i)})
		i = j
	}
	return out
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.points)
}

// Period returns the inferred sampling period.
func (s *Series) Period() Period {
	return s.period
}

// Points returns a copy of the observations.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns a copy of the observed values in chronological order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}

// Timestamps returns a copy of the observation timestamps.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Timestamp
	}
	return out
}

// Last returns the most recent observation.
func (s *Series) Last() Point {
	return s.points[len(s.points)-1]
}

// Head returns the first n points as a new Series sharing this series' period.
// n is clamped to [0, Len()].
func (s *Series) Head(n int) *Series {
	n = max(0, min(n, len(s.points)))
	points := make([]Point, n)
	copy(points, s.points[:n])
	return &Series{points: points, period: s.period}
}

// FutureDates returns n timestamps following the last observation, each one
// period after the previous.
func (s *Series) FutureDates(n int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	dates := make([]time.Time, n)
	t := s.Last().Timestamp
	for i := range dates {
		t = s.period.Next(t)
		dates[i] = t
	}
	return dates
}
