package series

import (
	"fmt"
	"time"
)

// maxCalendarMonths bounds the month-based period detection (yearly data).
const maxCalendarMonths = 12

// Period is the constant gap between consecutive observations.
//
// Calendar periods (Months > 0) are used when every gap in the series is a
// whole number of calendar months, so monthly data keeps landing on the same
// day of month instead of drifting by a fixed 31 days. Series reported on the
// last day of each month set EndOfMonth, and every step lands on the last day
// of its target month.
type Period struct {
	Months     int
	EndOfMonth bool
	Duration   time.Duration
}

// Next returns t advanced by one period.
func (p Period) Next(t time.Time) time.Time {
	switch {
	case p.Months > 0 && p.EndOfMonth:
		y, m, _ := t.Date()
		hh, mm, ss := t.Clock()
		// Day 0 of the following month is the last day of the target month.
		return time.Date(y, m+time.Month(p.Months)+1, 0, hh, mm, ss, t.Nanosecond(), t.Location())
	case p.Months > 0:
		return t.AddDate(0, p.Months, 0)
	default:
		return t.Add(p.Duration)
	}
}

func (p Period) String() string {
	switch {
	case p.Months > 0 && p.EndOfMonth:
		return fmt.Sprintf("%dmo@eom", p.Months)
	case p.Months > 0:
		return fmt.Sprintf("%dmo", p.Months)
	default:
		return p.Duration.String()
	}
}

// inferPeriod returns the modal gap of sorted, distinct points. Ties resolve to
// the smaller gap.
func inferPeriod(points []Point) Period {
	if months, ok := monthEndMonths(points); ok {
		return Period{Months: months, EndOfMonth: true}
	}
	if months, ok := modalMonths(points); ok {
		return Period{Months: months}
	}

	counts := make(map[time.Duration]int)
	for i := 1; i < len(points); i++ {
		counts[points[i].Timestamp.Sub(points[i-1].Timestamp)]++
	}

	var best time.Duration
	bestCount := 0
	for gap, c := range counts {
		if c > bestCount || (c == bestCount && gap < best) {
			best, bestCount = gap, c
		}
	}
	return Period{Duration: best}
}

// modalMonths reports the modal month gap when every gap is whole months.
func modalMonths(points []Point) (int, bool) {
	counts := make(map[int]int)
	for i := 1; i < len(points); i++ {
		m := wholeMonths(points[i-1].Timestamp, points[i].Timestamp)
		if m == 0 {
			return 0, false
		}
		counts[m]++
	}
	return modal(counts)
}

// monthEndMonths reports the modal month gap when every point falls on the
// last day of its month at the same time of day.
func monthEndMonths(points []Point) (int, bool) {
	if len(points) < 2 {
		return 0, false
	}
	first := points[0].Timestamp
	for _, p := range points {
		if !lastDayOfMonth(p.Timestamp) || !sameClock(p.Timestamp, first) {
			return 0, false
		}
	}

	counts := make(map[int]int)
	for i := 1; i < len(points); i++ {
		m := monthIndex(points[i].Timestamp) - monthIndex(points[i-1].Timestamp)
		if m < 1 || m > maxCalendarMonths {
			return 0, false
		}
		counts[m]++
	}
	return modal(counts)
}

func lastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

func sameClock(a, b time.Time) bool {
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	return ah == bh && am == bm && as == bs && a.Nanosecond() == b.Nanosecond()
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}

// modal returns the most frequent key, the smaller one on ties.
func modal(counts map[int]int) (int, bool) {
	best, bestCount := 0, 0
	for m, c := range counts {
		if c > bestCount || (c == bestCount && m < best) {
			best, bestCount = m, c
		}
	}
	return best, best > 0
}

// wholeMonths returns m when to == from + m calendar months, 0 otherwise.
func wholeMonths(from, to time.Time) int {
	if to.Sub(from) < 28*24*time.Hour {
		return 0
	}
	for m := 1; m <= maxCalendarMonths; m++ {
		if from.AddDate(0, m, 0).Equal(to) {
			return m
		}
	}
	return 0
}
