// Package report renders forecast outcomes as CSV downloads.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/HatiCode/runrate/pkg/engine"
)

// Precision is the number of decimal places written for every number.
const Precision = 6

// Kind selects which report to render.
type Kind string

const (
	KindForecast Kind = "forecast"
	KindDetailed Kind = "detailed"
)

// ParseKind maps a query value to a Kind. Empty means KindForecast.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindForecast:
		return KindForecast, nil
	case KindDetailed:
		return KindDetailed, nil
	default:
		return "", fmt.Errorf("unknown report kind %q", s)
	}
}

// Filename is the suggested attachment name for a report kind.
func (k Kind) Filename() string {
	return string(k) + "_report.csv"
}

// Write renders the report of kind k for outcome to w.
func Write(w io.Writer, k Kind, outcome *engine.Outcome) error {
	switch k {
	case KindDetailed:
		return WriteDetailedCSV(w, outcome)
	default:
		return WriteForecastCSV(w, outcome)
	}
}

// WriteForecastCSV writes one "date,forecast" row per forecast step.
func WriteForecastCSV(w io.Writer, outcome *engine.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "forecast"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, v := range outcome.Forecast {
		row := []string{outcome.Dates[i].UTC().Format(time.RFC3339), format(v)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteDetailedCSV writes one row per backtested method, sorted by name, with
// the selected method flagged in the is_best column.
func WriteDetailedCSV(w io.Writer, outcome *engine.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"model", "mae", "mape", "params", "is_best"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	names := make([]string, 0, len(outcome.BacktestResults))
	for name := range outcome.BacktestResults {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		r := outcome.BacktestResults[name]
		row := []string{
			name,
			format(r.MAE),
			format(r.MAPE),
			r.Params.String(),
			fmt.Sprint(name == outcome.ModelName),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func format(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(Precision)
}
