// Package models provides the forecasting methods the engine selects from.
//
// Every method is a small, stateless value implementing Method. Fitting a
// method against a history produces a Fitted model that is owned by the
// caller and discarded after one backtest or one forecast. Methods never share
// mutable state, so a Catalog can be read concurrently without locks.
package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInsufficientData is returned when a history is too short for the
	// requested configuration.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFitFailed is returned when a numerical fit degenerates or does not
	// converge within its iteration budget.
	ErrFitFailed = errors.New("model fit failed")
)

// Method is a forecasting method definition.
type Method interface {
	// Name returns the catalog identifier, e.g. "holt".
	Name() string

	// Fit estimates the method's state from history using params.
	// history is in chronological order and must not be retained.
	Fit(ctx context.Context, history []float64, params Params) (Fitted, error)
}

// Fitted is a model fitted to one history.
type Fitted interface {
	// Predict returns exactly horizon future values.
	Predict(horizon int) []float64
}

// Params is a concrete hyperparameter assignment. Integer-valued parameters
// (window, season_length, p, d, q) are stored as whole floats.
type Params map[string]float64

// Float returns the named parameter, or def when absent.
func (p Params) Float(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Int returns the named parameter rounded to an int, or def when absent.
func (p Params) Int(name string, def int) int {
	if v, ok := p[name]; ok {
		return int(math.Round(v))
	}
	return def
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String renders params as "a=1,b=0.5" with keys sorted.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p[k], 'g', -1, 64))
	}
	return b.String()
}

// constant is a Fitted that repeats one value.
type constant float64

func (c constant) Predict(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = float64(c)
	}
	return out
}

func needPoints(method string, have, want int) error {
	if have < want {
		return fmt.Errorf("%s: need at least %d points, got %d: %w", method, want, have, ErrInsufficientData)
	}
	return nil
}

func checkUnit(method, name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s: %s must be in (0, 1], got %v: %w", method, name, v, ErrFitFailed)
	}
	return nil
}

func computeMean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}
