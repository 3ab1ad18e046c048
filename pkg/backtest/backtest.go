// Package backtest scores one configuration of one forecasting method by
// holding out the most recent observations, fitting on the rest and comparing
// the predictions with what actually happened.
package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
)

const (
	// holdoutFraction is the share of the series reserved for evaluation.
	holdoutFraction = 0.2

	// minTrainPoints is the smallest training prefix a split may leave.
	minTrainPoints = 2
)

// Outcome is the result of backtesting one method configuration.
type Outcome struct {
	Method    string        `json:"method"`
	Params    models.Params `json:"params"`
	Actual    []float64     `json:"actual"`
	Predicted []float64     `json:"predicted"`
	MAE       float64       `json:"mae"`
	MAPE      float64       `json:"mape"`
}

// HoldoutSize returns how many trailing points of an n-point series are held
// out when forecasting steps ahead: min(steps, floor(0.2n)), at least 1, and
// never so many that fewer than 2 training points remain.
func HoldoutSize(n, steps int) (int, error) {
	h := min(steps, int(math.Floor(float64(n)*holdoutFraction)))
	h = max(h, 1)
	h = min(h, n-minTrainPoints)
	if h < 1 {
		return 0, fmt.Errorf("series of %d points cannot be split into training and holdout: %w",
			n, models.ErrInsufficientData)
	}
	return h, nil
}

// Evaluate fits spec's method with params on the training prefix of s and
// scores its predictions over the held-out tail.
func Evaluate(ctx context.Context, s *series.Series, spec models.Spec, params models.Params, steps int) (Outcome, error) {
	name := spec.Name()

	h, err := HoldoutSize(s.Len(), steps)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", name, err)
	}

	values := s.Values()
	split := len(values) - h
	train, actual := values[:split], values[split:]

	fitted, err := spec.Method.Fit(ctx, train, params)
	if err != nil {
		return Outcome{}, err
	}

	predicted := fitted.Predict(h)
	if len(predicted) != h {
		return Outcome{}, fmt.Errorf("%s: predicted %d values, want %d: %w", name, len(predicted), h, models.ErrFitFailed)
	}
	for i, v := range predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Outcome{}, fmt.Errorf("%s: prediction %d is not finite: %w", name, i, models.ErrFitFailed)
		}
	}

	return Outcome{
		Method:    name,
		Params:    params.Clone(),
		Actual:    append([]float64(nil), actual...),
		Predicted: predicted,
		MAE:       MAE(actual, predicted),
		MAPE:      MAPE(actual, predicted),
	}, nil
}

// MAE returns the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

// MAPE returns the mean absolute percentage error as a fraction (0.05 = 5%).
// Points whose actual value is exactly zero are left out of the average; if
// every actual value is zero the result is 0.
func MAPE(actual, predicted []float64) float64 {
	sum := 0.0
	n := 0
	for i := range actual {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Better reports whether a ranks strictly ahead of b: lower MAPE, then lower
// MAE. Equal outcomes are not better, so callers scanning in a fixed order
// keep the earliest.
func Better(a, b Outcome) bool {
	if a.MAPE != b.MAPE {
		return a.MAPE < b.MAPE
	}
	return a.MAE < b.MAE
}
