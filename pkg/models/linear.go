package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MovingAverage forecasts the mean of the last window observations.
type MovingAverage struct{}

// Name returns "moving_average".
func (MovingAverage) Name() string { return "moving_average" }

// Fit averages the trailing window.
func (m MovingAverage) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	window := params.Int("window", 7)
	if window < 1 {
		return nil, fmt.Errorf("%s: window must be >= 1, got %d: %w", m.Name(), window, ErrFitFailed)
	}
	if err := needPoints(m.Name(), len(history), window); err != nil {
		return nil, err
	}

	return constant(stat.Mean(history[len(history)-window:], nil)), nil
}

// LinearTrend fits an ordinary least squares line of value on time index and
// extrapolates it.
type LinearTrend struct{}

// Name returns "linear_trend".
func (LinearTrend) Name() string { return "linear_trend" }

// Fit regresses history on 0..n-1.
func (m LinearTrend) Fit(ctx context.Context, history []float64, _ Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := needPoints(m.Name(), len(history), 2); err != nil {
		return nil, err
	}

	x := make([]float64, len(history))
	for i := range x {
		x[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(x, history, nil, false)
	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return nil, fmt.Errorf("%s: regression produced NaN: %w", m.Name(), ErrFitFailed)
	}

	return linearFit{intercept: intercept, slope: slope, n: len(history)}, nil
}

type linearFit struct {
	intercept float64
	slope     float64
	n         int
}

func (f linearFit) Predict(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = f.intercept + f.slope*float64(f.n+i)
	}
	return out
}
