package models

import (
	"context"
	"fmt"
)

// Naive carries the last observed value forward.
type Naive struct{}

// Name returns "naive".
func (Naive) Name() string { return "naive" }

// Fit requires a single point.
func (m Naive) Fit(ctx context.Context, history []float64, _ Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := needPoints(m.Name(), len(history), 1); err != nil {
		return nil, err
	}
	return constant(history[len(history)-1]), nil
}

// SeasonalNaive repeats the last full season: the forecast for step h is the
// observation season_length steps before it.
type SeasonalNaive struct{}

// Name returns "seasonal_naive".
func (SeasonalNaive) Name() string { return "seasonal_naive" }

// Fit keeps the last season_length observations.
func (m SeasonalNaive) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	period := params.Int("season_length", 7)
	if period < 1 {
		return nil, fmt.Errorf("%s: season_length must be >= 1, got %d: %w", m.Name(), period, ErrFitFailed)
	}
	if err := needPoints(m.Name(), len(history), period); err != nil {
		return nil, err
	}

	season := make([]float64, period)
	copy(season, history[len(history)-period:])
	return seasonalNaiveFit{season: season}, nil
}

type seasonalNaiveFit struct {
	season []float64
}

func (f seasonalNaiveFit) Predict(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = f.season[i%len(f.season)]
	}
	return out
}
