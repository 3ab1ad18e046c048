package models

import (
	"context"
	"fmt"
)

// SimpleExponentialSmoothing tracks a single exponentially weighted level.
//
//	L_t = α·y_t + (1-α)·L_{t-1},   F_{t+h} = L_t
type SimpleExponentialSmoothing struct{}

// Name returns "simple_exponential_smoothing".
func (SimpleExponentialSmoothing) Name() string { return "simple_exponential_smoothing" }

// Fit runs the level recursion over history, seeded with the first value.
func (m SimpleExponentialSmoothing) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alpha := params.Float("alpha", 0.3)
	if err := checkUnit(m.Name(), "alpha", alpha); err != nil {
		return nil, err
	}
	if err := needPoints(m.Name(), len(history), 2); err != nil {
		return nil, err
	}

	level := history[0]
	for _, y := range history[1:] {
		level = alpha*y + (1-alpha)*level
	}
	return constant(level), nil
}

// Holt is double exponential smoothing with an additive linear trend.
//
//	L_t = α·y_t + (1-α)·(L_{t-1} + T_{t-1})
//	T_t = β·(L_t - L_{t-1}) + (1-β)·T_{t-1}
//	F_{t+h} = L_t + h·T_t
//
// The level starts at y_0 and the trend at y_1 - y_0, so an exactly linear
// history is reproduced without error.
type Holt struct{}

// Name returns "holt".
func (Holt) Name() string { return "holt" }

// Fit runs the level and trend recursions.
func (m Holt) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alpha := params.Float("alpha", 0.8)
	beta := params.Float("beta", 0.2)
	if err := checkUnit(m.Name(), "alpha", alpha); err != nil {
		return nil, err
	}
	if err := checkUnit(m.Name(), "beta", beta); err != nil {
		return nil, err
	}
	if err := needPoints(m.Name(), len(history), 3); err != nil {
		return nil, err
	}

	level := history[0]
	trend := history[1] - history[0]
	for _, y := range history[1:] {
		prev := level
		level = alpha*y + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return trendFit{level: level, trend: trend}, nil
}

type trendFit struct {
	level float64
	trend float64
}

func (f trendFit) Predict(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = f.level + float64(i+1)*f.trend
	}
	return out
}

// HoltWinters is additive triple exponential smoothing.
//
//	L_t = α·(y_t - S_{t-m}) + (1-α)·(L_{t-1} + T_{t-1})
//	T_t = β·(L_t - L_{t-1}) + (1-β)·T_{t-1}
//	S_t = γ·(y_t - L_t) + (1-γ)·S_{t-m}
//	F_{t+h} = L_t + h·T_t + S_{t-m+h}
//
// Initial components come from the first two seasons: the trend is the
// per-step change between their means, the level is the first season's mean
// projected to its last step, and seasonal indices are the detrended
// deviations of the first season.
type HoltWinters struct{}

// Name returns "holt_winters".
func (HoltWinters) Name() string { return "holt_winters" }

// Fit initializes from the first two seasons and smooths the remainder.
func (m HoltWinters) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alpha := params.Float("alpha", 0.5)
	beta := params.Float("beta", 0.1)
	gamma := params.Float("gamma", 0.1)
	period := params.Int("season_length", 7)
	if err := checkUnit(m.Name(), "alpha", alpha); err != nil {
		return nil, err
	}
	if err := checkUnit(m.Name(), "beta", beta); err != nil {
		return nil, err
	}
	if err := checkUnit(m.Name(), "gamma", gamma); err != nil {
		return nil, err
	}
	if period < 2 {
		return nil, fmt.Errorf("%s: season_length must be >= 2, got %d: %w", m.Name(), period, ErrFitFailed)
	}
	if err := needPoints(m.Name(), len(history), 2*period); err != nil {
		return nil, err
	}

	first := computeMean(history[:period])
	second := computeMean(history[period : 2*period])
	trend := (second - first) / float64(period)
	center := float64(period-1) / 2

	seasonals := make([]float64, period)
	for i := range period {
		seasonals[i] = history[i] - (first + trend*(float64(i)-center))
	}
	level := first + trend*center

	for t := period; t < len(history); t++ {
		y := history[t]
		s := seasonals[t%period]
		prev := level
		level = alpha*(y-s) + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
		seasonals[t%period] = gamma*(y-level) + (1-gamma)*s
	}

	return holtWintersFit{
		level:     level,
		trend:     trend,
		seasonals: seasonals,
		n:         len(history),
	}, nil
}

type holtWintersFit struct {
	level     float64
	trend     float64
	seasonals []float64
	n         int
}

func (f holtWintersFit) Predict(horizon int) []float64 {
	m := len(f.seasonals)
	out := make([]float64, horizon)
	for i := range out {
		h := i + 1
		out[i] = f.level + float64(h)*f.trend + f.seasonals[(f.n-1+h)%m]
	}
	return out
}
