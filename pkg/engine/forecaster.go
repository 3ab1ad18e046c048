package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/HatiCode/runrate/pkg/series"
)

// Forecast selects the best method for s, refits it with the parameters found
// during selection on the whole series and predicts req.Steps values.
//
// If the winner cannot be refit on the full series, the next ranked candidate
// is tried. The returned outcome always names the method that produced the
// forecast.
func (e *Engine) Forecast(ctx context.Context, s *series.Series, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: series is required", series.ErrValidation)
	}

	sel, err := e.Select(ctx, s, req)
	if err != nil {
		return nil, err
	}

	values := s.Values()
	for rank, c := range sel.Ranked {
		name := c.Spec.Name()

		fitted, err := c.Spec.Method.Fit(ctx, values, c.Outcome.Params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("refit failed, trying next candidate",
				"method", name,
				"rank", rank,
				"error", err,
			)
			continue
		}

		forecast := fitted.Predict(req.Steps)
		if !finite(forecast, req.Steps) {
			e.logger.Warn("refit produced an invalid forecast, trying next candidate",
				"method", name,
				"rank", rank,
			)
			continue
		}

		e.observer.ObserveSelection(name)
		e.logger.Debug("forecast complete",
			"method", name,
			"params", c.Outcome.Params.String(),
			"steps", req.Steps,
		)

		return Assemble(c.Outcome, s.FutureDates(req.Steps), forecast, sel.Results), nil
	}

	return nil, fmt.Errorf("every candidate failed to refit on the full series: %w", ErrNoViableModel)
}

func finite(values []float64, want int) bool {
	if len(values) != want {
		return false
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
