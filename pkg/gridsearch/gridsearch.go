// Package gridsearch tunes a forecasting method by backtesting every
// combination of its parameter grid and keeping the best one.
package gridsearch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/runrate/pkg/backtest"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
)

// Optimizer evaluates parameter grids with a bounded number of workers.
type Optimizer struct {
	workers int
	logger  *slog.Logger
}

// New creates an Optimizer. workers <= 0 uses GOMAXPROCS.
func New(workers int, logger *slog.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		workers: workers,
		logger:  logger.With("component", "gridsearch"),
	}
}

type result struct {
	outcome backtest.Outcome
	err     error
}

// Search backtests every combination of spec's grid and returns the best
// outcome. Ties go to the combination enumerated first, so the answer does not
// depend on which worker finishes first.
//
// If every combination fails, the first failure in enumeration order is
// returned. Cancellation of ctx aborts the search with ctx.Err().
func (o *Optimizer) Search(ctx context.Context, s *series.Series, spec models.Spec, steps int) (backtest.Outcome, error) {
	combos := spec.Grid.Combinations(spec.Defaults)
	results := make([]result, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, params := range combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := backtest.Evaluate(gctx, s, spec, params, steps)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = result{outcome: out, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return backtest.Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return backtest.Outcome{}, err
	}

	var (
		best     backtest.Outcome
		found    bool
		firstErr error
		failed   int
	)
	for i, r := range results {
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			o.logger.Debug("combination failed",
				"method", spec.Name(),
				"params", combos[i].String(),
				"error", r.err,
			)
			continue
		}
		if !found || backtest.Better(r.outcome, best) {
			best = r.outcome
			found = true
		}
	}

	if !found {
		return backtest.Outcome{}, fmt.Errorf("%s: all %d grid combinations failed: %w",
			spec.Name(), len(combos), firstErr)
	}

	o.logger.Debug("grid search complete",
		"method", spec.Name(),
		"combinations", len(combos),
		"failed", failed,
		"best_params", best.Params.String(),
		"mape", best.MAPE,
	)

	return best, nil
}
