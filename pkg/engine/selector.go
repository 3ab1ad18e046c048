package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/runrate/pkg/backtest"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
)

// Candidate is one method that survived backtesting.
type Candidate struct {
	Spec    models.Spec
	Outcome backtest.Outcome
	index   int
}

// Selection is the result of backtesting the whole catalog.
type Selection struct {
	// Ranked lists surviving methods best first.
	Ranked []Candidate
	// Results maps method name to its backtest outcome.
	Results map[string]backtest.Outcome
}

// Best returns the top-ranked candidate.
func (s Selection) Best() Candidate {
	return s.Ranked[0]
}

type evaluation struct {
	outcome backtest.Outcome
	err     error
}

// Select backtests every catalog method against s, with grid search when
// req.GridSearch is set, and ranks the survivors by MAPE, then MAE, then
// catalog order.
//
// Methods failing with models.ErrInsufficientData or models.ErrFitFailed are
// left out. Any other error, including cancellation, aborts the selection.
func (e *Engine) Select(ctx context.Context, s *series.Series, req Request) (Selection, error) {
	specs := e.catalog.Specs()
	evals := make([]evaluation, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			out, err := e.evaluate(gctx, s, spec, req)
			e.observer.ObserveEvaluation(spec.Name(), time.Since(start), err)

			if err != nil && !isMethodFailure(err) {
				return fmt.Errorf("%s: %w", spec.Name(), err)
			}
			evals[i] = evaluation{outcome: out, err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Selection{}, err
	}
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}

	sel := Selection{Results: make(map[string]backtest.Outcome, len(specs))}
	for i, ev := range evals {
		name := specs[i].Name()
		if ev.err != nil {
			e.logger.Info("method excluded",
				"method", name,
				"reason", FailureReason(ev.err),
				"error", ev.err,
			)
			continue
		}
		sel.Results[name] = ev.outcome
		sel.Ranked = append(sel.Ranked, Candidate{Spec: specs[i], Outcome: ev.outcome, index: i})
	}

	if len(sel.Ranked) == 0 {
		return Selection{}, fmt.Errorf("%d methods evaluated on %d points: %w", len(specs), s.Len(), ErrNoViableModel)
	}

	sort.SliceStable(sel.Ranked, func(a, b int) bool {
		ca, cb := sel.Ranked[a], sel.Ranked[b]
		if backtest.Better(ca.Outcome, cb.Outcome) {
			return true
		}
		if backtest.Better(cb.Outcome, ca.Outcome) {
			return false
		}
		return ca.index < cb.index
	})

	best := sel.Best()
	e.logger.Debug("selection complete",
		"candidates", len(sel.Ranked),
		"excluded", len(specs)-len(sel.Ranked),
		"best", best.Spec.Name(),
		"mape", best.Outcome.MAPE,
		"mae", best.Outcome.MAE,
	)

	return sel, nil
}

func (e *Engine) evaluate(ctx context.Context, s *series.Series, spec models.Spec, req Request) (backtest.Outcome, error) {
	if req.GridSearch {
		return e.optimizer.Search(ctx, s, spec, req.Steps)
	}
	return backtest.Evaluate(ctx, s, spec, spec.Defaults, req.Steps)
}

// isMethodFailure reports whether err only disqualifies one method.
func isMethodFailure(err error) bool {
	return errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrFitFailed)
}

// FailureReason classifies a method error for logs and metrics labels.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, models.ErrFitFailed):
		return "fit_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
