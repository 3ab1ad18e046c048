// Package engine turns a normalized series into a forecast. It backtests every
// method in a catalog, picks the one with the lowest holdout error, refits it
// on the full series and assembles the result.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/HatiCode/runrate/pkg/gridsearch"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
)

// MaxSteps is the longest horizon a request may ask for.
const MaxSteps = 365

// ErrNoViableModel is returned when no catalog method can be backtested and
// refit on the series.
var ErrNoViableModel = errors.New("no viable model: the series could not be forecast by any available method")

// Request carries the per-request knobs.
type Request struct {
	Steps      int  `json:"forecast_steps"`
	GridSearch bool `json:"use_grid_search"`
}

// Validate checks the request bounds.
func (r Request) Validate() error {
	if r.Steps < 1 || r.Steps > MaxSteps {
		return fmt.Errorf("%w: forecast_steps must be between 1 and %d, got %d", series.ErrValidation, MaxSteps, r.Steps)
	}
	return nil
}

// Observer receives timing and selection events. Implementations must be safe
// for concurrent use.
type Observer interface {
	// ObserveEvaluation is called once per method after its backtest (or grid
	// search) finishes. err is nil on success.
	ObserveEvaluation(method string, d time.Duration, err error)
	// ObserveSelection is called with the method whose forecast is returned.
	ObserveSelection(method string)
}

type nopObserver struct{}

func (nopObserver) ObserveEvaluation(string, time.Duration, error) {}
func (nopObserver) ObserveSelection(string)                        {}

// Engine runs model selection and forecasting against a read-only catalog.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	catalog   *models.Catalog
	workers   int
	logger    *slog.Logger
	observer  Observer
	optimizer *gridsearch.Optimizer
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many evaluations run at once. n <= 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// New creates an Engine over catalog. It panics if catalog is nil.
func New(catalog *models.Catalog, opts ...Option) *Engine {
	if catalog == nil {
		panic("engine: catalog cannot be nil")
	}

	e := &Engine{
		catalog:  catalog,
		workers:  runtime.GOMAXPROCS(0),
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("component", "engine")
	e.optimizer = gridsearch.New(e.workers, e.logger)
	return e
}

// Catalog returns the catalog the engine selects from.
func (e *Engine) Catalog() *models.Catalog {
	return e.catalog
}
