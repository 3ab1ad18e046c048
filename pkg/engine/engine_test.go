package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/runrate/pkg/backtest"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/series"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testEngine(opts ...Option) *Engine {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithWorkers(4)}, opts...)
	return New(models.DefaultCatalog(), opts...)
}

func seriesOf(t *testing.T, values []float64) *series.Series {
	t.Helper()
	s, err := series.FromValues(start, 24*time.Hour, values)
	require.NoError(t, err)
	return s
}

func seasonalValues(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 120 + 0.5*float64(i) + 12*math.Sin(2*math.Pi*float64(i)/7) + 3*math.Cos(float64(i)*1.3)
	}
	return out
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		steps   int
		wantErr bool
	}{
		{steps: 0, wantErr: true},
		{steps: 1},
		{steps: 365},
		{steps: 366, wantErr: true},
		{steps: -3, wantErr: true},
	}

	for _, tt := range tests {
		err := Request{Steps: tt.steps}.Validate()
		if tt.wantErr {
			assert.ErrorIs(t, err, series.ErrValidation, "steps=%d", tt.steps)
		} else {
			assert.NoError(t, err, "steps=%d", tt.steps)
		}
	}
}

func TestNew_PanicsOnNilCatalog(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestForecast_LengthsAndDates(t *testing.T) {
	e := testEngine()
	s := seriesOf(t, seasonalValues(45))

	for _, grid := range []bool{false, true} {
		out, err := e.Forecast(context.Background(), s, Request{Steps: 10, GridSearch: grid})
		require.NoError(t, err)

		require.Len(t, out.Forecast, 10)
		require.Len(t, out.Dates, 10)

		prev := s.Last().Timestamp
		for i, d := range out.Dates {
			assert.Equal(t, 24*time.Hour, d.Sub(prev), "date %d", i)
			prev = d
		}

		assert.GreaterOrEqual(t, out.Metrics.MAE, 0.0)
		assert.GreaterOrEqual(t, out.Metrics.MAPE, 0.0)
		assert.Contains(t, out.BacktestResults, out.ModelName)
		assert.Equal(t, out.BacktestResults[out.ModelName].MAPE, out.Metrics.MAPE)
		for name, r := range out.BacktestResults {
			assert.Equal(t, name, r.Method)
			assert.Len(t, r.Actual, len(r.Predicted))
			assert.GreaterOrEqual(t, r.MAE, 0.0)
			assert.GreaterOrEqual(t, r.MAPE, 0.0)
		}
	}
}

func TestForecast_ConstantSeries(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50
	}

	out, err := testEngine().Forecast(context.Background(), seriesOf(t, values), Request{Steps: 7})
	require.NoError(t, err)

	for i, v := range out.Forecast {
		assert.InDelta(t, 50, v, 1e-6, "forecast[%d]", i)
	}
	assert.Equal(t, 0.0, out.Metrics.MAPE)
}

func TestForecast_LinearSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}

	out, err := testEngine().Forecast(context.Background(), seriesOf(t, values), Request{Steps: 5})
	require.NoError(t, err)

	for i, v := range out.Forecast {
		assert.InDelta(t, 10+2*float64(30+i), v, 1e-6, "forecast[%d]", i)
	}
}

func TestForecast_Deterministic(t *testing.T) {
	s := seriesOf(t, seasonalValues(60))
	req := Request{Steps: 14, GridSearch: true}

	first, err := testEngine(WithWorkers(1)).Forecast(context.Background(), s, req)
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)

	for _, workers := range []int{2, 8, 16} {
		out, err := testEngine(WithWorkers(workers)).Forecast(context.Background(), s, req)
		require.NoError(t, err)
		got, err := json.Marshal(out)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "workers=%d", workers)
	}
}

func TestForecast_GridSearchNeverWorse(t *testing.T) {
	s := seriesOf(t, seasonalValues(50))
	e := testEngine()

	plain, err := e.Forecast(context.Background(), s, Request{Steps: 7})
	require.NoError(t, err)
	tuned, err := e.Forecast(context.Background(), s, Request{Steps: 7, GridSearch: true})
	require.NoError(t, err)

	assert.LessOrEqual(t, tuned.Metrics.MAPE, plain.Metrics.MAPE)
}

func TestForecast_TwoPointsHasNoViableModel(t *testing.T) {
	_, err := testEngine().Forecast(context.Background(), seriesOf(t, []float64{1, 2}), Request{Steps: 3})
	assert.ErrorIs(t, err, ErrNoViableModel)
}

func TestForecast_ShortSeriesExcludesMethods(t *testing.T) {
	out, err := testEngine().Forecast(context.Background(), seriesOf(t, []float64{3, 5, 4, 6, 5, 7}), Request{Steps: 2})
	require.NoError(t, err)

	assert.Contains(t, out.BacktestResults, "naive")
	assert.NotContains(t, out.BacktestResults, "holt_winters")
	assert.NotContains(t, out.BacktestResults, "arima")
}

func TestForecast_InvalidRequest(t *testing.T) {
	_, err := testEngine().Forecast(context.Background(), seriesOf(t, seasonalValues(20)), Request{Steps: 0})
	assert.ErrorIs(t, err, series.ErrValidation)
}

func TestForecast_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testEngine().Forecast(ctx, seriesOf(t, seasonalValues(40)), Request{Steps: 7})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNoViableModel)
}

func TestSelect_TieBreakByCatalogOrder(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50
	}

	sel, err := testEngine().Select(context.Background(), seriesOf(t, values), Request{Steps: 3})
	require.NoError(t, err)

	// Every method is perfect on a constant series, so rank follows catalog order.
	specs := models.DefaultCatalog().Specs()
	require.Len(t, sel.Ranked, len(specs))
	for i, c := range sel.Ranked {
		assert.Equal(t, specs[i].Name(), c.Spec.Name())
	}
	assert.Equal(t, "naive", sel.Best().Spec.Name())
}

// flaky fits during backtesting but fails on the full series.
type flaky struct{ threshold int }

func (flaky) Name() string { return "flaky" }

func (f flaky) Fit(_ context.Context, history []float64, _ models.Params) (models.Fitted, error) {
	if len(history) > f.threshold {
		return nil, models.ErrFitFailed
	}
	return constantFit(history[len(history)-1]), nil
}

type constantFit float64

func (c constantFit) Predict(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = float64(c)
	}
	return out
}

// broken returns a non-method error.
type broken struct{}

func (broken) Name() string { return "broken" }

func (broken) Fit(context.Context, []float64, models.Params) (models.Fitted, error) {
	return nil, errors.New("disk on fire")
}

func TestForecast_RefitFallsBackToNextCandidate(t *testing.T) {
	catalog, err := models.NewCatalog(
		models.Spec{Method: flaky{threshold: 8}},
		models.Spec{Method: models.MovingAverage{}, Defaults: models.Params{"window": 3}},
	)
	require.NoError(t, err)

	// Constant series: both are perfect, flaky wins on catalog order.
	values := []float64{4, 4, 4, 4, 4, 4, 4, 4, 4, 4}
	out, err := New(catalog, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).
		Forecast(context.Background(), seriesOf(t, values), Request{Steps: 2})
	require.NoError(t, err)

	assert.Equal(t, "moving_average", out.ModelName)
	assert.Equal(t, models.Params{"window": 3}, out.Params)
	assert.Contains(t, out.BacktestResults, "flaky")
}

func TestSelect_UnexpectedErrorAborts(t *testing.T) {
	catalog, err := models.NewCatalog(
		models.Spec{Method: models.Naive{}},
		models.Spec{Method: broken{}},
	)
	require.NoError(t, err)

	_, err = New(catalog).Select(context.Background(), seriesOf(t, seasonalValues(20)), Request{Steps: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.NotErrorIs(t, err, ErrNoViableModel)
}

type recorder struct {
	mu          sync.Mutex
	evaluations map[string]error
	selected    []string
}

func (r *recorder) ObserveEvaluation(method string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations[method] = err
}

func (r *recorder) ObserveSelection(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = append(r.selected, method)
}

func TestForecast_Observer(t *testing.T) {
	rec := &recorder{evaluations: map[string]error{}}
	e := testEngine(WithObserver(rec))

	out, err := e.Forecast(context.Background(), seriesOf(t, []float64{3, 5, 4, 6, 5, 7}), Request{Steps: 2})
	require.NoError(t, err)

	assert.Len(t, rec.evaluations, models.DefaultCatalog().Len())
	assert.ErrorIs(t, rec.evaluations["arima"], models.ErrInsufficientData)
	assert.Equal(t, []string{out.ModelName}, rec.selected)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", FailureReason(nil))
	assert.Equal(t, "insufficient_data", FailureReason(models.ErrInsufficientData))
	assert.Equal(t, "fit_failed", FailureReason(models.ErrFitFailed))
	assert.Equal(t, "canceled", FailureReason(context.DeadlineExceeded))
	assert.Equal(t, "error", FailureReason(errors.New("x")))
}

func TestAssemble(t *testing.T) {
	winner := backtest.Outcome{Method: "holt", Params: models.Params{"alpha": 0.8}, MAE: 1.5, MAPE: 0.02}
	results := map[string]backtest.Outcome{"holt": winner}
	dates := []time.Time{start}

	out := Assemble(winner, dates, []float64{42}, results)

	assert.Equal(t, "holt", out.ModelName)
	assert.Equal(t, Metrics{MAE: 1.5, MAPE: 0.02}, out.Metrics)
	assert.Equal(t, dates, out.Dates)
	assert.Equal(t, []float64{42}, out.Forecast)
	assert.Equal(t, results, out.BacktestResults)
}
