package models

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
)

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func linearSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + 2*float64(i)
	}
	return out
}

func TestCatalog_ConstantSeries(t *testing.T) {
	history := constantSeries(20, 50)

	for _, spec := range DefaultCatalog().Specs() {
		t.Run(spec.Name(), func(t *testing.T) {
			fitted, err := spec.Method.Fit(context.Background(), history, spec.Defaults)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}

			values := fitted.Predict(7)
			if len(values) != 7 {
				t.Fatalf("len(Predict) = %d, want 7", len(values))
			}
			for i, v := range values {
				if math.Abs(v-50) > 1e-9 {
					t.Errorf("value[%d] = %v, want 50", i, v)
				}
			}
		})
	}
}

func TestLinearMethods_ContinueTrend(t *testing.T) {
	history := linearSeries(30)

	tests := []struct {
		name   string
		method Method
		params Params
	}{
		{name: "linear_trend", method: LinearTrend{}},
		{name: "holt defaults", method: Holt{}, params: Params{"alpha": 0.8, "beta": 0.2}},
		{name: "holt low alpha", method: Holt{}, params: Params{"alpha": 0.2, "beta": 0.1}},
		{name: "arima(1,1,1)", method: ARIMA{}, params: Params{"p": 1, "d": 1, "q": 1}},
		{name: "arima(0,2,0)", method: ARIMA{}, params: Params{"p": 0, "d": 2, "q": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fitted, err := tt.method.Fit(context.Background(), history, tt.params)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}

			values := fitted.Predict(5)
			for i, v := range values {
				want := 10 + 2*float64(30+i)
				if math.Abs(v-want) > 1e-6 {
					t.Errorf("value[%d] = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestFit_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		method  Method
		params  Params
		history []float64
	}{
		{name: "naive empty", method: Naive{}, history: nil},
		{name: "seasonal naive short", method: SeasonalNaive{}, params: Params{"season_length": 7}, history: constantSeries(6, 1)},
		{name: "moving average short", method: MovingAverage{}, params: Params{"window": 7}, history: constantSeries(3, 1)},
		{name: "linear one point", method: LinearTrend{}, history: []float64{1}},
		{name: "ses one point", method: SimpleExponentialSmoothing{}, params: Params{"alpha": 0.3}, history: []float64{1}},
		{name: "holt two points", method: Holt{}, params: Params{"alpha": 0.5, "beta": 0.5}, history: []float64{1, 2}},
		{name: "holt-winters one season", method: HoltWinters{}, params: Params{"alpha": 0.5, "beta": 0.1, "gamma": 0.1, "season_length": 7}, history: constantSeries(10, 1)},
		{name: "arima short", method: ARIMA{}, params: Params{"p": 1, "d": 1, "q": 1}, history: constantSeries(9, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.method.Fit(context.Background(), tt.history, tt.params)
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("Fit() error = %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestFit_InvalidParams(t *testing.T) {
	history := linearSeries(30)

	tests := []struct {
		name   string
		method Method
		params Params
	}{
		{name: "ses alpha zero", method: SimpleExponentialSmoothing{}, params: Params{"alpha": 0}},
		{name: "holt beta above one", method: Holt{}, params: Params{"alpha": 0.5, "beta": 1.5}},
		{name: "moving average zero window", method: MovingAverage{}, params: Params{"window": 0}},
		{name: "arima d=3", method: ARIMA{}, params: Params{"p": 1, "d": 3, "q": 0}},
		{name: "holt-winters season 1", method: HoltWinters{}, params: Params{"alpha": 0.5, "beta": 0.1, "gamma": 0.1, "season_length": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.method.Fit(context.Background(), history, tt.params)
			if !errors.Is(err, ErrFitFailed) {
				t.Errorf("Fit() error = %v, want ErrFitFailed", err)
			}
		})
	}
}

func TestFit_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, spec := range DefaultCatalog().Specs() {
		if _, err := spec.Method.Fit(ctx, linearSeries(40), spec.Defaults); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: Fit() error = %v, want context.Canceled", spec.Name(), err)
		}
	}
}

func TestSeasonalNaive_RepeatsLastSeason(t *testing.T) {
	history := []float64{1, 2, 3, 4, 10, 20, 30, 40}

	fitted, err := SeasonalNaive{}.Fit(context.Background(), history, Params{"season_length": 4})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	want := []float64{10, 20, 30, 40, 10, 20}
	got := fitted.Predict(6)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMovingAverage_TrailingWindow(t *testing.T) {
	history := []float64{100, 1, 2, 3}

	fitted, err := MovingAverage{}.Fit(context.Background(), history, Params{"window": 3})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for i, v := range fitted.Predict(3) {
		if v != 2 {
			t.Errorf("value[%d] = %v, want 2", i, v)
		}
	}
}

func TestSimpleExponentialSmoothing_Level(t *testing.T) {
	fitted, err := SimpleExponentialSmoothing{}.Fit(context.Background(), []float64{10, 20}, Params{"alpha": 0.5})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got := fitted.Predict(1)[0]; got != 15 {
		t.Errorf("level = %v, want 15", got)
	}
}

func TestHoltWinters_PureSeasonality(t *testing.T) {
	pattern := []float64{10, 12, 15, 11, 9, 20, 25}
	history := make([]float64, 0, 28)
	for range 4 {
		history = append(history, pattern...)
	}

	fitted, err := HoltWinters{}.Fit(context.Background(), history, Params{
		"alpha": 0.5, "beta": 0.1, "gamma": 0.1, "season_length": 7,
	})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got := fitted.Predict(10)
	for i, v := range got {
		want := pattern[i%7]
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("value[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestARIMA_AutoRegressive(t *testing.T) {
	// Deterministic AR(1)-like series around 100.
	history := make([]float64, 60)
	x := 5.0
	for i := range history {
		x = 0.6*x + 3*math.Sin(float64(i)*1.7)
		history[i] = 100 + x
	}

	fitted, err := ARIMA{}.Fit(context.Background(), history, Params{"p": 1, "d": 0, "q": 0})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	values := fitted.Predict(20)
	if len(values) != 20 {
		t.Fatalf("len(Predict) = %d, want 20", len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("value[%d] is not finite", i)
		}
	}

	// Stationary forecasts decay toward the sample mean.
	mean := computeMean(history)
	if math.Abs(values[19]-mean) > math.Abs(values[0]-mean)+1e-9 {
		t.Errorf("forecast moved away from mean: first=%v last=%v mean=%v", values[0], values[19], mean)
	}
}

func TestARIMA_Deterministic(t *testing.T) {
	history := make([]float64, 40)
	for i := range history {
		history[i] = 50 + 10*math.Sin(float64(i)/3) + float64(i)*0.5
	}
	params := Params{"p": 2, "d": 1, "q": 0}

	a, err := ARIMA{}.Fit(context.Background(), history, params)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	b, err := ARIMA{}.Fit(context.Background(), history, params)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pa, pb := a.Predict(10), b.Predict(10)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("value[%d] differs between fits: %v vs %v", i, pa[i], pb[i])
		}
	}
}

// arima111 simulates x_t - x_{t-1} = w_t with
// w_t = phi*w_{t-1} + e_t + theta*e_{t-1} and unit-variance shocks.
func arima111(n int, phi, theta float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))

	out := make([]float64, n)
	level := 100.0
	var w, e float64
	for i := range out {
		shock := rng.NormFloat64()
		w = phi*w + shock + theta*e
		e = shock
		level += w
		out[i] = level
	}
	return out
}

func TestARIMA_RecoversMovingAverage(t *testing.T) {
	const phi, theta = 0.5, 0.4
	history := arima111(240, phi, theta, 42)

	fitted, err := ARIMA{}.Fit(context.Background(), history, Params{"p": 1, "d": 1, "q": 1})
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	fit, ok := fitted.(*arimaFit)
	if !ok {
		t.Fatalf("Fit() returned %T, want *arimaFit", fitted)
	}
	if !allFinite(fit.arCoeffs) || !allFinite(fit.maCoeffs) {
		t.Fatalf("coefficients are not finite: ar=%v ma=%v", fit.arCoeffs, fit.maCoeffs)
	}
	if len(fit.arCoeffs) != 1 || len(fit.maCoeffs) != 1 {
		t.Fatalf("got %d AR and %d MA coefficients, want 1 and 1", len(fit.arCoeffs), len(fit.maCoeffs))
	}
	if got := fit.arCoeffs[0]; math.Abs(got-phi) > 0.25 {
		t.Errorf("AR coefficient = %v, want %v ± 0.25", got, phi)
	}
	if got := fit.maCoeffs[0]; math.Abs(got-theta) > 0.25 {
		t.Errorf("MA coefficient = %v, want %v ± 0.25", got, theta)
	}

	values := fitted.Predict(10)
	if len(values) != 10 || !allFinite(values) {
		t.Errorf("Predict(10) = %v, want 10 finite values", values)
	}
}

func TestHannanRissanen_IterationCap(t *testing.T) {
	history := difference(arima111(240, 0.5, 0.4, 42), 1)
	mean := computeMean(history)
	centered := make([]float64, len(history))
	for i, v := range history {
		centered[i] = v - mean
	}

	_, _, _, err := hannanRissanen(context.Background(), centered, 1, 1, 1)
	if !errors.Is(err, ErrFitFailed) {
		t.Fatalf("hannanRissanen() error = %v, want ErrFitFailed", err)
	}
	if !strings.Contains(err.Error(), "did not converge after 1 iterations") {
		t.Errorf("error = %q, want a convergence failure", err)
	}
}

func TestARIMA_UnidentifiableSeriesFails(t *testing.T) {
	// A pure period-2 oscillation makes lagged residuals an exact multiple of
	// lagged values, so the ARMA(1,1) regression has no unique solution.
	history := make([]float64, 40)
	for i := range history {
		history[i] = 1
		if i%2 == 1 {
			history[i] = -1
		}
	}

	_, err := ARIMA{}.Fit(context.Background(), history, Params{"p": 1, "d": 0, "q": 1})
	if !errors.Is(err, ErrFitFailed) {
		t.Fatalf("Fit() error = %v, want ErrFitFailed", err)
	}
}

func TestLevinsonDurbin(t *testing.T) {
	// AR(1) with phi=0.5 has acf = 1, 0.5, 0.25
	coeffs, err := levinsonDurbin([]float64{1, 0.5, 0.25}, 2)
	if err != nil {
		t.Fatalf("levinsonDurbin() error = %v", err)
	}
	if math.Abs(coeffs[0]-0.5) > 1e-9 || math.Abs(coeffs[1]) > 1e-9 {
		t.Errorf("coeffs = %v, want [0.5 0]", coeffs)
	}
}

func TestDifference(t *testing.T) {
	got := difference([]float64{1, 4, 9, 16}, 2)
	want := []float64{2, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("diff[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
