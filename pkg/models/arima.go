package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// maxARIMAOrder bounds p and q.
	maxARIMAOrder = 5

	// maxRefineIterations caps the Hannan-Rissanen refinement loop.
	maxRefineIterations = 25

	// refineTolerance is the largest coefficient change accepted as converged.
	refineTolerance = 1e-6

	// maxRegressionCond rejects regressions whose lagged values and residuals
	// are (nearly) collinear.
	maxRegressionCond = 1e12
)

// ARIMA implements AutoRegressive Integrated Moving Average forecasting.
//
// ARIMA(p,d,q) where:
//   - p: AutoRegressive order (how many past values to use)
//   - d: Differencing order (trend removal: 0=none, 1=linear, 2=quadratic)
//   - q: Moving Average order (how many past errors to use)
//
// The differenced, mean-centered series is modeled as ARMA(p,q). Pure AR
// models are estimated with the Yule-Walker equations (Levinson-Durbin).
// Models with an MA part use the Hannan-Rissanen procedure: a long AR fit
// supplies residual estimates, the ARMA coefficients are regressed on lagged
// values and residuals, and the regression is repeated on recomputed
// residuals until the coefficients settle. The loop is capped at
// maxRefineIterations; a fit that has not converged by then fails.
type ARIMA struct{}

// Name returns "arima".
func (ARIMA) Name() string { return "arima" }

// Fit estimates ARIMA(p,d,q) coefficients from history.
//
// Minimum data requirements: max(p+d+q+1, 10) points.
func (m ARIMA) Fit(ctx context.Context, history []float64, params Params) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := params.Int("p", 1)
	d := params.Int("d", 1)
	q := params.Int("q", 1)
	if d < 0 || d > 2 {
		return nil, fmt.Errorf("%s: d must be in range [0, 2], got %d: %w", m.Name(), d, ErrFitFailed)
	}
	if p < 0 || p > maxARIMAOrder || q < 0 || q > maxARIMAOrder {
		return nil, fmt.Errorf("%s: p and q must be in range [0, %d], got p=%d q=%d: %w",
			m.Name(), maxARIMAOrder, p, q, ErrFitFailed)
	}

	minPoints := max(p+d+q+1, 10)
	if err := needPoints(fmt.Sprintf("arima(%d,%d,%d)", p, d, q), len(history), minPoints); err != nil {
		return nil, err
	}

	levels := make([][]float64, d+1)
	levels[0] = history
	for k := 1; k <= d; k++ {
		levels[k] = difference(levels[k-1], 1)
	}

	stationary := levels[d]
	mean := computeMean(stationary)

	centered := make([]float64, len(stationary))
	for i, v := range stationary {
		centered[i] = v - mean
	}

	fit := &arimaFit{
		p:        p,
		q:        q,
		mean:     mean,
		centered: centered,
		lasts:    make([]float64, d),
	}
	for k := range d {
		fit.lasts[k] = levels[k][len(levels[k])-1]
	}

	if computeVariance(centered) < 1e-10 {
		fit.arCoeffs = make([]float64, p)
		fit.maCoeffs = make([]float64, q)
		fit.residuals = make([]float64, len(centered))
		return fit, nil
	}

	var err error
	if q == 0 {
		fit.arCoeffs, err = fitAR(centered, p)
		if err != nil {
			return nil, fmt.Errorf("arima(%d,%d,%d): %v: %w", p, d, q, err, ErrFitFailed)
		}
		fit.maCoeffs = []float64{}
		fit.residuals = armaResiduals(centered, fit.arCoeffs, nil)
	} else {
		fit.arCoeffs, fit.maCoeffs, fit.residuals, err = hannanRissanen(ctx, centered, p, q, maxRefineIterations)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("arima(%d,%d,%d): %w", p, d, q, err)
		}
	}

	return fit, nil
}

type arimaFit struct {
	p, q      int
	arCoeffs  []float64 // AR coefficients (length p)
	maCoeffs  []float64 // MA coefficients (length q)
	mean      float64   // Mean of stationary series
	centered  []float64 // Centered stationary series
	residuals []float64 // One-step residuals aligned with centered
	lasts     []float64 // Last value of each differencing level below d
}

// Predict runs the ARMA recursion forward with future shocks set to zero,
// adds the mean back and integrates once per differencing level.
func (f *arimaFit) Predict(horizon int) []float64 {
	z := append([]float64(nil), f.centered...)
	e := append([]float64(nil), f.residuals...)

	n := len(z)
	for t := n; t < n+horizon; t++ {
		var pred float64
		for i := 0; i < f.p; i++ {
			if t-1-i >= 0 {
				pred += f.arCoeffs[i] * z[t-1-i]
			}
		}
		for j := 0; j < f.q; j++ {
			if t-1-j >= 0 {
				pred += f.maCoeffs[j] * e[t-1-j]
			}
		}
		z = append(z, pred)
		e = append(e, 0)
	}

	out := make([]float64, horizon)
	for i := range out {
		out[i] = z[n+i] + f.mean
	}

	for k := len(f.lasts) - 1; k >= 0; k-- {
		prev := f.lasts[k]
		for i := range out {
			out[i] += prev
			prev = out[i]
		}
	}

	return out
}

// difference applies d-order differencing to make series stationary
func difference(series []float64, d int) []float64 {
	if d == 0 || len(series) == 0 {
		result := make([]float64, len(series))
		copy(result, series)
		return result
	}

	result := make([]float64, len(series)-1)
	for i := 0; i < len(series)-1; i++ {
		result[i] = series[i+1] - series[i]
	}

	if d > 1 {
		return difference(result, d-1)
	}

	return result
}

// computeVariance calculates the variance of a series
func computeVariance(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	mean := computeMean(series)
	var sumSq float64
	for _, v := range series {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(series))
}

// fitAR estimates AR coefficients using Yule-Walker equations with Levinson-Durbin
func fitAR(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}

	acf := make([]float64, p+1)
	for k := 0; k <= p; k++ {
		acf[k] = autocorr(centered, k)
	}

	return levinsonDurbin(acf, p)
}

// autocorr computes autocorrelation at given lag
func autocorr(series []float64, lag int) float64 {
	if lag < 0 || lag >= len(series) {
		return 0
	}

	n := len(series)
	mean := computeMean(series)

	var c0, ck float64
	for i := range n {
		c0 += (series[i] - mean) * (series[i] - mean)
	}

	for i := 0; i < n-lag; i++ {
		ck += (series[i] - mean) * (series[i+lag] - mean)
	}

	if c0 == 0 {
		return 0
	}

	return ck / c0
}

// levinsonDurbin solves Yule-Walker equations efficiently
func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	if p == 0 {
		return []float64{}, nil
	}

	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	v := acf[0]

	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
		}

		if v == 0 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}

		phi[k][k] = num / v

		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}

		v = v * (1 - phi[k][k]*phi[k][k])

		if v < 0 {
			return nil, errors.New("negative variance in Levinson-Durbin")
		}
	}

	coeffs := make([]float64, p)
	for i := range p {
		coeffs[i] = phi[p][i+1]
	}

	return coeffs, nil
}

// armaResiduals computes one-step prediction errors for an ARMA model.
// Residuals before the first full lag window are zero.
func armaResiduals(centered, arCoeffs, maCoeffs []float64) []float64 {
	p, q := len(arCoeffs), len(maCoeffs)
	start := max(p, q)

	residuals := make([]float64, len(centered))
	for t := start; t < len(centered); t++ {
		pred := 0.0
		for i := range p {
			pred += arCoeffs[i] * centered[t-1-i]
		}
		for j := range q {
			pred += maCoeffs[j] * residuals[t-1-j]
		}
		residuals[t] = centered[t] - pred
	}

	return residuals
}

// hannanRissanen estimates ARMA(p,q) coefficients by iterated regression,
// refining at most maxIter times.
func hannanRissanen(ctx context.Context, centered []float64, p, q, maxIter int) ([]float64, []float64, []float64, error) {
	n := len(centered)

	longOrder := max(p+q+1, min(8, n/4))
	if n-longOrder-q <= p+q+1 {
		return nil, nil, nil, fmt.Errorf("series too short for long AR(%d) stage: %w", longOrder, ErrInsufficientData)
	}

	longAR, err := fitAR(centered, longOrder)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("long AR stage: %v: %w", err, ErrFitFailed)
	}

	residuals := armaResiduals(centered, longAR, nil)
	ar, ma, err := regressARMA(centered, residuals, p, q, longOrder+q)
	if err != nil {
		return nil, nil, nil, err
	}

	for range maxIter {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}

		residuals = armaResiduals(centered, ar, ma)
		if !allFinite(residuals) {
			return nil, nil, nil, fmt.Errorf("residuals diverged (non-invertible MA): %w", ErrFitFailed)
		}

		nextAR, nextMA, err := regressARMA(centered, residuals, p, q, max(p, q))
		if err != nil {
			return nil, nil, nil, err
		}

		delta := max(maxAbsDiff(ar, nextAR), maxAbsDiff(ma, nextMA))
		ar, ma = nextAR, nextMA
		if delta < refineTolerance {
			return ar, ma, armaResiduals(centered, ar, ma), nil
		}
	}

	return nil, nil, nil, fmt.Errorf("coefficients did not converge after %d iterations: %w", maxIter, ErrFitFailed)
}

// regressARMA solves the least squares regression of z_t on p lagged values
// and q lagged residuals for t >= start.
func regressARMA(z, e []float64, p, q, start int) ([]float64, []float64, error) {
	rows := len(z) - start
	cols := p + q
	if rows <= cols {
		return nil, nil, fmt.Errorf("regression needs more than %d rows, got %d: %w", cols, rows, ErrInsufficientData)
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for r := range rows {
		t := start + r
		for i := range p {
			x.Set(r, i, z[t-1-i])
		}
		for j := range q {
			x.Set(r, p+j, e[t-1-j])
		}
		y.SetVec(r, z[t])
	}

	var qr mat.QR
	qr.Factorize(x)
	if cond := qr.Cond(); math.IsNaN(cond) || cond > maxRegressionCond {
		return nil, nil, fmt.Errorf("regressors are collinear (condition number %.3g): %w", cond, ErrFitFailed)
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, nil, fmt.Errorf("least squares: %v: %w", err, ErrFitFailed)
	}

	coeffs := beta.RawVector().Data
	if !allFinite(coeffs) {
		return nil, nil, fmt.Errorf("least squares produced non-finite coefficients: %w", ErrFitFailed)
	}

	ar := append([]float64(nil), coeffs[:p]...)
	ma := append([]float64(nil), coeffs[p:]...)
	return ar, ma, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
