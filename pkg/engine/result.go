package engine

import (
	"time"

	"github.com/HatiCode/runrate/pkg/backtest"
	"github.com/HatiCode/runrate/pkg/models"
)

// Metrics are the holdout errors of the selected method.
type Metrics struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
}

// Outcome is a finished forecast.
type Outcome struct {
	ModelName       string                      `json:"model_name"`
	Params          models.Params               `json:"model_params"`
	Metrics         Metrics                     `json:"metrics"`
	Dates           []time.Time                 `json:"dates"`
	Forecast        []float64                   `json:"forecast"`
	BacktestResults map[string]backtest.Outcome `json:"backtest_results"`
}

// Assemble combines the winning backtest, the forecast and every method's
// backtest into an Outcome.
func Assemble(winner backtest.Outcome, dates []time.Time, forecast []float64, results map[string]backtest.Outcome) *Outcome {
	return &Outcome{
		ModelName: winner.Method,
		Params:    winner.Params,
		Metrics: Metrics{
			MAE:  winner.MAE,
			MAPE: winner.MAPE,
		},
		Dates:           dates,
		Forecast:        forecast,
		BacktestResults: results,
	}
}
