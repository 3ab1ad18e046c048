// Package ingest decodes forecast requests from JSON bodies, CSV files and
// query parameters into series records and engine requests.
package ingest

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/series"
)

// DefaultSteps is the horizon used when a request does not name one.
const DefaultSteps = 7

// ForecastRequest is a decoded manual-entry request.
type ForecastRequest struct {
	Records []series.Record
	Request engine.Request
}

// DecodeForecastRequest parses a body of the form
//
//	{"data": [{"date": "2024-01-01", "value": 12.5}, ...],
//	 "forecast_steps": 7, "use_grid_search": false}
//
// Values may be JSON numbers or numeric strings. Range checks on the values
// and steps are left to series.Normalize and engine.Request.Validate.
func DecodeForecastRequest(body []byte) (ForecastRequest, error) {
	if !gjson.ValidBytes(body) {
		return ForecastRequest{}, fmt.Errorf("%w: request body is not valid JSON", series.ErrValidation)
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return ForecastRequest{}, fmt.Errorf("%w: request body must be a JSON object", series.ErrValidation)
	}

	data := root.Get("data")
	if !data.Exists() {
		return ForecastRequest{}, fmt.Errorf("%w: missing required field \"data\"", series.ErrValidation)
	}
	if !data.IsArray() {
		return ForecastRequest{}, fmt.Errorf("%w: \"data\" must be an array", series.ErrValidation)
	}

	items := data.Array()
	records := make([]series.Record, 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			return ForecastRequest{}, fmt.Errorf("%w: data[%d]: %v", series.ErrValidation, i, err)
		}
		records = append(records, rec)
	}

	req := engine.Request{Steps: DefaultSteps}

	if steps := root.Get("forecast_steps"); steps.Exists() {
		n, err := integer(steps)
		if err != nil {
			return ForecastRequest{}, fmt.Errorf("%w: forecast_steps: %v", series.ErrValidation, err)
		}
		req.Steps = n
	}

	if grid := root.Get("use_grid_search"); grid.Exists() {
		if grid.Type != gjson.True && grid.Type != gjson.False {
			return ForecastRequest{}, fmt.Errorf("%w: use_grid_search must be a boolean", series.ErrValidation)
		}
		req.GridSearch = grid.Bool()
	}

	return ForecastRequest{Records: records, Request: req}, nil
}

func decodeRecord(item gjson.Result) (series.Record, error) {
	if !item.IsObject() {
		return series.Record{}, fmt.Errorf("must be an object with date and value")
	}

	date := item.Get("date")
	if date.Type != gjson.String {
		return series.Record{}, fmt.Errorf("date must be a string")
	}

	value := item.Get("value")
	var raw string
	switch value.Type {
	case gjson.Number:
		raw = value.Raw
	case gjson.String:
		raw = value.Str
	default:
		return series.Record{}, fmt.Errorf("value must be a number")
	}

	return series.Record{Date: date.Str, Value: raw}, nil
}

func integer(r gjson.Result) (int, error) {
	if r.Type != gjson.Number {
		return 0, fmt.Errorf("must be an integer")
	}
	f := r.Float()
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("must be an integer, got %s", r.Raw)
	}
	return int(f), nil
}
