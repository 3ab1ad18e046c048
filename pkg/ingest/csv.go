package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/series"
)

// ReadCSV reads records from a CSV file whose header names a "date" and a
// "value" column. Header matching ignores case and surrounding whitespace;
// other columns are ignored. Every value must be numeric.
func ReadCSV(r io.Reader) ([]series.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", series.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", series.ErrValidation, err)
	}

	dateCol, valueCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "date":
			dateCol = i
		case "value":
			valueCol = i
		}
	}
	if dateCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("%w: file must contain 'date' and 'value' columns", series.ErrValidation)
	}

	var records []series.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", series.ErrValidation, line, err)
		}
		if isBlank(row) {
			continue
		}
		if dateCol >= len(row) || valueCol >= len(row) {
			return nil, fmt.Errorf("%w: line %d: missing date or value", series.ErrValidation, line)
		}

		value := strings.TrimSpace(row[valueCol])
		if _, err := series.ParseValue(value); err != nil {
			return nil, fmt.Errorf("%w: line %d: value column must contain numeric values: %v", series.ErrValidation, line, err)
		}

		records = append(records, series.Record{
			Date:  strings.TrimSpace(row[dateCol]),
			Value: value,
		})
	}

	return records, nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseQuery reads forecast_steps and use_grid_search from a file upload's
// query string. Missing parameters take their defaults.
func ParseQuery(q url.Values) (engine.Request, error) {
	req := engine.Request{Steps: DefaultSteps}

	if v := q.Get("forecast_steps"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return engine.Request{}, fmt.Errorf("%w: forecast_steps must be an integer, got %q", series.ErrValidation, v)
		}
		req.Steps = n
	}

	if v := q.Get("use_grid_search"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return engine.Request{}, fmt.Errorf("%w: use_grid_search must be a boolean, got %q", series.ErrValidation, v)
		}
		req.GridSearch = b
	}

	return req, nil
}
