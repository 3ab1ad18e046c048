package series

import (
	"errors"
	"testing"
	"time"
)

func dailyRecords(values ...string) []Record {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]Record, len(values))
	for i, v := range values {
		records[i] = Record{Date: start.AddDate(0, 0, i).Format("2006-01-02"), Value: v}
	}
	return records
}

func TestNormalize_Validation(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{name: "empty", records: nil},
		{name: "single point", records: dailyRecords("1")},
		{name: "bad date", records: []Record{{Date: "yesterday", Value: "1"}, {Date: "2024-01-02", Value: "2"}}},
		{name: "non-numeric value", records: []Record{{Date: "2024-01-01", Value: "abc"}, {Date: "2024-01-02", Value: "2"}}},
		{name: "NaN value", records: []Record{{Date: "2024-01-01", Value: "NaN"}, {Date: "2024-01-02", Value: "2"}}},
		{name: "infinite value", records: []Record{{Date: "2024-01-01", Value: "+Inf"}, {Date: "2024-01-02", Value: "2"}}},
		{name: "all duplicates", records: []Record{{Date: "2024-01-01", Value: "1"}, {Date: "2024-01-01", Value: "3"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.records)
			if err == nil {
				t.Fatal("Normalize() error = nil, want validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Normalize() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestNormalize_SortsAndCoalesces(t *testing.T) {
	records := []Record{
		{Date: "2024-01-03", Value: "30"},
		{Date: "2024-01-01", Value: "10"},
		{Date: "2024-01-02", Value: "18"},
		{Date: "2024-01-02", Value: "22"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := []float64{10, 20, 30}
	got := s.Values()
	if len(got) != len(want) {
		t.Fatalf("len(Values) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	ts := s.Timestamps()
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			t.Errorf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestNormalize_DateFormats(t *testing.T) {
	records := []Record{
		{Date: "2024-01-01T00:00:00Z", Value: "1"},
		{Date: "2024-01-02 00:00:00", Value: " 2 "},
		{Date: "2024-01-03", Value: "3.5"},
		{Date: "2024-01-04T02:00:00+02:00", Value: "-4"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if s.Period().Duration != 24*time.Hour {
		t.Errorf("Period() = %v, want 24h", s.Period())
	}
}

func TestInferPeriod_Modal(t *testing.T) {
	records := []Record{
		{Date: "2024-01-01", Value: "1"},
		{Date: "2024-01-02", Value: "1"},
		{Date: "2024-01-03", Value: "1"},
		{Date: "2024-01-05", Value: "1"}, // one missing day
		{Date: "2024-01-06", Value: "1"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := s.Period(); got.Months != 0 || got.Duration != 24*time.Hour {
		t.Errorf("Period() = %v, want 24h", got)
	}
}

func TestInferPeriod_TieUsesSmallerGap(t *testing.T) {
	records := []Record{
		{Date: "2024-01-01T00:00:00Z", Value: "1"},
		{Date: "2024-01-01T01:00:00Z", Value: "1"},
		{Date: "2024-01-01T03:00:00Z", Value: "1"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := s.Period().Duration; got != time.Hour {
		t.Errorf("Period() = %v, want 1h", got)
	}
}

func TestInferPeriod_Monthly(t *testing.T) {
	records := []Record{
		{Date: "2024-01-15", Value: "1"},
		{Date: "2024-02-15", Value: "2"},
		{Date: "2024-03-15", Value: "3"},
		{Date: "2024-04-15", Value: "4"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := s.Period(); got.Months != 1 {
		t.Fatalf("Period() = %v, want 1mo", got)
	}

	dates := s.FutureDates(3)
	want := []string{"2024-05-15", "2024-06-15", "2024-07-15"}
	for i, d := range dates {
		if got := d.Format("2006-01-02"); got != want[i] {
			t.Errorf("FutureDates[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestInferPeriod_MonthEnd(t *testing.T) {
	tests := []struct {
		name       string
		dates      []string
		wantMonths int
		wantFuture []string
	}{
		{
			name:       "monthly through a leap February",
			dates:      []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"},
			wantMonths: 1,
			wantFuture: []string{"2024-06-30", "2024-07-31", "2024-08-31", "2024-09-30"},
		},
		{
			name:       "quarterly",
			dates:      []string{"2023-03-31", "2023-06-30", "2023-09-30", "2023-12-31"},
			wantMonths: 3,
			wantFuture: []string{"2024-03-31", "2024-06-30", "2024-09-30"},
		},
		{
			name:       "into February",
			dates:      []string{"2022-11-30", "2022-12-31", "2023-01-31"},
			wantMonths: 1,
			wantFuture: []string{"2023-02-28", "2023-03-31"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]Record, len(tt.dates))
			for i, d := range tt.dates {
				records[i] = Record{Date: d, Value: "1"}
			}

			s, err := Normalize(records)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got := s.Period(); got.Months != tt.wantMonths || !got.EndOfMonth {
				t.Fatalf("Period() = %v, want %dmo at month end", got, tt.wantMonths)
			}

			dates := s.FutureDates(len(tt.wantFuture))
			for i, d := range dates {
				if got := d.Format("2006-01-02"); got != tt.wantFuture[i] {
					t.Errorf("FutureDates[%d] = %s, want %s", i, got, tt.wantFuture[i])
				}
			}
		})
	}
}

func TestInferPeriod_MonthEndNeedsSameClock(t *testing.T) {
	records := []Record{
		{Date: "2024-01-31T00:00:00Z", Value: "1"},
		{Date: "2024-02-29T12:00:00Z", Value: "2"},
		{Date: "2024-03-31T00:00:00Z", Value: "3"},
	}

	s, err := Normalize(records)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if s.Period().EndOfMonth {
		t.Errorf("Period() = %v, want a fixed gap", s.Period())
	}
}

func TestFutureDates_Daily(t *testing.T) {
	s, err := Normalize(dailyRecords("1", "2", "3"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	dates := s.FutureDates(5)
	if len(dates) != 5 {
		t.Fatalf("len(FutureDates) = %d, want 5", len(dates))
	}

	prev := s.Last().Timestamp
	for i, d := range dates {
		if d.Sub(prev) != 24*time.Hour {
			t.Errorf("date[%d] gap = %v, want 24h", i, d.Sub(prev))
		}
		prev = d
	}

	if got := s.FutureDates(0); len(got) != 0 {
		t.Errorf("FutureDates(0) len = %d, want 0", len(got))
	}
}

func TestSeries_Immutable(t *testing.T) {
	s, err := Normalize(dailyRecords("1", "2", "3"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	v := s.Values()
	v[0] = 100
	p := s.Points()
	p[1].Value = 200

	got := s.Values()
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("series mutated through accessor copies: %v", got)
	}
}

func TestSeries_Head(t *testing.T) {
	s, err := Normalize(dailyRecords("1", "2", "3", "4"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	head := s.Head(2)
	if head.Len() != 2 {
		t.Fatalf("Head(2).Len() = %d, want 2", head.Len())
	}
	if head.Last().Value != 2 {
		t.Errorf("Head(2).Last() = %v, want 2", head.Last().Value)
	}
	if head.Period() != s.Period() {
		t.Errorf("Head period = %v, want %v", head.Period(), s.Period())
	}
	if s.Head(10).Len() != 4 {
		t.Errorf("Head(10) should clamp to series length")
	}
}

func TestFromValues(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := FromValues(start, time.Hour, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("FromValues() error = %v", err)
	}
	if s.Len() != 3 || s.Period().Duration != time.Hour {
		t.Errorf("FromValues() = len %d period %v", s.Len(), s.Period())
	}

	if _, err := FromValues(start, time.Hour, []float64{1}); !errors.Is(err, ErrValidation) {
		t.Errorf("FromValues(single) error = %v, want ErrValidation", err)
	}
	if _, err := FromValues(start, 0, []float64{1, 2}); !errors.Is(err, ErrValidation) {
		t.Errorf("FromValues(zero step) error = %v, want ErrValidation", err)
	}
}
