package grid

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func testCalendar(t *testing.T, start, end string) *Calendar {
	t.Helper()
	cal, err := NewCalendar(start, end)
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return cal
}

func TestDayProfileEndToEnd(t *testing.T) {
	src := newFakeSource(map[string][]RawRecord{
		"2025-03-02": {
			rec("08:00", FieldLoad, 100),
			rec("08:00", FieldLoad, 120),
			rec("08:00", FieldProduction, 50),
		},
	})
	b := NewDayProfileBuilder(src, testCalendar(t, "2025-01-01", "2025-11-27"), zap.NewNop())

	p, err := b.Build(context.Background(), "2025-03-02")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(p.Buckets))
	}
	bk := p.Buckets[0]
	if bk.Time() != "08:00" {
		t.Errorf("bucket time = %s", bk.Time())
	}
	if bk.Values[FieldLoad] != 110 {
		t.Errorf("load = %v, want 110", bk.Values[FieldLoad])
	}
	if bk.Values[FieldProduction] != 50 {
		t.Errorf("production = %v, want 50", bk.Values[FieldProduction])
	}
	if p.PeakTime != "08:00" {
		t.Errorf("peak time = %s", p.PeakTime)
	}
	if p.Analysis.MaxDeficit != 60 {
		t.Errorf("max deficit = %v, want 60", p.Analysis.MaxDeficit)
	}
	if p.Analysis.MeanForecastError != nil {
		t.Errorf("no forecast in input, got error %v", *p.Analysis.MeanForecastError)
	}
}

func TestBuildDayProfileFiltersIncompleteBuckets(t *testing.T) {
	p, ok := BuildDayProfile("2025-03-02", []RawRecord{
		rec("00:00", FieldLoad, 10, FieldProduction, 20, FieldForecastD1, 12),
		rec("00:15", FieldLoad, 50),
		rec("00:30", FieldForecastD1, 40),
		rec("00:45", FieldLoad, 30, FieldProduction, 10, FieldForecastD1, 26),
	})
	if !ok {
		t.Fatal("expected a profile")
	}
	if len(p.Buckets) != 2 {
		t.Fatalf("expected 2 usable buckets, got %d", len(p.Buckets))
	}
	if p.Buckets[0].Minute != 0 || p.Buckets[1].Minute != 45 {
		t.Fatalf("unexpected bucket minutes %d, %d", p.Buckets[0].Minute, p.Buckets[1].Minute)
	}
	// The 00:15 bucket has the highest load but no production.
	if p.PeakTime != "00:45" {
		t.Errorf("peak time = %s, want 00:45", p.PeakTime)
	}
	if p.MeanLoad != 20 || p.MeanProduction != 15 {
		t.Errorf("means = %v / %v, want 20 / 15", p.MeanLoad, p.MeanProduction)
	}
	if p.Analysis.MaxDeficit != 20 {
		t.Errorf("max deficit = %v, want 20", p.Analysis.MaxDeficit)
	}
	if p.Analysis.MeanForecastError == nil || *p.Analysis.MeanForecastError != 3 {
		t.Errorf("mean forecast error = %v, want 3", p.Analysis.MeanForecastError)
	}
}

func TestBuildDayProfileSingleBucket(t *testing.T) {
	p, ok := BuildDayProfile("2025-03-02", []RawRecord{
		rec("12:00", FieldLoad, 10, FieldProduction, 20),
	})
	if !ok {
		t.Fatal("expected a profile")
	}
	if p.PeakTime != "12:00" || p.Peak.Values[FieldLoad] != 10 {
		t.Fatalf("unexpected peak %+v", p.Peak)
	}
	if p.Analysis.MaxDeficit != 0 {
		t.Fatalf("production covers load, deficit = %v", p.Analysis.MaxDeficit)
	}
}

func TestDayProfileNoData(t *testing.T) {
	src := newFakeSource(map[string][]RawRecord{
		"2025-03-03": {rec("08:00", FieldLoad, 100)},
	})
	b := NewDayProfileBuilder(src, testCalendar(t, "2025-03-01", "2025-03-31"), zap.NewNop())

	tests := []struct {
		date string
		want error
	}{
		{date: "2025-03-02", want: ErrSourceUnavailable},
		{date: "2025-03-03", want: ErrNoAggregableData},
	}
	for _, tt := range tests {
		_, err := b.Build(context.Background(), tt.date)
		if !errors.Is(err, tt.want) {
			t.Errorf("Build(%s) error = %v, want %v", tt.date, err, tt.want)
		}
		if !IsNoData(err) {
			t.Errorf("Build(%s) error should be a no-data error", tt.date)
		}
	}

	_, err := b.Build(context.Background(), "2025-04-01")
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if src.callCount("2025-04-01") != 0 {
		t.Fatal("dates outside the calendar must not be fetched")
	}
}
