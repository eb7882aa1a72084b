package grid

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// DayProfileBuilder turns one date's records into a DayProfile. Day profiles
// are not cached: a day is rarely revisited.
type DayProfileBuilder struct {
	source   RecordSource
	calendar *Calendar
	log      *zap.Logger
}

// NewDayProfileBuilder creates a DayProfileBuilder.
func NewDayProfileBuilder(source RecordSource, calendar *Calendar, log *zap.Logger) *DayProfileBuilder {
	return &DayProfileBuilder{
		source:   source,
		calendar: calendar,
		log:      log,
	}
}

// Build fetches and aggregates dateKey. A day that fails to load, or has no
// bucket with both load and production, yields an error for which IsNoData
// is true. Dates outside the calendar yield ErrOutOfRange.
func (b *DayProfileBuilder) Build(ctx context.Context, dateKey string) (*DayProfile, error) {
	if !b.calendar.Contains(dateKey) {
		return nil, fmt.Errorf("date %s: %w", dateKey, ErrOutOfRange)
	}

	records, err := b.source.FetchDay(ctx, dateKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Debug("day has no data",
			zap.String("date", dateKey),
			zap.String("source", b.source.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	profile, ok := BuildDayProfile(dateKey, records)
	if !ok {
		return nil, fmt.Errorf("date %s: %w", dateKey, ErrNoAggregableData)
	}
	return profile, nil
}

// BuildDayProfile aggregates records already in hand. It returns false when
// no bucket carries both load and production.
func BuildDayProfile(dateKey string, records []RawRecord) (*DayProfile, bool) {
	all := AggregateRecords(records, DayFields...)

	buckets := make([]TimeBucket, 0, len(all))
	for _, bk := range all {
		_, hasLoad := bk.Values.Get(FieldLoad)
		_, hasProd := bk.Values.Get(FieldProduction)
		if hasLoad && hasProd {
			buckets = append(buckets, bk)
		}
	}
	if len(buckets) == 0 {
		return nil, false
	}

	peak, _ := PeakBucket(buckets)
	meanLoad, _ := FieldMean(buckets, FieldLoad)
	meanProd, _ := FieldMean(buckets, FieldProduction)

	return &DayProfile{
		Date:           dateKey,
		Buckets:        buckets,
		Peak:           peak,
		PeakTime:       peak.Time(),
		MeanLoad:       meanLoad,
		MeanProduction: meanProd,
		Analysis:       AnalyzeDay(buckets),
	}, true
}

// AnalyzeDay computes the deficit and forecast-error indicators.
func AnalyzeDay(buckets []TimeBucket) DayAnalysis {
	var (
		analysis DayAnalysis
		errs     []float64
	)
	for _, b := range buckets {
		load, hasLoad := b.Values.Get(FieldLoad)
		if !hasLoad {
			continue
		}
		if prod, ok := b.Values.Get(FieldProduction); ok && prod < load {
			if gap := load - prod; gap > analysis.MaxDeficit {
				analysis.MaxDeficit = gap
			}
		}
		if fc, ok := b.Values.Get(FieldForecastD1); ok {
			errs = append(errs, math.Abs(load-fc))
		}
	}
	if m, ok := Mean(errs); ok {
		analysis.MeanForecastError = &m
	}
	return analysis
}
