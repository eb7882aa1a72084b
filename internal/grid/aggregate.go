package grid

import (
	"sort"
)

// BucketAggregator groups records by minute of day and reduces every group
// to one mean per tracked field. The same aggregator serves a single day and
// a whole month of pooled days; only the input differs.
//
// A BucketAggregator is not safe for concurrent use.
type BucketAggregator struct {
	fields  []Field
	buckets map[int]map[Field][]float64
	records int
}

// NewBucketAggregator tracks the given fields; other fields are ignored.
func NewBucketAggregator(fields ...Field) *BucketAggregator {
	return &BucketAggregator{
		fields:  fields,
		buckets: make(map[int]map[Field][]float64),
	}
}

// Add folds records into the accumulators. Records whose time does not
// parse are skipped. A missing field is never appended, so each field's
// mean only depends on the records that carried it.
func (a *BucketAggregator) Add(records ...RawRecord) {
	for _, r := range records {
		minute, err := ParseMinutes(r.Time)
		if err != nil {
			continue
		}

		acc, ok := a.buckets[minute]
		if !ok {
			acc = make(map[Field][]float64, len(a.fields))
			a.buckets[minute] = acc
		}
		for _, f := range a.fields {
			if v, ok := r.Values.Get(f); ok {
				acc[f] = append(acc[f], v)
			}
		}
		a.records++
	}
}

// Records returns how many records were folded in.
func (a *BucketAggregator) Records() int {
	return a.records
}

// Buckets finalizes the accumulators into buckets sorted by minute. Fields
// without any contribution are absent from the bucket's Values.
func (a *BucketAggregator) Buckets() []TimeBucket {
	minutes := make([]int, 0, len(a.buckets))
	for m := range a.buckets {
		minutes = append(minutes, m)
	}
	sort.Ints(minutes)

	out := make([]TimeBucket, 0, len(minutes))
	for _, m := range minutes {
		acc := a.buckets[m]
		values := make(Values, len(acc))
		for f, xs := range acc {
			if mean, ok := Mean(xs); ok {
				values[f] = mean
			}
		}
		out = append(out, TimeBucket{Minute: m, Values: values})
	}
	return out
}

// AggregateRecords is a one-shot BucketAggregator pass.
func AggregateRecords(records []RawRecord, fields ...Field) []TimeBucket {
	a := NewBucketAggregator(fields...)
	a.Add(records...)
	return a.Buckets()
}

// Mean returns the arithmetic mean of xs, or false when xs is empty.
func Mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// FieldMean is the mean of f over the buckets that define it.
func FieldMean(buckets []TimeBucket, f Field) (float64, bool) {
	xs := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		if v, ok := b.Values.Get(f); ok {
			xs = append(xs, v)
		}
	}
	return Mean(xs)
}

// PeakBucket scans for the highest load. The running maximum starts at the
// first bucket with a load, and only a strictly greater load replaces it, so
// ties go to the earliest minute.
func PeakBucket(buckets []TimeBucket) (TimeBucket, bool) {
	var (
		peak  TimeBucket
		found bool
	)
	for _, b := range buckets {
		v, ok := b.Values.Get(FieldLoad)
		if !ok {
			continue
		}
		if !found {
			peak, found = b, true
			continue
		}
		if v > peak.Values[FieldLoad] {
			peak = b
		}
	}
	return peak, found
}
