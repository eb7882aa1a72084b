package grid

import (
	"math"
)

// FlowFromRecords averages each flow field over the raw rows of one day.
// It returns false when no flow field is present at all.
func FlowFromRecords(dateKey string, records []RawRecord) (*FlowSummary, bool) {
	values := make(Values, len(FlowFields))
	for _, f := range FlowFields {
		xs := make([]float64, 0, len(records))
		for _, r := range records {
			if v, ok := r.Values.Get(f); ok {
				xs = append(xs, v)
			}
		}
		if m, ok := Mean(xs); ok {
			values[f] = m
		}
	}
	return summarizeFlow("day", dateKey, values)
}

// FlowFromMonth averages each flow field over the month profile's buckets.
func FlowFromMonth(p *MonthProfile) (*FlowSummary, bool) {
	values := make(Values, len(FlowFields))
	for _, f := range FlowFields {
		if m, ok := FieldMean(p.Buckets, f); ok {
			values[f] = m
		}
	}
	return summarizeFlow("month", p.Month, values)
}

func summarizeFlow(mode, key string, values Values) (*FlowSummary, bool) {
	if len(values) == 0 {
		return nil, false
	}

	s := &FlowSummary{
		Mode:      mode,
		Key:       key,
		Values:    values,
		Direction: DirectionImport,
	}

	// Negative exchanges are exports; a missing exchange counts as zero in
	// the balance.
	for _, f := range ExchangeFields {
		v, ok := values.Get(f)
		if !ok {
			continue
		}
		s.NetBalance += v
		if s.MainPartner == nil || math.Abs(v) > math.Abs(s.MainPartner.Value) {
			s.MainPartner = &Partner{Field: f, Value: v}
		}
	}
	if s.NetBalance < 0 {
		s.Direction = DirectionExport
	}
	if co2, ok := values.Get(FieldCO2Rate); ok {
		s.CO2Rate = &co2
	}
	return s, true
}
