package grid

import (
	"encoding/json"
)

// Field names a tracked telemetry value. The string is the key used in the
// per-day JSON resources.
type Field string

const (
	FieldLoad       Field = "load"
	FieldProduction Field = "production"
	FieldForecastD1 Field = "forecast_d1"
	FieldForecastD  Field = "forecast_d"
	FieldExchUK     Field = "exch_uk"
	FieldExchES     Field = "exch_es"
	FieldExchIT     Field = "exch_it"
	FieldExchCH     Field = "exch_ch"
	FieldExchDEBE   Field = "exch_de_be"
	FieldCO2Rate    Field = "co2_rate"
)

// AllFields lists every field a RawRecord may carry.
var AllFields = []Field{
	FieldLoad, FieldProduction, FieldForecastD1, FieldForecastD,
	FieldExchUK, FieldExchES, FieldExchIT, FieldExchCH, FieldExchDEBE,
	FieldCO2Rate,
}

// ExchangeFields are the signed cross-border flows, one per neighbouring zone.
var ExchangeFields = []Field{FieldExchUK, FieldExchES, FieldExchIT, FieldExchCH, FieldExchDEBE}

// Field sets used by the different call sites.
var (
	DayFields   = []Field{FieldLoad, FieldProduction, FieldForecastD1}
	MonthFields = []Field{
		FieldLoad, FieldProduction,
		FieldExchUK, FieldExchES, FieldExchIT, FieldExchCH, FieldExchDEBE,
		FieldCO2Rate,
	}
	FlowFields = []Field{FieldExchUK, FieldExchES, FieldExchIT, FieldExchCH, FieldExchDEBE, FieldCO2Rate}
)

// Values maps a field to a number. A field that is not in the map is missing,
// which is different from zero.
type Values map[Field]float64

// Get returns the value for f and whether it is present.
func (v Values) Get(f Field) (float64, bool) {
	x, ok := v[f]
	return x, ok
}

// RawRecord is one telemetry sample as read from a day resource.
type RawRecord struct {
	Time   string
	Values Values
}

// TimeBucket holds the per-field means for one minute of the day.
type TimeBucket struct {
	Minute int
	Values Values
}

// Time returns the bucket minute formatted as HH:MM.
func (b TimeBucket) Time() string {
	return FormatMinutes(b.Minute)
}

// MarshalJSON flattens the bucket into {"minutes":..,"time":..,"load":..}.
// Missing fields are left out.
func (b TimeBucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Values)+2)
	out["minutes"] = b.Minute
	out["time"] = b.Time()
	for f, v := range b.Values {
		out[string(f)] = v
	}
	return json.Marshal(out)
}

// DayAnalysis carries the derived indicators shown next to a day curve.
type DayAnalysis struct {
	// MaxDeficit is the largest load - production gap, 0 when production
	// always covers load.
	MaxDeficit float64 `json:"maxDeficit"`
	// MeanForecastError is the mean |load - forecast_d1|; nil when no bucket
	// carries a forecast.
	MeanForecastError *float64 `json:"meanForecastError,omitempty"`
}

// DayProfile is the bucketed curve of exactly one calendar date.
type DayProfile struct {
	Date           string       `json:"date"`
	Buckets        []TimeBucket `json:"buckets"`
	Peak           TimeBucket   `json:"peak"`
	PeakTime       string       `json:"peakTime"`
	MeanLoad       float64      `json:"meanLoad"`
	MeanProduction float64      `json:"meanProduction"`
	Analysis       DayAnalysis  `json:"analysis"`
}

// MonthProfile is the "average day" of a calendar month, built by pooling
// every sample of every loadable day of that month.
type MonthProfile struct {
	Month          string       `json:"month"`
	Days           int          `json:"days"`
	Buckets        []TimeBucket `json:"buckets"`
	Peak           *TimeBucket  `json:"peak,omitempty"`
	PeakTime       string       `json:"peakTime,omitempty"`
	PeakLoad       float64      `json:"peakLoad"`
	MeanLoad       float64      `json:"meanLoad"`
	MeanProduction float64      `json:"meanProduction"`
}

// MonthSummary is a MonthProfile without its buckets.
type MonthSummary struct {
	Month          string  `json:"month"`
	Days           int     `json:"days"`
	Buckets        int     `json:"buckets"`
	PeakTime       string  `json:"peakTime,omitempty"`
	PeakLoad       float64 `json:"peakLoad"`
	MeanLoad       float64 `json:"meanLoad"`
	MeanProduction float64 `json:"meanProduction"`
}

// Summary drops the buckets.
func (m *MonthProfile) Summary() MonthSummary {
	return MonthSummary{
		Month:          m.Month,
		Days:           m.Days,
		Buckets:        len(m.Buckets),
		PeakTime:       m.PeakTime,
		PeakLoad:       m.PeakLoad,
		MeanLoad:       m.MeanLoad,
		MeanProduction: m.MeanProduction,
	}
}

// FlowDirection tells whether the zone is a net importer or exporter.
type FlowDirection string

const (
	DirectionImport FlowDirection = "import"
	DirectionExport FlowDirection = "export"
)

// Partner is one neighbouring zone and its mean exchange.
type Partner struct {
	Field Field   `json:"field"`
	Value float64 `json:"value"`
}

// FlowSummary is what the cross-border flow view renders: one mean per
// exchange and the carbon intensity, for a day or a month.
type FlowSummary struct {
	Mode        string        `json:"mode"`
	Key         string        `json:"key"`
	Values      Values        `json:"values"`
	NetBalance  float64       `json:"netBalance"`
	Direction   FlowDirection `json:"direction"`
	MainPartner *Partner      `json:"mainPartner,omitempty"`
	CO2Rate     *float64      `json:"co2Rate,omitempty"`
}
