package grid

import (
	"context"
)

// RecordSource fetches the raw records of one date. Implementations return
// records or an error wrapping ErrSourceUnavailable, ErrMalformedPayload or
// ErrEmptyPayload, and never panic past their boundary. They do not cache.
type RecordSource interface {
	Name() string
	FetchDay(ctx context.Context, dateKey string) ([]RawRecord, error)
}

// ProfileSink receives the results that survived the staleness check. It is
// the only thing the core knows about rendering.
type ProfileSink interface {
	OnDay(view string, p *DayProfile)
	OnMonth(view string, p *MonthProfile)
	OnFlow(view string, s *FlowSummary)
	OnNoData(view string, mode, key, message string)
}
