package grid

import "errors"

var (
	// ErrSourceUnavailable is a transport failure: resource unreachable,
	// not found or non-success status.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedPayload means the payload did not parse, even after repair.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrEmptyPayload means the payload parsed but held no usable record.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrNoAggregableData is returned for a day or month for which every
	// contributing day failed. It is the only condition shown to users.
	ErrNoAggregableData = errors.New("no aggregable data")
	// ErrOutOfRange is returned for dates or month indexes outside the
	// configured calendar.
	ErrOutOfRange = errors.New("outside calendar range")
)

// IsNoData reports whether err is one of the per-day failures that callers
// must treat as "this key has no data".
func IsNoData(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrNoAggregableData)
}
