package grid

import (
	"context"
	"fmt"
	"sync"
)

// fakeSource serves canned records per date and counts fetches.
type fakeSource struct {
	mu     sync.Mutex
	days   map[string][]RawRecord
	calls  map[string]int
	gate   chan struct{} // when set, every fetch waits on it
	panics map[string]bool
}

func newFakeSource(days map[string][]RawRecord) *fakeSource {
	return &fakeSource{days: days, calls: make(map[string]int)}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchDay(ctx context.Context, dateKey string) ([]RawRecord, error) {
	f.mu.Lock()
	f.calls[dateKey]++
	gate := f.gate
	panics := f.panics[dateKey]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panics {
		panic("boom")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	records, ok := f.days[dateKey]
	if !ok {
		return nil, fmt.Errorf("fake %s: %w", dateKey, ErrSourceUnavailable)
	}
	return records, nil
}

func (f *fakeSource) callCount(dateKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[dateKey]
}

func rec(t string, kv ...any) RawRecord {
	r := RawRecord{Time: t, Values: Values{}}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Values[kv[i].(Field)] = toFloat(kv[i+1])
	}
	return r
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	panic(fmt.Sprintf("unsupported value %T", v))
}
