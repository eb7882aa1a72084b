package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
)

var (
	// ErrNotFound is returned when a view has nothing applied yet.
	ErrNotFound = errors.New("no applied result for view")
)

// ViewState is one applied result of a view: a profile, a flow summary, or
// the "no data" message.
type ViewState struct {
	View      string             `json:"view"`
	Mode      string             `json:"mode"`
	Key       string             `json:"key"`
	AppliedAt time.Time          `json:"appliedAt"`
	Day       *grid.DayProfile   `json:"day,omitempty"`
	Month     *grid.MonthProfile `json:"month,omitempty"`
	Flow      *grid.FlowSummary  `json:"flow,omitempty"`
	NoData    bool               `json:"noData,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// ViewHistory holds the applied states of a view, oldest first.
type ViewHistory struct {
	States []ViewState
}

// MemoryStore is a concurrency-safe in-memory record of what each view
// currently shows. It implements grid.ProfileSink.
type MemoryStore struct {
	mu sync.RWMutex

	// key: view key, value: history
	data map[string]*ViewHistory

	maxHistory int           // max number of states per view
	maxAge     time.Duration // optional max age for states

	now func() time.Time
}

var _ grid.ProfileSink = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ViewHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// OnDay records an applied day profile.
func (s *MemoryStore) OnDay(view string, p *grid.DayProfile) {
	s.save(ViewState{View: view, Mode: "day", Key: p.Date, Day: p})
}

// OnMonth records an applied month profile.
func (s *MemoryStore) OnMonth(view string, p *grid.MonthProfile) {
	s.save(ViewState{View: view, Mode: "month", Key: p.Month, Month: p})
}

// OnFlow records an applied flow summary.
func (s *MemoryStore) OnFlow(view string, f *grid.FlowSummary) {
	s.save(ViewState{View: view, Mode: f.Mode, Key: f.Key, Flow: f})
}

// OnNoData records that the view shows the "no data" message.
func (s *MemoryStore) OnNoData(view, mode, key, message string) {
	s.save(ViewState{View: view, Mode: mode, Key: key, NoData: true, Message: message})
}

func (s *MemoryStore) save(state ViewState) {
	now := s.now()
	state.AppliedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[state.View]
	if !ok {
		history = &ViewHistory{}
		s.data[state.View] = history
	}

	history.States = append(history.States, state)

	if s.maxHistory > 0 && len(history.States) > s.maxHistory {
		over := len(history.States) - s.maxHistory
		history.States = history.States[over:]
	}

	// The newest state always survives age retention.
	if s.maxAge > 0 {
		cutoff := now.Add(-s.maxAge)
		i := 0
		for ; i < len(history.States)-1; i++ {
			if !history.States[i].AppliedAt.Before(cutoff) {
				break
			}
		}
		history.States = history.States[i:]
	}
}

// GetLatest returns what the view currently shows.
func (s *MemoryStore) GetLatest(view string) (ViewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[view]
	if !ok || len(history.States) == 0 {
		return ViewState{}, ErrNotFound
	}
	return history.States[len(history.States)-1], nil
}

// History returns a copy of the retained states of a view, oldest first.
func (s *MemoryStore) History(view string) ([]ViewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[view]
	if !ok || len(history.States) == 0 {
		return nil, ErrNotFound
	}
	out := make([]ViewState, len(history.States))
	copy(out, history.States)
	return out, nil
}

// Delete drops everything recorded for the given views.
func (s *MemoryStore) Delete(views ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range views {
		delete(s.data, v)
	}
}
