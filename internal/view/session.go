package view

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/observability"
)

var (
	// ErrSessionNotFound is returned for unknown or pruned session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownView is returned for a view kind a session does not own.
	ErrUnknownView = errors.New("unknown view")
)

// Kind names one independently refreshable view.
type Kind string

const (
	KindConsumption Kind = "consumption"
	KindFlow        Kind = "flow"
)

// Kinds lists every view a session owns.
var Kinds = []Kind{KindConsumption, KindFlow}

// ParseKind validates a view name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Session is one client's set of views, each with its own Coordinator.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	views    map[Kind]*Coordinator
	lastSeen atomic.Int64

	mu     sync.Mutex
	closed bool
}

func newSession(now time.Time) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		views:     make(map[Kind]*Coordinator, len(Kinds)),
	}
	for _, k := range Kinds {
		s.views[k] = NewCoordinator()
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Coordinator returns the coordinator of view k.
func (s *Session) Coordinator(k Kind) *Coordinator {
	return s.views[k]
}

// ViewKey is the key under which the view's applied results are stored.
func (s *Session) ViewKey(k Kind) string {
	return s.ID + "/" + string(k)
}

// ViewKeys returns the keys of every view of the session.
func (s *Session) ViewKeys() []string {
	keys := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		keys = append(keys, s.ViewKey(k))
	}
	return keys
}

// guard runs fn unless the session has been pruned, and reports whether it
// ran. Pruning waits for a running fn, so nothing is written for a session
// after its views have been evicted.
func (s *Session) guard(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether the session has been pruned.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Registry holds the live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	log      *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
		log:      log,
	}
}

// Create registers a new session.
func (r *Registry) Create() *Session {
	s := newSession(r.now())

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	observability.SessionsActive.Set(float64(n))
	r.log.Debug("session created", zap.String("session", s.ID))
	return s
}

// Get returns a session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Prune removes sessions idle for longer than maxIdle and returns them.
// Pruned sessions are closed: refreshes still in flight for them complete
// without reaching the sink.
func (r *Registry) Prune(maxIdle time.Duration) []*Session {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			evicted = append(evicted, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range evicted {
		s.close()
	}

	observability.SessionsActive.Set(float64(n))
	if len(evicted) > 0 {
		r.log.Info("idle sessions pruned", zap.Int("pruned", len(evicted)), zap.Int("active", n))
	}
	return evicted
}
