package view

import (
	"sync"
)

// Token identifies one refresh request of one view. Tokens are strictly
// increasing per view, starting at 1.
type Token uint64

// State is the refresh state of a view, and also the outcome of a single
// request. StateSuperseded is only ever an outcome: a view is idle, pending
// or applied.
type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateApplied    State = "applied"
	StateSuperseded State = "superseded"
)

// Coordinator guards one view against applying stale results. The latest
// issued token wins, whatever order the work completes in.
//
// A superseded completion does not change the view's state, since the view
// is still waiting for (or already showing) a newer result. It is counted
// instead, and Snapshot exposes the count and the last discarded token.
type Coordinator struct {
	mu         sync.Mutex
	latest     Token
	applied    Token
	state      State
	superseded uint64
	discarded  Token
}

// NewCoordinator returns an idle Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{state: StateIdle}
}

// Begin issues a new token and marks the view pending.
func (c *Coordinator) Begin() Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest++
	c.state = StatePending
	return c.latest
}

// Complete applies the result of token t if t is still the latest issued
// token, and returns StateApplied. apply runs under the coordinator lock, so
// an applied result can never be overwritten by an older one. When a newer
// token has been issued, apply is not called, the view keeps its state and
// Complete returns StateSuperseded.
func (c *Coordinator) Complete(t Token, apply func()) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t != c.latest {
		c.superseded++
		c.discarded = t
		return StateSuperseded
	}
	if apply != nil {
		apply()
	}
	c.applied = t
	c.state = StateApplied
	return StateApplied
}

// IsCurrent reports whether t is the latest issued token.
func (c *Coordinator) IsCurrent(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t == c.latest
}

// Snapshot describes a Coordinator at one instant.
type Snapshot struct {
	State      State  `json:"state"`
	Latest     Token  `json:"latest"`
	Applied    Token  `json:"applied"`
	Superseded uint64 `json:"superseded"`
	Discarded  Token  `json:"discarded,omitempty"`
}

// Snapshot returns the current state and tokens.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		Latest:     c.latest,
		Applied:    c.applied,
		Superseded: c.superseded,
		Discarded:  c.discarded,
	}
}
