package view

import (
	"sync"
	"testing"
)

func TestCoordinatorLatestTokenWins(t *testing.T) {
	orders := []struct {
		name  string
		first Token
	}{
		{name: "older completes last", first: 2},
		{name: "older completes first", first: 1},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			t1 := c.Begin()
			t2 := c.Begin()
			if t1 != 1 || t2 != 2 {
				t.Fatalf("tokens = %d, %d, want 1, 2", t1, t2)
			}

			var applied []Token
			complete := func(tok Token) State {
				return c.Complete(tok, func() { applied = append(applied, tok) })
			}

			outcomes := map[Token]State{}
			if tt.first == t2 {
				outcomes[t2] = complete(t2)
				outcomes[t1] = complete(t1)
			} else {
				outcomes[t1] = complete(t1)
				outcomes[t2] = complete(t2)
			}

			if outcomes[t1] != StateSuperseded {
				t.Errorf("token 1 outcome = %s, want superseded", outcomes[t1])
			}
			if outcomes[t2] != StateApplied {
				t.Errorf("token 2 outcome = %s, want applied", outcomes[t2])
			}
			if len(applied) != 1 || applied[0] != t2 {
				t.Errorf("applied = %v, want [2]", applied)
			}

			snap := c.Snapshot()
			if snap.State != StateApplied || snap.Applied != t2 || snap.Latest != t2 || snap.Superseded != 1 {
				t.Errorf("unexpected snapshot %+v", snap)
			}
		})
	}
}

func TestCoordinatorStates(t *testing.T) {
	c := NewCoordinator()
	if s := c.Snapshot().State; s != StateIdle {
		t.Fatalf("new coordinator state = %s", s)
	}

	tok := c.Begin()
	if s := c.Snapshot().State; s != StatePending {
		t.Fatalf("state after Begin = %s", s)
	}
	if !c.IsCurrent(tok) {
		t.Fatal("fresh token should be current")
	}

	next := c.Begin()
	if c.IsCurrent(tok) {
		t.Fatal("older token should not be current")
	}
	if got := c.Complete(tok, nil); got != StateSuperseded {
		t.Fatalf("stale Complete = %s", got)
	}
	// A stale completion leaves the pending refresh alone and is counted.
	snap := c.Snapshot()
	if snap.State != StatePending {
		t.Fatalf("state after stale completion = %s, want pending", snap.State)
	}
	if snap.Superseded != 1 || snap.Discarded != tok {
		t.Fatalf("superseded = %d, discarded = %d, want 1, %d", snap.Superseded, snap.Discarded, tok)
	}
	if got := c.Complete(next, nil); got != StateApplied {
		t.Fatalf("Complete = %s", got)
	}
}

func TestCoordinatorConcurrentBegin(t *testing.T) {
	c := NewCoordinator()

	var wg sync.WaitGroup
	seen := make(chan Token, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Begin()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[Token]bool)
	for tok := range seen {
		if unique[tok] {
			t.Fatalf("token %d issued twice", tok)
		}
		unique[tok] = true
	}
	if c.Snapshot().Latest != 100 {
		t.Fatalf("latest = %d, want 100", c.Snapshot().Latest)
	}
}
