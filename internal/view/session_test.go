package view

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegistryCreateGet(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	s := r.Create()

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID, got, err)
	}
	if _, err := r.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	// Each view owns its own coordinator.
	if s.Coordinator(KindConsumption) == s.Coordinator(KindFlow) {
		t.Fatal("views must not share a coordinator")
	}
	s.Coordinator(KindConsumption).Begin()
	if s.Coordinator(KindFlow).Snapshot().Latest != 0 {
		t.Fatal("a consumption refresh must not issue a flow token")
	}

	if got := s.ViewKey(KindFlow); got != s.ID+"/flow" {
		t.Fatalf("ViewKey = %q", got)
	}
	if len(s.ViewKeys()) != 2 {
		t.Fatalf("ViewKeys = %v", s.ViewKeys())
	}
}

func TestRegistryPrune(t *testing.T) {
	now := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	r := NewRegistry(zap.NewNop())
	r.now = func() time.Time { return now }

	idle := r.Create()
	active := r.Create()

	now = now.Add(20 * time.Minute)
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(15 * time.Minute)

	evicted := r.Prune(30 * time.Minute)
	if len(evicted) != 1 || evicted[0] != idle {
		t.Fatalf("evicted = %v, want only the idle session", evicted)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if _, err := r.Get(idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("pruned session still reachable: %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("flow"); !ok || k != KindFlow {
		t.Fatalf("ParseKind(flow) = %q, %v", k, ok)
	}
	if _, ok := ParseKind("prices"); ok {
		t.Fatal("unknown view accepted")
	}
}
