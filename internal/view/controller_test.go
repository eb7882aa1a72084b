package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
)

type stubSource struct {
	days map[string][]grid.RawRecord
	gate chan struct{}
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchDay(ctx context.Context, dateKey string) ([]grid.RawRecord, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	records, ok := s.days[dateKey]
	if !ok {
		return nil, fmt.Errorf("stub %s: %w", dateKey, grid.ErrSourceUnavailable)
	}
	return records, nil
}

type sinkEvent struct {
	view string
	kind string
	key  string
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (r *recordingSink) add(e sinkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) OnDay(view string, p *grid.DayProfile) {
	r.add(sinkEvent{view, "day", p.Date})
}

func (r *recordingSink) OnMonth(view string, p *grid.MonthProfile) {
	r.add(sinkEvent{view, "month", p.Month})
}

func (r *recordingSink) OnFlow(view string, s *grid.FlowSummary) {
	r.add(sinkEvent{view, "flow-" + s.Mode, s.Key})
}

func (r *recordingSink) OnNoData(view, mode, key, message string) {
	r.add(sinkEvent{view, "nodata-" + mode, key})
}

func (r *recordingSink) all() []sinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkEvent(nil), r.events...)
}

func point(t string, load, prod float64) grid.RawRecord {
	return grid.RawRecord{Time: t, Values: grid.Values{grid.FieldLoad: load, grid.FieldProduction: prod}}
}

type fixture struct {
	ctrl     *Controller
	sessions *Registry
	sink     *recordingSink
	monthly  *stubSource
	session  *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal, err := grid.NewCalendar("2025-01-30", "2025-03-02")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	days := &stubSource{days: map[string][]grid.RawRecord{
		"2025-01-30": {point("08:00", 100, 50)},
		"2025-03-02": {point("08:00", 100, 50), point("08:15", 120, 40)},
	}}
	flows := &stubSource{days: map[string][]grid.RawRecord{
		"2025-03-02": {{Time: "08:00", Values: grid.Values{grid.FieldExchUK: -10, grid.FieldCO2Rate: 25}}},
	}}
	// The monthly build reads a separate source so tests can hold it back.
	monthlySrc := &stubSource{days: map[string][]grid.RawRecord{
		"2025-01-30": {{Time: "08:00", Values: grid.Values{
			grid.FieldLoad: 100, grid.FieldProduction: 50, grid.FieldExchES: 30,
		}}},
		"2025-03-01": {point("08:00", 90, 80)},
	}}

	log := zap.NewNop()
	sink := &recordingSink{}
	ctrl := NewController(
		cal,
		grid.NewDayProfileBuilder(days, cal, log),
		flows,
		grid.NewMonthlyProfileCache(monthlySrc, cal, 4, log),
		sink,
		log,
	)
	sessions := NewRegistry(log)
	return &fixture{
		ctrl:     ctrl,
		sessions: sessions,
		sink:     sink,
		monthly:  monthlySrc,
		session:  sessions.Create(),
	}
}

func TestRefreshDayApplied(t *testing.T) {
	f := newFixture(t)

	out, err := f.ctrl.RefreshDay(context.Background(), f.session, KindConsumption, "2025-03-02")
	if err != nil {
		t.Fatalf("RefreshDay: %v", err)
	}
	if out.Status != StateApplied || out.Token != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	p, ok := out.Result.(*grid.DayProfile)
	if !ok || p.PeakTime != "08:15" {
		t.Fatalf("unexpected result %#v", out.Result)
	}

	flow, err := f.ctrl.RefreshDay(context.Background(), f.session, KindFlow, "2025-03-02")
	if err != nil {
		t.Fatalf("RefreshDay flow: %v", err)
	}
	s, ok := flow.Result.(*grid.FlowSummary)
	if flow.Status != StateApplied || !ok || s.Direction != grid.DirectionExport {
		t.Fatalf("unexpected flow outcome %+v", flow)
	}
	// Views keep separate token counters.
	if flow.Token != 1 {
		t.Fatalf("flow token = %d, want 1", flow.Token)
	}

	want := []sinkEvent{
		{f.session.ViewKey(KindConsumption), "day", "2025-03-02"},
		{f.session.ViewKey(KindFlow), "flow-day", "2025-03-02"},
	}
	if got := f.sink.all(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("sink events = %v, want %v", got, want)
	}
}

func TestRefreshDayNoData(t *testing.T) {
	f := newFixture(t)

	for _, kind := range Kinds {
		out, err := f.ctrl.RefreshDay(context.Background(), f.session, kind, "2025-02-10")
		if err != nil {
			t.Fatalf("RefreshDay(%s): %v", kind, err)
		}
		if out.Status != StateNoData || out.Message == "" || out.Result != nil {
			t.Fatalf("RefreshDay(%s) unexpected outcome %+v", kind, out)
		}
	}
	if n := len(f.sink.all()); n != 2 {
		t.Fatalf("expected 2 no-data events, got %d", n)
	}
}

func TestRefreshRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.RefreshDay(context.Background(), f.session, KindConsumption, "2025-06-01"); !errors.Is(err, grid.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := f.ctrl.RefreshMonth(context.Background(), f.session, KindConsumption, 3); !errors.Is(err, grid.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if latest := f.session.Coordinator(KindConsumption).Snapshot().Latest; latest != 0 {
		t.Fatalf("invalid input must not issue a token, latest = %d", latest)
	}
}

func TestRefreshMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jan, err := f.ctrl.RefreshMonth(ctx, f.session, KindConsumption, 0)
	if err != nil {
		t.Fatalf("RefreshMonth: %v", err)
	}
	if p, ok := jan.Result.(*grid.MonthProfile); jan.Status != StateApplied || !ok || p.Month != "2025-01" {
		t.Fatalf("unexpected January outcome %+v", jan)
	}

	feb, err := f.ctrl.RefreshMonth(ctx, f.session, KindConsumption, 1)
	if err != nil {
		t.Fatalf("RefreshMonth: %v", err)
	}
	if feb.Status != StateNoData || feb.Key != "2025-02" {
		t.Fatalf("unexpected February outcome %+v", feb)
	}

	flow, err := f.ctrl.RefreshMonth(ctx, f.session, KindFlow, 0)
	if err != nil {
		t.Fatalf("RefreshMonth flow: %v", err)
	}
	if s, ok := flow.Result.(*grid.FlowSummary); !ok || s.Values[grid.FieldExchES] != 30 {
		t.Fatalf("unexpected January flow %+v", flow)
	}

	// March has consumption data but no exchange at all.
	mar, err := f.ctrl.RefreshMonth(ctx, f.session, KindFlow, 2)
	if err != nil {
		t.Fatalf("RefreshMonth flow: %v", err)
	}
	if mar.Status != StateNoData {
		t.Fatalf("unexpected March flow %+v", mar)
	}
}

func TestSlowMonthDoesNotOverwriteNewerDay(t *testing.T) {
	f := newFixture(t)
	f.monthly.gate = make(chan struct{})
	coord := f.session.Coordinator(KindConsumption)

	type result struct {
		out Outcome
		err error
	}
	monthDone := make(chan result, 1)
	go func() {
		out, err := f.ctrl.RefreshMonth(context.Background(), f.session, KindConsumption, 0)
		monthDone <- result{out, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for coord.Snapshot().Latest != 1 {
		if time.Now().After(deadline) {
			t.Fatal("month refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	day, err := f.ctrl.RefreshDay(context.Background(), f.session, KindConsumption, "2025-03-02")
	if err != nil {
		t.Fatalf("RefreshDay: %v", err)
	}
	if day.Status != StateApplied || day.Token != 2 {
		t.Fatalf("unexpected day outcome %+v", day)
	}

	close(f.monthly.gate)
	month := <-monthDone
	if month.err != nil {
		t.Fatalf("RefreshMonth: %v", month.err)
	}
	if month.out.Status != StateSuperseded || month.out.Result != nil {
		t.Fatalf("stale month should be superseded, got %+v", month.out)
	}

	events := f.sink.all()
	if len(events) != 1 || events[0].kind != "day" {
		t.Fatalf("only the day should reach the sink, got %v", events)
	}
	if snap := coord.Snapshot(); snap.Applied != 2 || snap.State != StateApplied {
		t.Fatalf("unexpected coordinator state %+v", snap)
	}
}

func TestRefreshMonthCancelled(t *testing.T) {
	f := newFixture(t)
	f.monthly.gate = make(chan struct{})
	defer close(f.monthly.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.ctrl.RefreshMonth(ctx, f.session, KindConsumption, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if n := len(f.sink.all()); n != 0 {
		t.Fatalf("cancelled refresh reached the sink %d times", n)
	}
}

func TestRefreshUnknownView(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.RefreshDay(context.Background(), f.session, Kind("prices"), "2025-03-02"); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("RefreshDay: expected ErrUnknownView, got %v", err)
	}
	if _, err := f.ctrl.RefreshMonth(context.Background(), f.session, Kind("prices"), 0); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("RefreshMonth: expected ErrUnknownView, got %v", err)
	}
	if n := len(f.sink.all()); n != 0 {
		t.Fatalf("unknown view reached the sink %d times", n)
	}
}

func TestPrunedSessionRefreshSkipsSink(t *testing.T) {
	f := newFixture(t)
	f.monthly.gate = make(chan struct{})
	coord := f.session.Coordinator(KindConsumption)

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.ctrl.RefreshMonth(context.Background(), f.session, KindConsumption, 0)
		done <- result{out, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for coord.Snapshot().Latest != 1 {
		if time.Now().After(deadline) {
			t.Fatal("month refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	f.sessions.now = func() time.Time { return time.Now().Add(time.Hour) }
	if evicted := f.sessions.Prune(time.Minute); len(evicted) != 1 || evicted[0] != f.session {
		t.Fatalf("expected the session to be pruned, got %v", evicted)
	}
	if !f.session.Closed() {
		t.Fatal("pruned session should be closed")
	}

	close(f.monthly.gate)
	res := <-done
	if res.err != nil {
		t.Fatalf("RefreshMonth: %v", res.err)
	}
	if res.out.Status != StateSuperseded || res.out.Result != nil {
		t.Fatalf("refresh of a pruned session should be discarded, got %+v", res.out)
	}
	if n := len(f.sink.all()); n != 0 {
		t.Fatalf("pruned session reached the sink %d times", n)
	}
}
