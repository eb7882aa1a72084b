package view

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
	"github.com/i474232898/grid-profile-aggregation/internal/observability"
)

// StateNoData is the outcome of an applied refresh that renders the "no
// data" message instead of a profile.
const StateNoData State = "no_data"

// Modes of a refresh.
const (
	ModeDay   = "day"
	ModeMonth = "month"
)

// Outcome is what a refresh returns to its caller.
type Outcome struct {
	Token   Token  `json:"token"`
	Status  State  `json:"status"`
	View    Kind   `json:"view"`
	Mode    string `json:"mode"`
	Key     string `json:"key"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// Controller runs day and month refreshes for the views of a session and
// hands the surviving results to the sink.
type Controller struct {
	calendar *grid.Calendar
	days     *grid.DayProfileBuilder
	flows    grid.RecordSource
	monthly  *grid.MonthlyProfileCache
	sink     grid.ProfileSink
	log      *zap.Logger
}

// NewController wires the aggregation core to a sink. flows is the
// per-date flow resource used by the flow view in day mode.
func NewController(
	calendar *grid.Calendar,
	days *grid.DayProfileBuilder,
	flows grid.RecordSource,
	monthly *grid.MonthlyProfileCache,
	sink grid.ProfileSink,
	log *zap.Logger,
) *Controller {
	return &Controller{
		calendar: calendar,
		days:     days,
		flows:    flows,
		monthly:  monthly,
		sink:     sink,
		log:      log,
	}
}

// RefreshDay refreshes view kind of session s with date dateKey. Invalid
// input fails before any token is issued. A returned error is
// grid.ErrOutOfRange, ErrUnknownView or a context error; missing data is an
// Outcome. A refresh that completes after its session was pruned is reported
// as superseded and never reaches the sink.
func (c *Controller) RefreshDay(ctx context.Context, s *Session, kind Kind, dateKey string) (Outcome, error) {
	if !c.calendar.Contains(dateKey) {
		return Outcome{}, fmt.Errorf("date %s: %w", dateKey, grid.ErrOutOfRange)
	}

	coord := s.Coordinator(kind)
	if coord == nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownView, kind)
	}
	out := Outcome{Token: coord.Begin(), View: kind, Mode: ModeDay, Key: dateKey}
	viewKey := s.ViewKey(kind)

	var apply func()
	switch kind {
	case KindConsumption:
		p, err := c.days.Build(ctx, dateKey)
		if err != nil {
			if !grid.IsNoData(err) {
				return out, err
			}
			apply = c.noData(&out, viewKey, fmt.Sprintf("no data for %s", dateKey))
			break
		}
		out.Result = p
		apply = func() { c.sink.OnDay(viewKey, p) }

	case KindFlow:
		records, err := c.flows.FetchDay(ctx, dateKey)
		if err != nil && ctx.Err() != nil {
			return out, ctx.Err()
		}
		var (
			summary *grid.FlowSummary
			ok      bool
		)
		if err == nil {
			summary, ok = grid.FlowFromRecords(dateKey, records)
		}
		if !ok {
			apply = c.noData(&out, viewKey, fmt.Sprintf("no flow data for %s", dateKey))
			break
		}
		out.Result = summary
		apply = func() { c.sink.OnFlow(viewKey, summary) }

	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownView, kind)
	}

	return c.finish(s, coord, out, apply), nil
}

// RefreshMonth refreshes view kind of session s with the month at index of
// the calendar's months. The first month refresh triggers the monthly build
// and waits for it.
func (c *Controller) RefreshMonth(ctx context.Context, s *Session, kind Kind, index int) (Outcome, error) {
	month, err := c.calendar.MonthAt(index)
	if err != nil {
		return Outcome{}, err
	}

	coord := s.Coordinator(kind)
	if coord == nil {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownView, kind)
	}
	out := Outcome{Token: coord.Begin(), View: kind, Mode: ModeMonth, Key: month}
	viewKey := s.ViewKey(kind)

	set, err := c.monthly.Ensure(ctx)
	if err != nil {
		return out, err
	}

	var apply func()
	profile, err := set.Lookup(month)
	switch {
	case err != nil:
		msg := fmt.Sprintf("no aggregable data for month %s", month)
		if set.Empty() {
			msg = "monthly profiles unavailable: no loadable day in the calendar range"
		}
		apply = c.noData(&out, viewKey, msg)

	case kind == KindConsumption:
		out.Result = profile
		apply = func() { c.sink.OnMonth(viewKey, profile) }

	case kind == KindFlow:
		summary, ok := grid.FlowFromMonth(profile)
		if !ok {
			apply = c.noData(&out, viewKey, fmt.Sprintf("no flow data for month %s", month))
			break
		}
		out.Result = summary
		apply = func() { c.sink.OnFlow(viewKey, summary) }

	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownView, kind)
	}

	return c.finish(s, coord, out, apply), nil
}

func (c *Controller) noData(out *Outcome, viewKey, msg string) func() {
	out.Message = msg
	mode, key := out.Mode, out.Key
	return func() { c.sink.OnNoData(viewKey, mode, key, msg) }
}

func (c *Controller) finish(s *Session, coord *Coordinator, out Outcome, apply func()) Outcome {
	noData := out.Message != ""

	applied := false
	state := coord.Complete(out.Token, func() { applied = s.guard(apply) })

	if state == StateSuperseded || !applied {
		c.log.Debug("refresh discarded",
			zap.String("session", s.ID),
			zap.Bool("session_closed", !applied && state != StateSuperseded),
			zap.String("view", string(out.View)),
			zap.String("mode", out.Mode),
			zap.String("key", out.Key),
			zap.Uint64("token", uint64(out.Token)),
		)
		out.Status = StateSuperseded
		out.Result = nil
		out.Message = ""
	} else if noData {
		out.Status = StateNoData
	} else {
		out.Status = StateApplied
	}

	observability.ViewRefreshTotal.WithLabelValues(string(out.View), out.Mode, string(out.Status)).Inc()
	return out
}
