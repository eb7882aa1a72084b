package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/grid-profile-aggregation/internal/observability"
)

// CacheState is the lifecycle of a MonthlyProfileCache.
type CacheState string

const (
	CacheEmpty     CacheState = "empty"
	CacheComputing CacheState = "computing"
	CacheFrozen    CacheState = "frozen"
)

// CacheStatus reports the state and the build progress.
type CacheStatus struct {
	State     CacheState `json:"state"`
	Processed int64      `json:"processed"`
	Total     int        `json:"total"`
}

// MonthSet is the frozen result of the monthly build.
type MonthSet struct {
	months     []MonthProfile
	byKey      map[string]int
	missing    []string
	daysLoaded int
	daysFailed int
}

// Empty reports whether no month yielded any data.
func (s *MonthSet) Empty() bool { return len(s.months) == 0 }

// Months returns the month profiles sorted by month key.
func (s *MonthSet) Months() []MonthProfile { return s.months }

// Missing lists the calendar months with no aggregable data.
func (s *MonthSet) Missing() []string { return s.missing }

// DaysLoaded and DaysFailed count the attempted days by outcome.
func (s *MonthSet) DaysLoaded() int { return s.daysLoaded }
func (s *MonthSet) DaysFailed() int { return s.daysFailed }

// Lookup returns the profile of a month key, or ErrNoAggregableData.
func (s *MonthSet) Lookup(month string) (*MonthProfile, error) {
	i, ok := s.byKey[month]
	if !ok {
		return nil, fmt.Errorf("month %s: %w", month, ErrNoAggregableData)
	}
	return &s.months[i], nil
}

// Summaries returns every month without buckets.
func (s *MonthSet) Summaries() []MonthSummary {
	out := make([]MonthSummary, 0, len(s.months))
	for i := range s.months {
		out = append(out, s.months[i].Summary())
	}
	return out
}

// MonthlyProfileCache builds every month's profile once per process and
// shares the frozen result. Concurrent callers during the build wait on the
// same computation.
type MonthlyProfileCache struct {
	source      RecordSource
	calendar    *Calendar
	concurrency int
	log         *zap.Logger

	mu     sync.Mutex
	state  CacheState
	done   chan struct{}
	result *MonthSet

	processed atomic.Int64
}

// NewMonthlyProfileCache creates an empty cache. concurrency bounds the
// number of in-flight day fetches during the build.
func NewMonthlyProfileCache(source RecordSource, calendar *Calendar, concurrency int, log *zap.Logger) *MonthlyProfileCache {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &MonthlyProfileCache{
		source:      source,
		calendar:    calendar,
		concurrency: concurrency,
		log:         log,
		state:       CacheEmpty,
	}
}

// Ensure returns the frozen MonthSet, starting the build on first call.
// Cancelling ctx only stops this caller from waiting; the build itself
// carries on for the other callers.
func (c *MonthlyProfileCache) Ensure(ctx context.Context) (*MonthSet, error) {
	c.mu.Lock()
	switch c.state {
	case CacheFrozen:
		result := c.result
		c.mu.Unlock()
		return result, nil
	case CacheEmpty:
		c.state = CacheComputing
		c.done = make(chan struct{})
		go c.build(context.WithoutCancel(ctx))
	}
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status reports the cache state and how many days the build has attempted.
func (c *MonthlyProfileCache) Status() CacheStatus {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	return CacheStatus{
		State:     state,
		Processed: c.processed.Load(),
		Total:     len(c.calendar.days),
	}
}

func (c *MonthlyProfileCache) build(ctx context.Context) {
	start := time.Now()
	days := c.calendar.Days()
	c.log.Info("building monthly profiles",
		zap.Int("days", len(days)),
		zap.Int("concurrency", c.concurrency),
	)

	var (
		mu       sync.Mutex
		perMonth = make(map[string]*BucketAggregator)
		dayCount = make(map[string]int)
		failed   int
	)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, day := range days {
		day := day
		g.Go(func() error {
			records, err := c.fetch(ctx, day)
			c.processed.Add(1)
			if err != nil {
				observability.MonthlyDaysTotal.WithLabelValues("failed").Inc()
				c.log.Debug("skipping day in monthly build", zap.String("date", day), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			observability.MonthlyDaysTotal.WithLabelValues("loaded").Inc()

			month := MonthKey(day)
			mu.Lock()
			defer mu.Unlock()
			agg, ok := perMonth[month]
			if !ok {
				agg = NewBucketAggregator(MonthFields...)
				perMonth[month] = agg
			}
			agg.Add(records...)
			dayCount[month]++
			return nil
		})
	}
	_ = g.Wait()

	set := finalizeMonths(c.calendar.Months(), perMonth, dayCount)
	set.daysFailed = failed

	c.mu.Lock()
	c.result = set
	c.state = CacheFrozen
	close(c.done)
	c.mu.Unlock()

	elapsed := time.Since(start)
	observability.MonthlyBuildSeconds.Observe(elapsed.Seconds())
	if set.Empty() {
		c.log.Warn("monthly build found no aggregable day", zap.Duration("elapsed", elapsed))
		return
	}
	c.log.Info("monthly profiles frozen",
		zap.Int("months", len(set.months)),
		zap.Strings("missing_months", set.missing),
		zap.Int("days_loaded", set.daysLoaded),
		zap.Int("days_failed", set.daysFailed),
		zap.Duration("elapsed", elapsed),
	)
}

// fetch shields the build from a misbehaving source.
func (c *MonthlyProfileCache) fetch(ctx context.Context, day string) (records []RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: source panic: %v", ErrSourceUnavailable, r)
		}
	}()
	return c.source.FetchDay(ctx, day)
}

func finalizeMonths(calendarMonths []string, perMonth map[string]*BucketAggregator, dayCount map[string]int) *MonthSet {
	keys := make([]string, 0, len(perMonth))
	for k := range perMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := &MonthSet{byKey: make(map[string]int, len(keys))}
	for _, month := range keys {
		buckets := perMonth[month].Buckets()
		if len(buckets) == 0 {
			continue
		}
		set.byKey[month] = len(set.months)
		set.months = append(set.months, buildMonthProfile(month, dayCount[month], buckets))
		set.daysLoaded += dayCount[month]
	}
	for _, month := range calendarMonths {
		if _, ok := set.byKey[month]; !ok {
			set.missing = append(set.missing, month)
		}
	}
	return set
}

func buildMonthProfile(month string, days int, buckets []TimeBucket) MonthProfile {
	p := MonthProfile{
		Month:   month,
		Days:    days,
		Buckets: buckets,
	}
	if peak, ok := PeakBucket(buckets); ok {
		p.Peak = &peak
		p.PeakTime = peak.Time()
		p.PeakLoad = peak.Values[FieldLoad]
	}
	p.MeanLoad, _ = FieldMean(buckets, FieldLoad)
	p.MeanProduction, _ = FieldMean(buckets, FieldProduction)
	return p
}
