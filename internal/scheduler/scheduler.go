package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
	"github.com/i474232898/grid-profile-aggregation/internal/view"
)

// Warmer starts the monthly build ahead of the first month refresh.
type Warmer interface {
	Ensure(ctx context.Context) (*grid.MonthSet, error)
}

// Evictor forgets the applied results of pruned views.
type Evictor interface {
	Delete(views ...string)
}

// Options configures the background jobs.
type Options struct {
	WarmupOnStart bool
	SessionIdle   time.Duration
	PruneInterval time.Duration
}

// Scheduler runs the monthly warm-up and the idle session pruning.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	sessions  *view.Registry
	evictor   Evictor
	opts      Options
	log       *zap.Logger
}

// New creates a new Scheduler.
func New(warmer Warmer, sessions *view.Registry, evictor Evictor, opts Options, log *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		warmer:    warmer,
		sessions:  sessions,
		evictor:   evictor,
		opts:      opts,
		log:       log,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.opts.WarmupOnStart {
		_, err := s.scheduler.Every(1).Minute().LimitRunsTo(1).Do(s.warmup)
		if err != nil {
			return err
		}
	}

	if s.opts.SessionIdle > 0 {
		interval := s.opts.PruneInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		_, err := s.scheduler.Every(interval).WaitForSchedule().Do(s.prune)
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) warmup() {
	s.log.Info("scheduler: warming monthly profiles")
	set, err := s.warmer.Ensure(context.Background())
	if err != nil {
		s.log.Warn("scheduler: monthly warm-up failed", zap.Error(err))
		return
	}
	s.log.Info("scheduler: monthly warm-up done",
		zap.Int("months", len(set.Months())),
		zap.Int("missing", len(set.Missing())),
	)
}

func (s *Scheduler) prune() {
	for _, sess := range s.sessions.Prune(s.opts.SessionIdle) {
		s.evictor.Delete(sess.ViewKeys()...)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
