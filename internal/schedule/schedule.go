// Package schedule runs scrape sessions once a day at a fixed wall-clock time.
package schedule

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/philgeps-cli/internal/config"
	"github.com/sells-group/philgeps-cli/internal/model"
)

// NextRun returns the first hour:minute in loc that is strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Job runs one scrape session of kind.
type Job func(ctx context.Context, kind model.RecordKind) model.RunSummary

// Scheduler fires Job for each configured kind at the daily run time.
type Scheduler struct {
	hour    int
	minute  int
	loc     *time.Location
	kinds   []model.RecordKind
	job     Job
	stopped func() bool

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
	log   *zap.Logger
}

// New validates cfg and builds a Scheduler. stopped is consulted before
// every firing; while it reports true the firing is skipped.
func New(cfg config.ScheduleConfig, job Job, stopped func() bool) (*Scheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, eris.Errorf("schedule: invalid time %02d:%02d", cfg.Hour, cfg.Minute)
	}
	if job == nil {
		return nil, eris.New("schedule: job is required")
	}

	kinds := make([]model.RecordKind, 0, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		kind, ok := model.ParseKind(k)
		if !ok {
			return nil, eris.Errorf("schedule: unknown record kind %q", k)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = []model.RecordKind{model.KindBidNotice}
	}
	if stopped == nil {
		stopped = func() bool { return false }
	}

	return &Scheduler{
		hour:    cfg.Hour,
		minute:  cfg.Minute,
		loc:     cfg.Location(),
		kinds:   kinds,
		job:     job,
		stopped: stopped,
		now:     time.Now,
		after:   time.After,
		log:     zap.L().With(zap.String("component", "scheduler")),
	}, nil
}

// Next returns the next firing time after now.
func (s *Scheduler) Next() time.Time {
	return NextRun(s.now(), s.hour, s.minute, s.loc)
}

// Run blocks until ctx is done, firing the job at every scheduled time.
// Kinds run one after another so sessions never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.Next()
		s.log.Info("next scheduled scrape", zap.Time("at", next))

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-s.after(next.Sub(s.now())):
		}

		s.fire(ctx)
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	for _, kind := range s.kinds {
		if ctx.Err() != nil {
			return
		}
		if s.stopped() {
			s.log.Info("scheduled scrape skipped, stop requested", zap.String("kind", string(kind)))
			continue
		}

		sum := s.job(ctx, kind)
		s.log.Info("scheduled scrape finished",
			zap.String("kind", string(kind)),
			zap.Bool("success", sum.Success),
			zap.Int("new_records", sum.NewRecords),
			zap.Int("errors", sum.Errors),
		)
	}
}
