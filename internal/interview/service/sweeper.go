package service

import (
	"context"
	"time"

	"arete/internal/interview/model"
	"arete/internal/interview/repository"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultSweepSchedule = "@every 1m"

// SweepConfig controls session eviction.
type SweepConfig struct {
	// Schedule is a cron spec; descriptors such as "@every 30s" are accepted.
	Schedule       string        `yaml:"schedule"`
	FinishedTTL    time.Duration `yaml:"finishedTTL"`
	AbandonedAfter time.Duration `yaml:"abandonedAfter"`
}

// Sweeper periodically moves expired sessions out of memory. A session is archived
// with its transcript before it leaves; a failed archive keeps it in memory so a
// later sweep retries.
type Sweeper struct {
	svc    *InterviewService
	policy repository.EvictPolicy
	spec   string
	cron   *cron.Cron
}

// NewSweeper creates a sweeper for svc.
func NewSweeper(svc *InterviewService, cfg SweepConfig) *Sweeper {
	spec := cfg.Schedule
	if spec == "" {
		spec = defaultSweepSchedule
	}
	return &Sweeper{
		svc:    svc,
		policy: repository.EvictPolicy{FinishedTTL: cfg.FinishedTTL, AbandonedAfter: cfg.AbandonedAfter},
		spec:   spec,
		cron:   cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return appErr.Wrapf(err, appErr.InvalidValue, "invalid sweep schedule %q", s.spec)
	}
	s.cron.Start()
	logger.Info(context.Background(), "session sweeper started", zap.String("schedule", s.spec))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep evicts expired sessions once and returns how many left memory.
func (s *Sweeper) Sweep(ctx context.Context) int {
	return s.svc.store.Evict(ctx, s.policy,
		func(st *model.SessionState) error {
			sctx := logger.WithSession(ctx, st.SessionID)
			if err := s.svc.archiveSession(sctx, st, s.svc.events.Transcript(st.SessionID)); err != nil {
				logger.Warn(sctx, "archive evicted session failed", zap.Error(err))
				return err
			}
			return nil
		},
		func(st *model.SessionState) {
			sctx := logger.WithSession(ctx, st.SessionID)
			s.svc.events.Clear(st.SessionID)
			logger.Debug(sctx, "session evicted", zap.Bool("complete", st.InterviewComplete))
		})
}
