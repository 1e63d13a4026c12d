package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs Exporter.Archive on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	exporter *Exporter
	farmID   string
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	last    *Record
}

// NewScheduler parses spec (five-field cron syntax or a descriptor such as
// "@daily") and registers the backup job.
func NewScheduler(exporter *Exporter, spec, farmID string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		exporter: exporter,
		farmID:   farmID,
		timeout:  5 * time.Minute,
		logger:   logger.Named("backup"),
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing the job. Jobs inherit ctx for cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("backup scheduler already running")
	}
	s.running = true
	s.ctx = ctx
	s.logger.Info("backup scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running job to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("backup scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("backup scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

// Next reports when the job fires next; zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Last returns the most recent successful archive.
func (s *Scheduler) Last() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Record{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce archives immediately and logs the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (Record, error) {
	started := time.Now()
	rec, err := s.exporter.Archive(ctx, s.farmID)
	if err != nil {
		s.logger.Error("scheduled archive failed", zap.String("farm_id", s.farmID), zap.Error(err))
		return Record{}, err
	}
	s.mu.Lock()
	s.last = &rec
	s.mu.Unlock()
	s.logger.Info("scheduled archive stored",
		zap.String("archive_id", rec.ID),
		zap.Int("trees", rec.Trees),
		zap.Duration("duration", time.Since(started)),
	)
	return rec, nil
}
