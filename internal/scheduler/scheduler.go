package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
)

// Auditor runs the ledger invariant audit.
type Auditor interface {
	AuditLedger(ctx context.Context) (*core.AuditReport, error)
}

// Archiver exports one day of the journal and returns the object key.
type Archiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (string, error)
}

// Scheduler manages the periodic ledger jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	auditor  Auditor
	archiver Archiver
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. archiver may be nil when no archive bucket
// is configured; the archive job is then skipped.
func NewScheduler(cfg config.SchedulerConfig, auditor Auditor, archiver Archiver, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		cfg:      cfg,
		auditor:  auditor,
		archiver: archiver,
		metrics:  m,
		now:      func() time.Time { return time.Now().In(loc) },
		logger:   logger.Named("scheduler"),
	}, nil
}

// Start registers the configured jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.cfg.AuditCron != "" && s.auditor != nil {
		if _, err := s.cron.AddFunc(s.cfg.AuditCron, s.runAudit); err != nil {
			return fmt.Errorf("failed to schedule ledger audit: %w", err)
		}
	}
	if s.cfg.ArchiveCron != "" && s.archiver != nil {
		if _, err := s.cron.AddFunc(s.cfg.ArchiveCron, s.runArchive); err != nil {
			return fmt.Errorf("failed to schedule journal archive: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.auditor.AuditLedger(ctx)
	s.metrics.ObserveJob("audit", err)
	if err != nil {
		s.logger.Error("ledger audit failed", zap.Error(err))
		return
	}
	s.metrics.SetAuditViolations(len(report.Violations))
	if !report.OK() {
		s.logger.Warn("ledger audit found violations", zap.Strings("violations", report.Violations))
	}
}

func (s *Scheduler) runArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	key, err := s.archiver.ArchiveDay(ctx, s.now())
	s.metrics.ObserveJob("archive", err)
	if err != nil {
		s.logger.Error("failed to archive journal", zap.Error(err))
		return
	}
	s.logger.Info("journal archived", zap.String("key", key))
}
