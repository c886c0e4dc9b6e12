package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
)

type stubAuditor struct {
	report *core.AuditReport
	err    error
	calls  int
}

func (a *stubAuditor) AuditLedger(ctx context.Context) (*core.AuditReport, error) {
	a.calls++
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	return a.report, a.err
}

type stubArchiver struct {
	days []time.Time
	err  error
}

func (a *stubArchiver) ArchiveDay(ctx context.Context, day time.Time) (string, error) {
	a.days = append(a.days, day)
	return "ledger/2026-10-18/x.json", a.err
}

func TestStartRegistersJobs(t *testing.T) {
	cfg := config.SchedulerConfig{AuditCron: "0 * * * *", ArchiveCron: "30 23 * * *", Timezone: "UTC"}

	s, err := NewScheduler(cfg, &stubAuditor{}, &stubArchiver{}, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()
	if s.Jobs() != 2 {
		t.Errorf("Expected 2 jobs, got %d", s.Jobs())
	}
}

func TestArchiveJobSkippedWithoutArchiver(t *testing.T) {
	cfg := config.SchedulerConfig{AuditCron: "0 * * * *", ArchiveCron: "30 23 * * *"}

	s, err := NewScheduler(cfg, &stubAuditor{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()
	if s.Jobs() != 1 {
		t.Errorf("Expected 1 job, got %d", s.Jobs())
	}
}

func TestInvalidSchedule(t *testing.T) {
	if _, err := NewScheduler(config.SchedulerConfig{Timezone: "Mars/Olympus"}, nil, nil, nil, nil); err == nil {
		t.Error("Expected an error for an unknown time zone")
	}

	s, err := NewScheduler(config.SchedulerConfig{AuditCron: "every hour"}, &stubAuditor{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	if err := s.Start(); err == nil {
		s.Stop()
		t.Error("Expected an error for an invalid cron spec")
	}
}

func TestRunAuditPublishesViolations(t *testing.T) {
	m := metrics.New()
	auditor := &stubAuditor{report: &core.AuditReport{Violations: []string{"stock 1: total 10.00 != own 4.00 + farmer 5.00"}}}

	s, err := NewScheduler(config.SchedulerConfig{}, auditor, nil, m, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	s.runAudit()

	if auditor.calls != 1 {
		t.Fatalf("Expected 1 audit call, got %d", auditor.calls)
	}
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "grain_ledger_audit_violations" {
			found = true
			if v := fam.GetMetric()[0].GetGauge().GetValue(); v != 1 {
				t.Errorf("Expected 1 violation, got %v", v)
			}
		}
	}
	if !found {
		t.Error("Expected the audit gauge to be exported")
	}
}

func TestRunArchiveUsesSchedulerClock(t *testing.T) {
	archiver := &stubArchiver{}
	s, err := NewScheduler(config.SchedulerConfig{}, nil, archiver, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	day := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return day }

	s.runArchive()
	archiver.err = errors.New("bucket unavailable")
	s.runArchive()

	if len(archiver.days) != 2 || !archiver.days[0].Equal(day) {
		t.Errorf("Expected two archive runs for %v, got %v", day, archiver.days)
	}
}
