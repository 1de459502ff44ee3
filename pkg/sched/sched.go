// Package sched runs the two daily snapshot jobs and the on-demand REVISED
// generation. DRAFT fires at 23:00 shop time for today; FINAL fires at 02:00
// for yesterday, after the overnight correction grace period.
package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tokokas/models"
	"tokokas/pkg/recon"
)

// Job ids exposed for manual triggering by operational tooling.
const (
	JobDailyDraft = "daily_draft"
	JobDailyFinal = "daily_final"
)

// CalcFunc computes the reconciliation summary for a date.
type CalcFunc func(date string) (recon.Summary, error)

// Ledger is the slice of the summary ledger the scheduler needs.
type Ledger interface {
	SaveSummary(date, state string, sum recon.Summary, notes string) (uint, error)
}

// JobInfo describes one scheduled job for the ops surface.
type JobInfo struct {
	ID      string    `json:"id"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
}

// Scheduler owns the cron loop. Jobs are re-entrant: running one twice for
// the same date appends another version and never touches prior versions.
type Scheduler struct {
	calc   CalcFunc
	ledger Ledger
	loc    *time.Location
	log    *logrus.Logger
	cron   *cron.Cron

	draftEntry cron.EntryID
	finalEntry cron.EntryID
}

const (
	draftSpec = "0 23 * * *"
	finalSpec = "0 2 * * *"
)

// New builds a scheduler bound to the given location. Start must be called
// for the cron loop; Generate* work without it, for manual triggers and
// correction-driven revisions.
func New(calc CalcFunc, ledger Ledger, loc *time.Location, log *logrus.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{calc: calc, ledger: ledger, loc: loc, log: log}
}

// Start registers and starts the two cron jobs. Job errors are logged and
// swallowed; the next scheduled run proceeds regardless.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		s.log.Warn("scheduler already running")
		return nil
	}
	c := cron.New(cron.WithLocation(s.loc))

	var err error
	s.draftEntry, err = c.AddFunc(draftSpec, func() {
		date := time.Now().In(s.loc).Format("2006-01-02")
		if _, _, err := s.GenerateDraft(date); err != nil {
			s.log.WithFields(logrus.Fields{"job": JobDailyDraft, "date": date}).WithError(err).Error("draft job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", JobDailyDraft, err)
	}
	s.finalEntry, err = c.AddFunc(finalSpec, func() {
		date := time.Now().In(s.loc).AddDate(0, 0, -1).Format("2006-01-02")
		if _, _, err := s.GenerateFinal(date); err != nil {
			s.log.WithFields(logrus.Fields{"job": JobDailyFinal, "date": date}).WithError(err).Error("final job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", JobDailyFinal, err)
	}

	c.Start()
	s.cron = c
	s.log.WithField("timezone", s.loc.String()).Info("scheduler started: DRAFT 23:00, FINAL 02:00 (previous day)")
	return nil
}

// Stop halts the cron loop without waiting for running jobs.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
		s.log.Info("scheduler stopped")
	}
}

// Jobs lists the scheduled jobs with their next run times. Empty before
// Start.
func (s *Scheduler) Jobs() []JobInfo {
	if s.cron == nil {
		return nil
	}
	return []JobInfo{
		{ID: JobDailyDraft, Spec: draftSpec, NextRun: s.cron.Entry(s.draftEntry).Next},
		{ID: JobDailyFinal, Spec: finalSpec, NextRun: s.cron.Entry(s.finalEntry).Next},
	}
}

// GenerateDraft snapshots the date as DRAFT. Days with no activity (no
// capital and no POS total) are skipped, not stored; saved reports whether a
// row was written.
func (s *Scheduler) GenerateDraft(date string) (id uint, saved bool, err error) {
	return s.snapshot(date, models.StateDraft, "auto-generated draft at 23:00")
}

// GenerateFinal snapshots the date as FINAL under the same non-empty guard.
func (s *Scheduler) GenerateFinal(date string) (id uint, saved bool, err error) {
	return s.snapshot(date, models.StateFinal, "auto-generated final at 02:00")
}

func (s *Scheduler) snapshot(date, state, notes string) (uint, bool, error) {
	sum, err := s.calc(date)
	if err != nil {
		return 0, false, fmt.Errorf("calculate %s: %w", date, err)
	}
	if sum.Empty() {
		s.log.WithFields(logrus.Fields{"date": date, "state": state}).Info("no activity, snapshot skipped")
		return 0, false, nil
	}
	id, err := s.ledger.SaveSummary(date, state, sum, notes)
	if err != nil {
		return 0, false, fmt.Errorf("save %s for %s: %w", state, date, err)
	}
	return id, true, nil
}

// GenerateRevised snapshots the date as REVISED unconditionally. It runs
// synchronously after a correction to an already-summarized date; notes
// explain the cause. An all-zero result is valid here (e.g. after a reset).
func (s *Scheduler) GenerateRevised(date, notes string) (uint, error) {
	sum, err := s.calc(date)
	if err != nil {
		return 0, fmt.Errorf("calculate %s: %w", date, err)
	}
	if notes == "" {
		notes = "revision after correction"
	}
	id, err := s.ledger.SaveSummary(date, models.StateRevised, sum, notes)
	if err != nil {
		return 0, fmt.Errorf("save REVISED for %s: %w", date, err)
	}
	return id, nil
}
