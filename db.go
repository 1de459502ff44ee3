package main

import (
	"github.com/sirupsen/logrus"

	"tokokas/pkg/recon"
	"tokokas/pkg/sched"
	"tokokas/pkg/store"
)

// Shared service state, wired once in main.
var (
	log = logrus.New()
	cfg Config
	st  *store.Store
	sc  *sched.Scheduler
)

func initStore() error {
	var err error
	st, err = store.Open(cfg.DBPath, log)
	return err
}

// dailySummary runs the reconciliation engine against the current record set.
// It is the single calculation path shared by handlers and scheduler jobs.
func dailySummary(date string) (recon.Summary, error) {
	return recon.Calculate(st, date, cfg.Thresholds)
}
