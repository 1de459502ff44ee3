// Package store is the persistence layer: the append-mostly record log, the
// versioned daily-summary ledger, and the audit trail, all in one local
// SQLite file.
package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tokokas/models"
)

// Store wraps the database handle. All methods open their own short
// transaction; no transaction spans a user interaction.
type Store struct {
	db  *gorm.DB
	log *logrus.Logger
}

// Open opens (creating if needed) the SQLite file at path and migrates the
// schema. WAL keeps readers unblocked during the scheduler's writes.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer at a time; SQLite serializes writes anyway and this
	// avoids SQLITE_BUSY churn from concurrent handler goroutines.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Migrate models individually so a failure on one doesn't block others.
	for _, m := range []interface{}{&models.Record{}, &models.DailySummary{}, &models.AuditEntry{}} {
		if err := db.AutoMigrate(m); err != nil {
			return nil, fmt.Errorf("migrate %T: %w", m, err)
		}
	}

	log.WithField("path", path).Info("database ready")
	return &Store{db: db, log: log}, nil
}

// DB exposes the underlying handle for integration tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying database file.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
