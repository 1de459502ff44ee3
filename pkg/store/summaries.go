package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tokokas/models"
	"tokokas/pkg/recon"
)

// SaveSummary appends a new immutable summary version for the date. The
// version is max(existing)+1, starting at 1, allocated inside the insert
// transaction; the unique (date, version) index catches the losing side of a
// race and the insert is retried with a fresh version.
func (s *Store) SaveSummary(date, state string, sum recon.Summary, notes string) (uint, error) {
	var row models.DailySummary
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		row = models.DailySummary{
			Date:           date,
			State:          state,
			Capital:        sum.Capital,
			CashOnHand:     sum.CashOnHand,
			TotalTransfer:  sum.TotalTransfer,
			CountTransfer:  sum.CountTransfer,
			TotalExpense:   sum.TotalExpense,
			CountExpense:   sum.CountExpense,
			POSTotal:       sum.POSTotal,
			CountPOS:       sum.CountPOS,
			CashSales:      sum.CashSales,
			ManualRevenue:  sum.ManualRevenue,
			Discrepancy:    sum.Discrepancy,
			DiscrepancyAbs: sum.DiscrepancyAbs,
			DiscrepancyPct: sum.DiscrepancyPct,
			Status:         sum.Status,
			Notes:          notes,
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			var maxVersion int
			if err := tx.Model(&models.DailySummary{}).
				Where("date = ?", date).
				Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
				return err
			}
			row.Version = maxVersion + 1
			return tx.Create(&row).Error
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("save summary: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"date": date, "version": row.Version, "state": state, "status": sum.Status,
	}).Info("summary saved")
	return row.ID, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// LatestSummary returns the max-version row for the date, or (nil, nil) when
// the date has no summary.
func (s *Store) LatestSummary(date string) (*models.DailySummary, error) {
	var row models.DailySummary
	err := s.db.Where("date = ?", date).Order("version desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	return &row, nil
}

// SummaryVersions returns the full history for a date, newest version first.
func (s *Store) SummaryVersions(date string) ([]models.DailySummary, error) {
	var rows []models.DailySummary
	if err := s.db.Where("date = ?", date).Order("version desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("summary versions: %w", err)
	}
	return rows, nil
}

// SummariesRange returns exactly one row per date in [start, end]: the
// max-version row for each date that has any summary, ordered by date
// ascending. Dates without summaries are absent.
func (s *Store) SummariesRange(start, end string) ([]models.DailySummary, error) {
	var rows []models.DailySummary
	err := s.db.
		Joins(`INNER JOIN (
			SELECT date AS d, MAX(version) AS max_version
			FROM daily_summaries
			WHERE date BETWEEN ? AND ?
			GROUP BY date
		) latest ON daily_summaries.date = latest.d AND daily_summaries.version = latest.max_version`,
			start, end).
		Order("daily_summaries.date asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summaries range: %w", err)
	}
	return rows, nil
}

// HasSummary reports whether the date has at least one summary of any state.
// Corrections to such dates trigger a REVISED snapshot.
func (s *Store) HasSummary(date string) (bool, error) {
	var n int64
	if err := s.db.Model(&models.DailySummary{}).Where("date = ?", date).Count(&n).Error; err != nil {
		return false, fmt.Errorf("has summary: %w", err)
	}
	return n > 0, nil
}

// AuditByDate returns the audit trail for records of one date, oldest first.
func (s *Store) AuditByDate(date string) ([]models.AuditEntry, error) {
	var rows []models.AuditEntry
	if err := s.db.Where("entity_date = ?", date).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit by date: %w", err)
	}
	return rows, nil
}
