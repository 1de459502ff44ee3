package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tokokas/models"
)

// AddRecord appends one cash-movement record and its audit entry in a single
// transaction. Validation (non-negative amount, known type) is the caller's
// job; the store never sees malformed data.
func (s *Store) AddRecord(rec *models.Record) (uint, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Create(&models.AuditEntry{
			Action:     models.AuditAdd,
			EntityType: "record",
			EntityID:   rec.ID,
			EntityDate: rec.Date,
			Actor:      rec.Username,
			Field:      "amount",
			NewValue:   strconv.FormatInt(rec.Amount, 10),
			Notes:      rec.Note,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("add record: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"id": rec.ID, "date": rec.Date, "type": rec.Type, "amount": rec.Amount, "source": rec.Source,
	}).Info("record added")
	return rec.ID, nil
}

// RecordsByDate returns every record for the date ordered by time-of-day,
// ties broken by insertion id.
func (s *Store) RecordsByDate(date string) ([]models.Record, error) {
	var recs []models.Record
	if err := s.db.Where("date = ?", date).Order("time asc, id asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("records by date: %w", err)
	}
	return recs, nil
}

// RecentRecords returns the latest-by-insertion records for a date, newest
// first, capped at limit.
func (s *Store) RecentRecords(date string, limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []models.Record
	if err := s.db.Where("date = ?", date).Order("id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return recs, nil
}

// RecordByID fetches one record; (nil, nil) when it does not exist.
func (s *Store) RecordByID(id uint) (*models.Record, error) {
	var rec models.Record
	err := s.db.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record by id: %w", err)
	}
	return &rec, nil
}

// UpdateRecord changes the amount and/or note of one record. It returns the
// record and whether anything actually changed, or (nil, false, nil) when the
// id does not exist. A call that changes nothing writes no update and no
// audit entry; changed lets the caller skip its revision snapshot too. One
// audit entry is written per changing call, listing every changed field.
func (s *Store) UpdateRecord(id uint, amount *int64, note *string, actor string) (*models.Record, bool, error) {
	var rec models.Record
	var changed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			return err
		}
		var fields, oldVals, newVals []string
		updates := map[string]interface{}{}
		if amount != nil && *amount != rec.Amount {
			fields = append(fields, "amount")
			oldVals = append(oldVals, strconv.FormatInt(rec.Amount, 10))
			newVals = append(newVals, strconv.FormatInt(*amount, 10))
			updates["amount"] = *amount
		}
		if note != nil && *note != rec.Note {
			fields = append(fields, "note")
			oldVals = append(oldVals, rec.Note)
			newVals = append(newVals, *note)
			updates["note"] = *note
		}
		if len(updates) == 0 {
			return nil
		}
		changed = true
		if err := tx.Model(&rec).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&models.AuditEntry{
			Action:     models.AuditEdit,
			EntityType: "record",
			EntityID:   rec.ID,
			EntityDate: rec.Date,
			Actor:      actor,
			Field:      strings.Join(fields, ","),
			OldValue:   strings.Join(oldVals, ","),
			NewValue:   strings.Join(newVals, ","),
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update record: %w", err)
	}
	if changed {
		s.log.WithFields(logrus.Fields{"id": id, "actor": actor}).Info("record updated")
	}
	return &rec, changed, nil
}

// DeleteRecord removes one record; false when the id does not exist. The
// deleted state is preserved in the audit entry.
func (s *Store) DeleteRecord(id uint, actor string) (*models.Record, error) {
	var rec models.Record
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Record{}, id).Error; err != nil {
			return err
		}
		return tx.Create(&models.AuditEntry{
			Action:     models.AuditDelete,
			EntityType: "record",
			EntityID:   rec.ID,
			EntityDate: rec.Date,
			Actor:      actor,
			Field:      "amount",
			OldValue:   strconv.FormatInt(rec.Amount, 10),
			Notes:      rec.Note,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}
	s.log.WithFields(logrus.Fields{"id": id, "actor": actor}).Info("record deleted")
	return &rec, nil
}

// ResetDate deletes every record for one date atomically and returns the
// count removed. A single audit entry covers the batch.
func (s *Store) ResetDate(date, actor string) (int64, error) {
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("date = ?", date).Delete(&models.Record{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		if deleted == 0 {
			return nil
		}
		return tx.Create(&models.AuditEntry{
			Action:     models.AuditDelete,
			EntityType: "record",
			EntityDate: date,
			Actor:      actor,
			Field:      "date",
			OldValue:   date,
			Notes:      fmt.Sprintf("reset: %d records removed", deleted),
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("reset date: %w", err)
	}
	if deleted > 0 {
		s.log.WithFields(logrus.Fields{"date": date, "count": deleted, "actor": actor}).Info("date reset")
	}
	return deleted, nil
}

// CapitalExists reports whether the date already has a capital record. Used
// to warn before a second opening-float entry on the same day.
func (s *Store) CapitalExists(date string) (bool, error) {
	var n int64
	if err := s.db.Model(&models.Record{}).
		Where("date = ? AND type = ?", date, models.TypeCapital).Count(&n).Error; err != nil {
		return false, fmt.Errorf("capital exists: %w", err)
	}
	return n > 0, nil
}

// HasRecordWithFile reports whether any record references the attachment.
// The backfill importer uses it to dedup rescanned images.
func (s *Store) HasRecordWithFile(fileID string) (bool, error) {
	var n int64
	if err := s.db.Model(&models.Record{}).Where("file_id = ?", fileID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("record with file: %w", err)
	}
	return n > 0, nil
}

// LatestAmountByType implements recon.Reader: the amount of the last record
// of the type for the date, ordered by time then insertion id.
func (s *Store) LatestAmountByType(date, typ string) (int64, bool, error) {
	var rec models.Record
	err := s.db.Where("date = ? AND type = ?", date, typ).
		Order("time desc, id desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest by type: %w", err)
	}
	return rec.Amount, true, nil
}

// SumAmountByType implements recon.Reader.
func (s *Store) SumAmountByType(date, typ string) (int64, error) {
	var sum int64
	err := s.db.Model(&models.Record{}).
		Where("date = ? AND type = ?", date, typ).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("sum by type: %w", err)
	}
	return sum, nil
}

// CountByType implements recon.Reader.
func (s *Store) CountByType(date, typ string) (int64, error) {
	var n int64
	if err := s.db.Model(&models.Record{}).
		Where("date = ? AND type = ?", date, typ).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count by type: %w", err)
	}
	return n, nil
}
