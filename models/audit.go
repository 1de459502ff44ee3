package models

import "time"

// Audit actions.
const (
	AuditAdd    = "ADD"
	AuditEdit   = "EDIT"
	AuditDelete = "DELETE"
)

// AuditEntry records one mutating action against the record store. The table
// is append-only; one entry per mutating call.
type AuditEntry struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	Action     string `gorm:"size:8;not null"`
	EntityType string `gorm:"size:16;not null"`
	EntityID   uint   `gorm:"index"`
	EntityDate string `gorm:"size:10;index"` // date of the affected record(s)
	Actor      string `gorm:"size:64"`
	Field      string `gorm:"size:64"`
	OldValue   string `gorm:"size:255"`
	NewValue   string `gorm:"size:255"`
	Notes      string `gorm:"size:255"`
}
