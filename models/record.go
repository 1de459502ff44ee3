package models

import "time"

// Record types. Amounts are stored non-negative for every type; sign semantics
// live in the reconciliation formula, not in storage.
const (
	TypeCapital    = "capital"
	TypeCashOnHand = "cash_on_hand"
	TypeTransfer   = "transfer"
	TypeExpense    = "expense"
	TypePOSTotal   = "pos_total"
)

// Record sources.
const (
	SourceManual   = "manual"
	SourceButton   = "button"
	SourceOCR      = "ocr"
	SourceBackfill = "backfill"
)

// Record is one cash-movement event for one calendar day.
type Record struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Date      string `gorm:"size:10;not null;index;index:idx_records_date_type"` // YYYY-MM-DD, shop-local day
	Time      string `gorm:"size:8;not null"`                                    // HH:MM:SS
	Type      string `gorm:"size:16;not null;index:idx_records_date_type"`
	Amount    int64  `gorm:"not null"` // whole rupiah, always >= 0
	Source    string `gorm:"size:16;not null"`
	Note      string `gorm:"size:255"`
	ChatID    int64
	UserID    int64
	Username  string `gorm:"size:64"`
	MessageID int64
	FileID    string `gorm:"size:128;index"` // attachment reference from the chat transport
}

// ValidType reports whether t is one of the known record types.
func ValidType(t string) bool {
	switch t {
	case TypeCapital, TypeCashOnHand, TypeTransfer, TypeExpense, TypePOSTotal:
		return true
	}
	return false
}

// ValidSource reports whether s is one of the known input channels.
func ValidSource(s string) bool {
	switch s {
	case SourceManual, SourceButton, SourceOCR, SourceBackfill:
		return true
	}
	return false
}
