package models

import "time"

// Summary lifecycle states.
const (
	StateDraft   = "DRAFT"
	StateFinal   = "FINAL"
	StateRevised = "REVISED"
)

// DailySummary is one immutable snapshot of the reconciliation output for a
// date. Versions per date form a dense sequence starting at 1; the row with
// the highest version is authoritative, earlier rows are history.
type DailySummary struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	Date      string `gorm:"size:10;not null;index;uniqueIndex:idx_summaries_date_version"`
	Version   int    `gorm:"not null;uniqueIndex:idx_summaries_date_version"`
	State     string `gorm:"size:8;not null"`

	Capital        int64 `gorm:"not null;default:0"`
	CashOnHand     int64 `gorm:"not null;default:0"`
	TotalTransfer  int64 `gorm:"not null;default:0"`
	CountTransfer  int64 `gorm:"not null;default:0"`
	TotalExpense   int64 `gorm:"not null;default:0"`
	CountExpense   int64 `gorm:"not null;default:0"`
	POSTotal       int64 `gorm:"column:pos_total;not null;default:0"`
	CountPOS       int64 `gorm:"column:count_pos;not null;default:0"`
	CashSales      int64 `gorm:"not null;default:0"`
	ManualRevenue  int64 `gorm:"not null;default:0"`
	Discrepancy    int64 `gorm:"not null;default:0"` // signed
	DiscrepancyAbs int64 `gorm:"not null;default:0"`
	DiscrepancyPct float64 `gorm:"not null;default:0"`
	Status         string  `gorm:"size:32;not null;default:''"`

	Notes string `gorm:"size:255"`
}

// ValidState reports whether s is a known summary state.
func ValidState(s string) bool {
	return s == StateDraft || s == StateFinal || s == StateRevised
}
