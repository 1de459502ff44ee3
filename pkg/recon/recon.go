// Package recon computes the daily reconciliation summary from the record
// store. The formula is the domain's ground truth and must not be altered:
//
//	cash_sales     = cash_on_hand - capital + total_expense
//	manual_revenue = cash_sales + total_transfer
//	discrepancy    = manual_revenue - pos_total
package recon

import (
	"fmt"

	"tokokas/models"
)

// Status labels, checked in this order.
const (
	StatusNoPOS            = "POS not entered"
	StatusLargeDiscrepancy = "large discrepancy"
	StatusSmallDiscrepancy = "small discrepancy"
	StatusMatched          = "matched"
)

// Thresholds classify the absolute discrepancy. Passed in explicitly; the
// engine holds no mutable state.
type Thresholds struct {
	Small int64
	Large int64
}

// DefaultThresholds returns the stock 1000/5000 rupiah thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Small: 1000, Large: 5000}
}

// Reader is the slice of the record store the engine needs. "Latest" means
// highest time-of-day, ties broken by insertion id.
type Reader interface {
	LatestAmountByType(date, typ string) (int64, bool, error)
	SumAmountByType(date, typ string) (int64, error)
	CountByType(date, typ string) (int64, error)
}

// Summary carries every computed figure plus the status label. Each figure is
// independently retrievable; callers must never re-derive one from another.
type Summary struct {
	Date           string  `json:"date"`
	Capital        int64   `json:"capital"`
	CashOnHand     int64   `json:"cash_on_hand"`
	TotalTransfer  int64   `json:"total_transfer"`
	CountTransfer  int64   `json:"count_transfer"`
	TotalExpense   int64   `json:"total_expense"`
	CountExpense   int64   `json:"count_expense"`
	POSTotal       int64   `json:"pos_total"`
	CountPOS       int64   `json:"count_pos"`
	CashSales      int64   `json:"cash_sales"`
	ManualRevenue  int64   `json:"manual_revenue"`
	Discrepancy    int64   `json:"discrepancy"` // signed
	DiscrepancyAbs int64   `json:"discrepancy_abs"`
	DiscrepancyPct float64 `json:"discrepancy_pct"`
	Status         string  `json:"status"`
}

// Empty reports whether the day had no meaningful activity: neither an
// opening capital nor a POS total was entered. The scheduler skips snapshots
// for empty days.
func (s Summary) Empty() bool {
	return s.Capital == 0 && s.POSTotal == 0
}

// Calculate derives the summary for one date. It is a pure read over the
// store: calling it twice against the same records yields identical results.
func Calculate(r Reader, date string, th Thresholds) (Summary, error) {
	s := Summary{Date: date}

	var err error
	if s.Capital, _, err = r.LatestAmountByType(date, models.TypeCapital); err != nil {
		return s, fmt.Errorf("latest capital: %w", err)
	}
	if s.CashOnHand, _, err = r.LatestAmountByType(date, models.TypeCashOnHand); err != nil {
		return s, fmt.Errorf("latest cash on hand: %w", err)
	}
	if s.TotalExpense, err = r.SumAmountByType(date, models.TypeExpense); err != nil {
		return s, fmt.Errorf("sum expense: %w", err)
	}
	if s.TotalTransfer, err = r.SumAmountByType(date, models.TypeTransfer); err != nil {
		return s, fmt.Errorf("sum transfer: %w", err)
	}
	if s.POSTotal, _, err = r.LatestAmountByType(date, models.TypePOSTotal); err != nil {
		return s, fmt.Errorf("latest pos total: %w", err)
	}
	if s.CountTransfer, err = r.CountByType(date, models.TypeTransfer); err != nil {
		return s, fmt.Errorf("count transfer: %w", err)
	}
	if s.CountExpense, err = r.CountByType(date, models.TypeExpense); err != nil {
		return s, fmt.Errorf("count expense: %w", err)
	}
	if s.CountPOS, err = r.CountByType(date, models.TypePOSTotal); err != nil {
		return s, fmt.Errorf("count pos: %w", err)
	}

	s.CashSales = s.CashOnHand - s.Capital + s.TotalExpense
	s.ManualRevenue = s.CashSales + s.TotalTransfer
	s.Discrepancy = s.ManualRevenue - s.POSTotal
	s.DiscrepancyAbs = s.Discrepancy
	if s.DiscrepancyAbs < 0 {
		s.DiscrepancyAbs = -s.DiscrepancyAbs
	}
	if s.POSTotal > 0 {
		s.DiscrepancyPct = float64(s.DiscrepancyAbs) / float64(s.POSTotal) * 100
	}

	switch {
	case s.POSTotal == 0:
		s.Status = StatusNoPOS
	case s.DiscrepancyAbs > th.Large:
		s.Status = StatusLargeDiscrepancy
	case s.DiscrepancyAbs > th.Small:
		s.Status = StatusSmallDiscrepancy
	default:
		s.Status = StatusMatched
	}

	return s, nil
}
