package main

import (
	"tokokas/models"
)

// Report aggregates the latest summary of each recorded day in a range.
// Historical figures come straight from the ledger and are never recomputed
// from raw records here.
type Report struct {
	Start         string               `json:"start"`
	End           string               `json:"end"`
	DaysRecorded  int                  `json:"days_recorded"`
	TotalRevenue  int64                `json:"total_revenue"`
	TotalTransfer int64                `json:"total_transfer"`
	TotalExpense  int64                `json:"total_expense"`
	Days          []models.DailySummary `json:"days"`
}

func buildReport(start, end string) (Report, error) {
	rows, err := st.SummariesRange(start, end)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Start: start, End: end, DaysRecorded: len(rows), Days: rows}
	for _, row := range rows {
		rep.TotalRevenue += row.ManualRevenue
		rep.TotalTransfer += row.TotalTransfer
		rep.TotalExpense += row.TotalExpense
	}
	return rep, nil
}
