package store

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"tokokas/models"
	"tokokas/pkg/recon"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addRecord(t *testing.T, s *Store, date, tm, typ string, amount int64) uint {
	t.Helper()
	id, err := s.AddRecord(&models.Record{
		Date: date, Time: tm, Type: typ, Amount: amount,
		Source: models.SourceManual, Username: "tester",
	})
	if err != nil {
		t.Fatalf("add record: %v", err)
	}
	return id
}

func TestLatestByTypeTieBreak(t *testing.T) {
	s := testStore(t)
	addRecord(t, s, "2025-12-05", "09:00:00", models.TypeCapital, 500000)
	// identical time-of-day: insertion order decides
	addRecord(t, s, "2025-12-05", "09:00:00", models.TypeCapital, 600000)

	amt, ok, err := s.LatestAmountByType("2025-12-05", models.TypeCapital)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if amt != 600000 {
		t.Fatalf("latest capital = %d, want 600000", amt)
	}
}

func TestSumAndCountByType(t *testing.T) {
	s := testStore(t)
	addRecord(t, s, "2025-12-05", "10:00:00", models.TypeExpense, 20000)
	addRecord(t, s, "2025-12-05", "11:00:00", models.TypeExpense, 30000)
	addRecord(t, s, "2025-12-06", "10:00:00", models.TypeExpense, 99999)

	sum, err := s.SumAmountByType("2025-12-05", models.TypeExpense)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 50000 {
		t.Fatalf("sum = %d, want 50000", sum)
	}
	n, err := s.CountByType("2025-12-05", models.TypeExpense)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestUpdateDeleteNotFound(t *testing.T) {
	s := testStore(t)
	amt := int64(1000)
	rec, _, err := s.UpdateRecord(9999, &amt, nil, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for unknown id")
	}
	rec, err = s.DeleteRecord(9999, "tester")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for unknown id")
	}
}

func TestUpdateNoChangeWritesNothing(t *testing.T) {
	s := testStore(t)
	id := addRecord(t, s, "2025-12-05", "10:00:00", models.TypeTransfer, 150000)

	sameAmt := int64(150000)
	rec, changed, err := s.UpdateRecord(id, &sameAmt, nil, "owner")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec == nil || changed {
		t.Fatalf("rec=%v changed=%v, want existing record with changed=false", rec, changed)
	}

	entries, err := s.AuditByDate("2025-12-05")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want only the ADD", len(entries))
	}
}

func TestAuditTrail(t *testing.T) {
	s := testStore(t)
	id := addRecord(t, s, "2025-12-05", "10:00:00", models.TypeTransfer, 150000)

	newAmt := int64(160000)
	if _, _, err := s.UpdateRecord(id, &newAmt, nil, "owner"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.DeleteRecord(id, "owner"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	entries, err := s.AuditByDate("2025-12-05")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
	if entries[0].Action != models.AuditAdd || entries[1].Action != models.AuditEdit || entries[2].Action != models.AuditDelete {
		t.Fatalf("unexpected audit actions: %+v", entries)
	}
	if entries[1].OldValue != "150000" || entries[1].NewValue != "160000" {
		t.Fatalf("edit entry old/new = %q/%q", entries[1].OldValue, entries[1].NewValue)
	}
}

func TestCapitalExists(t *testing.T) {
	s := testStore(t)
	ok, err := s.CapitalExists("2025-12-05")
	if err != nil || ok {
		t.Fatalf("expected no capital yet, ok=%v err=%v", ok, err)
	}
	addRecord(t, s, "2025-12-05", "08:00:00", models.TypeCapital, 500000)
	ok, err = s.CapitalExists("2025-12-05")
	if err != nil || !ok {
		t.Fatalf("expected capital present, ok=%v err=%v", ok, err)
	}
}

func saveSummary(t *testing.T, s *Store, date, state string) uint {
	t.Helper()
	sum, err := recon.Calculate(s, date, recon.DefaultThresholds())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	id, err := s.SaveSummary(date, state, sum, "")
	if err != nil {
		t.Fatalf("save summary: %v", err)
	}
	return id
}

func TestVersionMonotonicity(t *testing.T) {
	s := testStore(t)
	addRecord(t, s, "2025-12-05", "08:00:00", models.TypeCapital, 500000)
	addRecord(t, s, "2025-12-05", "21:00:00", models.TypePOSTotal, 700000)

	saveSummary(t, s, "2025-12-05", models.StateDraft)
	saveSummary(t, s, "2025-12-05", models.StateFinal)
	saveSummary(t, s, "2025-12-05", models.StateRevised)

	versions, err := s.SummaryVersions("2025-12-05")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("versions = %d, want 3", len(versions))
	}
	for i, want := range []int{3, 2, 1} {
		if versions[i].Version != want {
			t.Fatalf("versions[%d].Version = %d, want %d", i, versions[i].Version, want)
		}
	}

	latest, err := s.LatestSummary("2025-12-05")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Version != 3 || latest.State != models.StateRevised {
		t.Fatalf("latest = %+v, want version 3 REVISED", latest)
	}
}

func TestLatestSummaryMissing(t *testing.T) {
	s := testStore(t)
	latest, err := s.LatestSummary("2030-01-01")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil for unsummarized date, got %+v", latest)
	}
}

func TestSummariesRange(t *testing.T) {
	s := testStore(t)
	// 5-day window, 3 dates summarized, one of them twice
	for _, date := range []string{"2025-12-01", "2025-12-03", "2025-12-05"} {
		addRecord(t, s, date, "08:00:00", models.TypeCapital, 500000)
		addRecord(t, s, date, "21:00:00", models.TypePOSTotal, 700000)
		saveSummary(t, s, date, models.StateDraft)
	}
	saveSummary(t, s, "2025-12-03", models.StateFinal)

	rows, err := s.SummariesRange("2025-12-01", "2025-12-05")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("range rows = %d, want 3", len(rows))
	}
	wantDates := []string{"2025-12-01", "2025-12-03", "2025-12-05"}
	for i, row := range rows {
		if row.Date != wantDates[i] {
			t.Fatalf("rows[%d].Date = %s, want %s", i, row.Date, wantDates[i])
		}
	}
	if rows[1].Version != 2 || rows[1].State != models.StateFinal {
		t.Fatalf("2025-12-03 row = v%d %s, want max-version v2 FINAL", rows[1].Version, rows[1].State)
	}
}

func TestResetThenRevisedSnapshot(t *testing.T) {
	s := testStore(t)
	addRecord(t, s, "2025-12-05", "08:00:00", models.TypeCapital, 500000)
	addRecord(t, s, "2025-12-05", "21:00:00", models.TypePOSTotal, 700000)
	saveSummary(t, s, "2025-12-05", models.StateDraft)

	n, err := s.ResetDate("2025-12-05", "owner")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 2 {
		t.Fatalf("reset count = %d, want 2", n)
	}

	sum, err := recon.Calculate(s, "2025-12-05", recon.DefaultThresholds())
	if err != nil {
		t.Fatalf("calculate after reset: %v", err)
	}
	if !sum.Empty() || sum.Status != recon.StatusNoPOS {
		t.Fatalf("post-reset summary = %+v, want all-zero POS-not-entered", sum)
	}
	// saving the empty state must not raise, even repeated
	if _, err := s.SaveSummary("2025-12-05", models.StateRevised, sum, "reset"); err != nil {
		t.Fatalf("save revised: %v", err)
	}
	if _, err := s.SaveSummary("2025-12-05", models.StateRevised, sum, "reset again"); err != nil {
		t.Fatalf("save revised twice: %v", err)
	}
	latest, err := s.LatestSummary("2025-12-05")
	if err != nil || latest == nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != 3 {
		t.Fatalf("latest version = %d, want 3", latest.Version)
	}
}
