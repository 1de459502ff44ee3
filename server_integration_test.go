package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tokokas/pkg/recon"
	"tokokas/pkg/sched"
	"tokokas/pkg/store"
)

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log.SetOutput(io.Discard)

	cfg = Config{
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		Loc:        time.UTC,
		Thresholds: recon.DefaultThresholds(),
		OCRTimeout: time.Second,
		Port:       "0",
	}
	var err error
	st, err = store.Open(cfg.DBPath, log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sc = sched.New(dailySummary, st, cfg.Loc, log)

	r := gin.New()
	setupRoutes(r)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestRecordToSummaryFlow(t *testing.T) {
	r := setupTestServer(t)
	const day = "2025-12-05"

	// 1. Enter the day's figures; amounts arrive as free text.
	for _, rec := range []map[string]interface{}{
		{"date": day, "time": "08:00", "type": "capital", "amount": "500k", "username": "owner"},
		{"date": day, "time": "21:00", "type": "cash_on_hand", "amount": "1.200.000"},
		{"date": day, "time": "12:00", "type": "expense", "amount": "50k", "note": "beli gas"},
		{"date": day, "time": "14:00", "type": "transfer", "amount": "300rb"},
		{"date": day, "time": "21:30", "type": "pos_total", "amount": "1jt"},
	} {
		resp := performRequest(r, http.MethodPost, "/records", rec)
		if resp.Code != http.StatusOK {
			t.Fatalf("create record %v: status=%d body=%s", rec, resp.Code, resp.Body.String())
		}
	}

	// 2. Live summary follows the fixed formula.
	resp := performRequest(r, http.MethodGet, "/summary?date="+day, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("summary: status=%d body=%s", resp.Code, resp.Body.String())
	}
	sum := decodeBody(t, resp)
	if got := sum["cash_sales"].(float64); got != 750000 {
		t.Fatalf("cash_sales = %v, want 750000", got)
	}
	if got := sum["manual_revenue"].(float64); got != 1050000 {
		t.Fatalf("manual_revenue = %v, want 1050000", got)
	}
	if got := sum["status"].(string); got != recon.StatusLargeDiscrepancy {
		t.Fatalf("status = %q, want %q", got, recon.StatusLargeDiscrepancy)
	}

	// 3. Manual finalize persists version 1.
	resp = performRequest(r, http.MethodPost, "/summaries", map[string]interface{}{
		"date": day, "state": "FINAL", "notes": "manual finalization",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("finalize: status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 4. Correcting a record on a summarized date appends a REVISED version.
	recs := performRequest(r, http.MethodGet, "/records?date="+day, nil)
	var list []map[string]interface{}
	if err := json.Unmarshal(recs.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	firstID := int(list[0]["ID"].(float64))
	resp = performRequest(r, http.MethodPatch, fmt.Sprintf("/records/%d", firstID), map[string]interface{}{
		"amount": "600k", "username": "owner",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update: status=%d body=%s", resp.Code, resp.Body.String())
	}

	resp = performRequest(r, http.MethodGet, "/summaries/versions?date="+day, nil)
	var versions []map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want FINAL + auto REVISED", len(versions))
	}
	if versions[0]["State"].(string) != "REVISED" {
		t.Fatalf("latest state = %v, want REVISED", versions[0]["State"])
	}

	// A no-op PATCH (same amount) must not append another version.
	resp = performRequest(r, http.MethodPatch, fmt.Sprintf("/records/%d", firstID), map[string]interface{}{
		"amount": "600k", "username": "owner",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("no-op update: status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/summaries/versions?date="+day, nil)
	var afterNoop []map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &afterNoop); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(afterNoop) != 2 {
		t.Fatalf("versions after no-op update = %d, want 2", len(afterNoop))
	}

	// 5. Latest resolves to the max version.
	resp = performRequest(r, http.MethodGet, "/summaries/latest?date="+day, nil)
	latest := decodeBody(t, resp)
	if latest["Version"].(float64) != 2 {
		t.Fatalf("latest version = %v, want 2", latest["Version"])
	}

	// 6. Audit trail covers the add and the edit.
	resp = performRequest(r, http.MethodGet, "/audit?date="+day, nil)
	var audit []map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit) != 6 { // 5 adds + 1 edit
		t.Fatalf("audit entries = %d, want 6", len(audit))
	}
}

func TestInvalidAmountRejectedBeforeWrite(t *testing.T) {
	r := setupTestServer(t)

	resp := performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": "2025-12-05", "type": "expense", "amount": "abc",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}

	recs := performRequest(r, http.MethodGet, "/records?date=2025-12-05", nil)
	if recs.Body.String() != "[]" && recs.Body.String() != "null" {
		t.Fatalf("record written despite invalid amount: %s", recs.Body.String())
	}
}

func TestCapitalDoubleEntryGate(t *testing.T) {
	r := setupTestServer(t)
	const day = "2025-12-05"

	resp := performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": day, "type": "capital", "amount": "500k",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("first capital: status=%d", resp.Code)
	}

	resp = performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": day, "type": "capital", "amount": "600k",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("second capital: status=%d, want 409", resp.Code)
	}

	resp = performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": day, "type": "capital", "amount": "600k", "confirm": true,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("confirmed capital: status=%d, want 200", resp.Code)
	}
}

func TestDraftJobSkipsEmptyDate(t *testing.T) {
	r := setupTestServer(t)

	resp := performRequest(r, http.MethodPost, "/jobs/daily_draft", map[string]interface{}{"date": "2025-12-05"})
	if resp.Code != http.StatusOK {
		t.Fatalf("draft job: status=%d", resp.Code)
	}
	if saved := decodeBody(t, resp)["saved"].(bool); saved {
		t.Fatal("draft must skip a date with no activity")
	}

	performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": "2025-12-05", "type": "pos_total", "amount": "700k",
	})
	resp = performRequest(r, http.MethodPost, "/jobs/daily_draft", map[string]interface{}{"date": "2025-12-05"})
	if saved := decodeBody(t, resp)["saved"].(bool); !saved {
		t.Fatal("draft must snapshot a date with activity")
	}
}

func TestResetTriggersRevision(t *testing.T) {
	r := setupTestServer(t)
	const day = "2025-12-05"

	performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": day, "type": "capital", "amount": "500k",
	})
	performRequest(r, http.MethodPost, "/records", map[string]interface{}{
		"date": day, "type": "pos_total", "amount": "700k",
	})
	performRequest(r, http.MethodPost, "/summaries", map[string]interface{}{"date": day, "state": "DRAFT"})

	resp := performRequest(r, http.MethodDelete, "/records?date="+day+"&username=owner", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("reset: status=%d", resp.Code)
	}
	if n := decodeBody(t, resp)["deleted"].(float64); n != 2 {
		t.Fatalf("deleted = %v, want 2", n)
	}

	resp = performRequest(r, http.MethodGet, "/summaries/latest?date="+day, nil)
	latest := decodeBody(t, resp)
	if latest["State"].(string) != "REVISED" || latest["Status"].(string) != recon.StatusNoPOS {
		t.Fatalf("latest after reset = %v, want all-zero REVISED", latest)
	}
}

func TestWeeklyReportAggregates(t *testing.T) {
	r := setupTestServer(t)

	for _, day := range []string{"2025-12-01", "2025-12-03"} {
		performRequest(r, http.MethodPost, "/records", map[string]interface{}{
			"date": day, "time": "08:00", "type": "capital", "amount": "500k",
		})
		performRequest(r, http.MethodPost, "/records", map[string]interface{}{
			"date": day, "time": "21:00", "type": "cash_on_hand", "amount": "1.200.000",
		})
		performRequest(r, http.MethodPost, "/records", map[string]interface{}{
			"date": day, "time": "21:30", "type": "pos_total", "amount": "700k",
		})
		performRequest(r, http.MethodPost, "/summaries", map[string]interface{}{"date": day, "state": "FINAL"})
	}

	resp := performRequest(r, http.MethodGet, "/reports/weekly?end=2025-12-05", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("report: status=%d body=%s", resp.Code, resp.Body.String())
	}
	rep := decodeBody(t, resp)
	if rep["days_recorded"].(float64) != 2 {
		t.Fatalf("days_recorded = %v, want 2", rep["days_recorded"])
	}
	if rep["total_revenue"].(float64) != 1400000 {
		t.Fatalf("total_revenue = %v, want 1400000", rep["total_revenue"])
	}
}
