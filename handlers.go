package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tokokas/models"
	"tokokas/pkg/amount"
	"tokokas/pkg/ocrclient"
	"tokokas/pkg/sched"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/records", createRecordHandler)
	r.GET("/records", listRecordsHandler)
	r.GET("/records/recent", recentRecordsHandler)
	r.GET("/records/:id", getRecordHandler)
	r.PATCH("/records/:id", updateRecordHandler)
	r.DELETE("/records/:id", deleteRecordHandler)
	r.DELETE("/records", resetDateHandler)

	r.GET("/summary", liveSummaryHandler)
	r.POST("/summaries", saveSummaryHandler)
	r.GET("/summaries/latest", latestSummaryHandler)
	r.GET("/summaries/versions", summaryVersionsHandler)
	r.GET("/summaries", summariesRangeHandler)

	r.GET("/reports/weekly", weeklyReportHandler)
	r.GET("/reports/monthly", monthlyReportHandler)

	r.POST("/jobs/daily_draft", triggerDraftHandler)
	r.POST("/jobs/daily_final", triggerFinalHandler)
	r.GET("/jobs", listJobsHandler)

	r.GET("/audit", auditHandler)
	r.POST("/ocr/analyze", ocrAnalyzeHandler)
}

var controlRE = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// sanitizeNote trims, caps and strips control characters from free text.
// The cap counts runes, not bytes, so multi-byte text is never cut mid-rune.
func sanitizeNote(text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > 200 {
		text = string(runes[:200])
	}
	return controlRE.ReplaceAllString(text, "")
}

func today() string {
	return time.Now().In(cfg.Loc).Format("2006-01-02")
}

func nowClock() string {
	return time.Now().In(cfg.Loc).Format("15:04:05")
}

// validDate accepts YYYY-MM-DD only.
func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func validClock(s string) (string, bool) {
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t.Format("15:04:05"), true
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04:05"), true
	}
	return "", false
}

// dateQuery pulls a required date query param, defaulting to today when
// allowEmpty is set.
func dateQuery(c *gin.Context, allowEmpty bool) (string, bool) {
	date := c.Query("date")
	if date == "" && allowEmpty {
		return today(), true
	}
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

// maybeRevise takes a REVISED snapshot after a correction when the date
// already has at least one summary. The correction itself already succeeded,
// so failures here are logged, not returned to the caller.
func maybeRevise(date, cause string) {
	has, err := st.HasSummary(date)
	if err != nil {
		log.WithError(err).Error("revision check failed")
		return
	}
	if !has {
		return
	}
	if _, err := sc.GenerateRevised(date, cause); err != nil {
		log.WithError(err).Error("revised snapshot failed")
	}
}

// createRecordHandler appends one record. The amount arrives as free text and
// is parsed here; nothing is written when parsing or validation fails.
func createRecordHandler(c *gin.Context) {
	var req struct {
		Date      string `json:"date"`
		Time      string `json:"time"`
		Type      string `json:"type" binding:"required"`
		Amount    string `json:"amount" binding:"required"`
		Note      string `json:"note"`
		Source    string `json:"source"`
		ChatID    int64  `json:"chat_id"`
		UserID    int64  `json:"user_id"`
		Username  string `json:"username"`
		MessageID int64  `json:"message_id"`
		FileID    string `json:"file_id"`
		Confirm   bool   `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown record type", "saved": false})
		return
	}
	if req.Source == "" {
		req.Source = models.SourceManual
	}
	if !models.ValidSource(req.Source) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown record source", "saved": false})
		return
	}
	if req.Date == "" {
		req.Date = today()
	} else if !validDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "saved": false})
		return
	}
	if req.Time == "" {
		req.Time = nowClock()
	} else {
		tm, ok := validClock(req.Time)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "time must be HH:MM or HH:MM:SS", "saved": false})
			return
		}
		req.Time = tm
	}

	amt, err := amount.Parse(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format", "saved": false})
		return
	}

	// Second opening float on one day is almost always a typo; make the
	// caller confirm it explicitly.
	if req.Type == models.TypeCapital && !req.Confirm {
		exists, err := st.CapitalExists(req.Date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store query failed"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{
				"error":          "capital already recorded for this date",
				"capital_exists": true,
				"saved":          false,
			})
			return
		}
	}

	rec := models.Record{
		Date:      req.Date,
		Time:      req.Time,
		Type:      req.Type,
		Amount:    amt,
		Source:    req.Source,
		Note:      sanitizeNote(req.Note),
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		Username:  req.Username,
		MessageID: req.MessageID,
		FileID:    req.FileID,
	}
	id, err := st.AddRecord(&rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	maybeRevise(req.Date, fmt.Sprintf("record #%d added (%s %s)", id, req.Type, amount.FormatRupiah(amt)))
	c.JSON(http.StatusOK, gin.H{"id": id, "amount": amt, "date": req.Date, "saved": true})
}

func listRecordsHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	recs, err := st.RecordsByDate(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func recentRecordsHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	recs, err := st.RecentRecords(date, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func recordIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be numeric"})
		return 0, false
	}
	return uint(id), true
}

func getRecordHandler(c *gin.Context) {
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	rec, err := st.RecordByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func updateRecordHandler(c *gin.Context) {
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Amount   *string `json:"amount"`
		Note     *string `json:"note"`
		Username string  `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Amount == nil && req.Note == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	prev, err := st.RecordByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if prev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	var newAmount *int64
	if req.Amount != nil {
		amt, err := amount.Parse(*req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format", "saved": false})
			return
		}
		newAmount = &amt
	}
	var newNote *string
	if req.Note != nil {
		n := sanitizeNote(*req.Note)
		newNote = &n
	}

	rec, changed, err := st.UpdateRecord(id, newAmount, newNote, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if !changed {
		// values already match: nothing was written, so no revision either
		c.JSON(http.StatusOK, rec)
		return
	}

	cause := fmt.Sprintf("record #%d edited", id)
	if newAmount != nil && *newAmount != prev.Amount {
		cause = fmt.Sprintf("record #%d amount changed %s→%s",
			id, amount.FormatRupiah(prev.Amount), amount.FormatRupiah(*newAmount))
	}
	maybeRevise(prev.Date, cause)
	c.JSON(http.StatusOK, rec)
}

func deleteRecordHandler(c *gin.Context) {
	id, ok := recordIDParam(c)
	if !ok {
		return
	}
	actor := c.Query("username")
	rec, err := st.DeleteRecord(id, actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	maybeRevise(rec.Date, fmt.Sprintf("record #%d deleted (%s %s)",
		id, rec.Type, amount.FormatRupiah(rec.Amount)))
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

func resetDateHandler(c *gin.Context) {
	date, ok := dateQuery(c, false)
	if !ok {
		return
	}
	count, err := st.ResetDate(date, c.Query("username"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	if count > 0 {
		maybeRevise(date, fmt.Sprintf("date reset, %d records removed", count))
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count, "date": date})
}

// liveSummaryHandler runs the engine without persisting anything.
func liveSummaryHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	sum, err := dailySummary(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calculation failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// saveSummaryHandler computes and persists a snapshot in the requested state
// (manual finalize and friends).
func saveSummaryHandler(c *gin.Context) {
	var req struct {
		Date  string `json:"date"`
		State string `json:"state" binding:"required"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidState(req.State) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be DRAFT, FINAL or REVISED"})
		return
	}
	if req.Date == "" {
		req.Date = today()
	} else if !validDate(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	sum, err := dailySummary(req.Date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "calculation failed"})
		return
	}
	id, err := st.SaveSummary(req.Date, req.State, sum, sanitizeNote(req.Notes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "date": req.Date, "state": req.State, "status": sum.Status})
}

func latestSummaryHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	row, err := st.LatestSummary(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for date"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func summaryVersionsHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	rows, err := st.SummaryVersions(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func summariesRangeHandler(c *gin.Context) {
	start, end := c.Query("start"), c.Query("end")
	if !validDate(start) || !validDate(end) || start > end {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must be YYYY-MM-DD with start <= end"})
		return
	}
	rows, err := st.SummariesRange(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func weeklyReportHandler(c *gin.Context) {
	end := c.DefaultQuery("end", today())
	if !validDate(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	endT, _ := time.Parse("2006-01-02", end)
	start := endT.AddDate(0, 0, -6).Format("2006-01-02")

	rep, err := buildReport(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func monthlyReportHandler(c *gin.Context) {
	month := c.DefaultQuery("month", time.Now().In(cfg.Loc).Format("2006-01"))
	t, err := time.Parse("2006-01", month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	start := t.Format("2006-01-02")
	end := t.AddDate(0, 1, -1).Format("2006-01-02")

	rep, err := buildReport(start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func triggerDraftHandler(c *gin.Context) {
	triggerJobHandler(c, sched.JobDailyDraft)
}

func triggerFinalHandler(c *gin.Context) {
	triggerJobHandler(c, sched.JobDailyFinal)
}

// triggerJobHandler runs one scheduler job on demand. Without a date, DRAFT
// targets today and FINAL targets yesterday, same as the timed runs.
func triggerJobHandler(c *gin.Context, job string) {
	var req struct {
		Date string `json:"date"`
	}
	_ = c.ShouldBindJSON(&req)

	date := req.Date
	if date == "" {
		if job == sched.JobDailyFinal {
			date = time.Now().In(cfg.Loc).AddDate(0, 0, -1).Format("2006-01-02")
		} else {
			date = today()
		}
	} else if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	var (
		id    uint
		saved bool
		err   error
	)
	if job == sched.JobDailyFinal {
		id, saved, err = sc.GenerateFinal(date)
	} else {
		id, saved, err = sc.GenerateDraft(date)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "date": date, "saved": saved, "id": id})
}

func listJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, sc.Jobs())
}

func auditHandler(c *gin.Context) {
	date, ok := dateQuery(c, true)
	if !ok {
		return
	}
	entries, err := st.AuditByDate(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ocrAnalyzeHandler ships an uploaded receipt image to the external analyzer
// and returns its judgment. It never writes a record: the transport decides
// what to do with a usable judgment, and an unusable one or any analyzer
// failure means "ask the user to type it in".
func ocrAnalyzeHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > 5*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 5MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file unreadable"})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file unreadable"})
		return
	}

	prepared, err := ocrclient.PrepareImage(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not a decodable image"})
		return
	}

	client := ocrclient.New(cfg.OCRURL, cfg.OCRTimeout)
	ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.OCRTimeout)
	defer cancel()

	res, err := client.Analyze(ctx, prepared)
	if err != nil {
		reason := "analyzer unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "analyzer timed out"
		}
		log.WithError(err).Warn("ocr analysis failed")
		c.JSON(http.StatusOK, gin.H{"usable": false, "manual_entry_required": true, "reason": reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usable":                res.Usable(),
		"manual_entry_required": !res.Usable(),
		"is_transfer":           res.IsTransfer,
		"amount":                res.Amount,
		"confidence":            res.Confidence,
		"reason":                res.Reason,
	})
}
