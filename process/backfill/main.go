// Command backfill imports receipt images from a directory into the record
// store as transfer records with source "backfill". Each image is judged by
// the external analyzer; unusable judgments are skipped, never guessed.
// Watch mode keeps importing as new files appear.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tokokas/models"
	"tokokas/pkg/amount"
	"tokokas/pkg/ocrclient"
	"tokokas/pkg/recon"
	"tokokas/pkg/sched"
	"tokokas/pkg/store"
)

var (
	verbose bool
	dryRun  bool
)

type importer struct {
	st     *store.Store
	sc     *sched.Scheduler
	client *ocrclient.Client
	loc    *time.Location
	th     recon.Thresholds
}

func main() {
	dirFlag := flag.String("dir", "receipts", "directory to scan for receipt images")
	watch := flag.Bool("watch", false, "watch directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	flag.BoolVar(&dryRun, "dry-run", false, "analyze and list, write nothing")
	flag.BoolVar(&verbose, "verbose", false, "verbose per-file logging")
	flag.Parse()

	_ = godotenv.Load()

	ocrURL := os.Getenv("OCR_URL")
	if ocrURL == "" {
		log.Fatal("OCR_URL must be set; the importer cannot judge images itself")
	}
	tzName := os.Getenv("TZ_NAME")
	if tzName == "" {
		tzName = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatalf("load timezone %q: %v", tzName, err)
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "tokokas.db"
	}

	logger := logrus.New()
	imp := &importer{
		client: ocrclient.New(ocrURL, 20*time.Second),
		loc:    loc,
		th:     recon.DefaultThresholds(),
	}
	if !dryRun {
		imp.st, err = store.Open(dbPath, logger)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		calc := func(date string) (recon.Summary, error) {
			return recon.Calculate(imp.st, date, imp.th)
		}
		// not started: only used for correction-driven REVISED snapshots
		imp.sc = sched.New(calc, imp.st, loc, logger)
	}

	files := listImageFiles(*dirFlag)
	log.Printf("scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	imp.runWorkerPool(*dirFlag, files, effectiveWorkers(*workers), nil)

	if *watch {
		if err := imp.watchDirectory(*dirFlag, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

func (imp *importer) runWorkerPool(dir string, initial []string, workers int, extra <-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				imp.processFile(dir, name)
			}
		}()
	}
	go func() {
		for _, f := range initial {
			fileCh <- f
		}
		if extra != nil {
			for n := range extra {
				fileCh <- n
			}
		}
		close(fileCh)
	}()
	if extra == nil {
		wg.Wait()
	} else {
		select {} // watch mode blocks until Ctrl+C
	}
}

func (imp *importer) watchDirectory(dir string, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Printf("watching %s ...", dir)

	fileCh := make(chan string, 256)
	go func() {
		// debounce: files are announced once they stop growing
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					close(fileCh)
					return
				}
				if ev.Op&fsnotify.Create == fsnotify.Create {
					name := filepath.Base(ev.Name)
					if isSupportedExt(name) {
						pending[name] = time.Now()
					}
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond {
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					close(fileCh)
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	imp.runWorkerPool(dir, nil, workers, fileCh)
	return nil
}

// processFile judges one image and appends a backfill transfer record when
// the judgment is usable. The file name doubles as the attachment reference
// for dedup across rescans.
func (imp *importer) processFile(dir, name string) {
	path := filepath.Join(dir, name)

	if !dryRun {
		seen, err := imp.st.HasRecordWithFile(name)
		if err != nil {
			log.Printf("ERROR dedup check %s: %v", name, err)
			return
		}
		if seen {
			logV("SKIP already imported %s", name)
			return
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("ERROR read %s: %v", name, err)
		return
	}
	prepared, err := ocrclient.PrepareImage(raw)
	if err != nil {
		log.Printf("SKIP undecodable %s: %v", name, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := imp.client.Analyze(ctx, prepared)
	if err != nil {
		log.Printf("ERROR analyze %s: %v", name, err)
		return
	}
	if !res.Usable() {
		logV("SKIP not a transfer %s: %s", name, res.Reason)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Printf("ERROR stat %s: %v", name, err)
		return
	}
	when := info.ModTime().In(imp.loc)
	date := when.Format("2006-01-02")

	if dryRun {
		log.Printf("DRY %s: %s on %s (conf %.2f)", name, amount.FormatRupiah(res.Amount), date, res.Confidence)
		return
	}

	id, err := imp.st.AddRecord(&models.Record{
		Date:     date,
		Time:     when.Format("15:04:05"),
		Type:     models.TypeTransfer,
		Amount:   res.Amount,
		Source:   models.SourceBackfill,
		Note:     res.Reason,
		Username: "backfill",
		FileID:   name,
	})
	if err != nil {
		log.Printf("ERROR create record %s: %v", name, err)
		return
	}
	log.Printf("NEW record id=%d file=%s %s", id, name, amount.FormatRupiah(res.Amount))

	has, err := imp.st.HasSummary(date)
	if err != nil {
		log.Printf("WARN revision check %s: %v", date, err)
		return
	}
	if has {
		if _, err := imp.sc.GenerateRevised(date, fmt.Sprintf("record #%d imported from %s", id, name)); err != nil {
			log.Printf("WARN revised snapshot %s: %v", date, err)
		}
	}
}
