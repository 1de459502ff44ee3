package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tokokas/pkg/recon"
)

// Config collects everything the service reads from the environment. Values
// are fixed at startup; thresholds in particular are passed into the engine
// explicitly, never mutated at runtime.
type Config struct {
	DBPath     string
	TZName     string
	Loc        *time.Location
	Thresholds recon.Thresholds
	OCRURL     string
	OCRTimeout time.Duration
	Port       string
}

func loadConfig() (Config, error) {
	cfg := Config{
		DBPath:     envOr("DB_PATH", "tokokas.db"),
		TZName:     envOr("TZ_NAME", "Asia/Jakarta"),
		OCRURL:     os.Getenv("OCR_URL"),
		OCRTimeout: time.Duration(envInt("OCR_TIMEOUT_SECONDS", 20)) * time.Second,
		Port:       envOr("PORT", "8081"),
		Thresholds: recon.Thresholds{
			Small: envInt("THRESHOLD_SMALL", 1000),
			Large: envInt("THRESHOLD_LARGE", 5000),
		},
	}

	loc, err := time.LoadLocation(cfg.TZName)
	if err != nil {
		return cfg, fmt.Errorf("load timezone %q: %w", cfg.TZName, err)
	}
	cfg.Loc = loc
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
