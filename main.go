package main

import (
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tokokas/pkg/sched"
)

func main() {
	// Load ./.env if present; existing environment wins.
	_ = godotenv.Load()

	var err error
	cfg, err = loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := initStore(); err != nil {
		log.Fatalf("store: %v", err)
	}

	sc = sched.New(dailySummary, st, cfg.Loc, log)
	if err := sc.Start(); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	defer sc.Stop()

	r := gin.Default()
	setupRoutes(r)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
