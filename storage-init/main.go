package main

import (
	"context"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"taskboard/config"
	"taskboard/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.WithField("driver", cfg.DatabaseDriver).Info("storage init starting")

	store, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	seed := true
	if v := os.Getenv("SEED_DEMO"); v != "" {
		if seed, err = strconv.ParseBool(v); err != nil {
			log.Fatalf("invalid SEED_DEMO: %v", err)
		}
	}
	if seed {
		if err := store.SeedDemo(ctx); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.WithFields(log.Fields{"user": storage.DemoUsername, "project": storage.DemoProjectID}).Info("demo board seeded")
	}

	log.Info("storage init complete")
}
