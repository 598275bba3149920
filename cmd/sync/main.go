// Package main provides the sync command: it reads an extraction JSON
// file, normalizes the records for one site, and reconciles them against
// a store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/marvst/properties-scraper/internal/config"
	"github.com/marvst/properties-scraper/internal/formatter"
	"github.com/marvst/properties-scraper/internal/logger"
	"github.com/marvst/properties-scraper/internal/models"
	"github.com/marvst/properties-scraper/internal/normalizer"
	"github.com/marvst/properties-scraper/internal/store"
	"github.com/marvst/properties-scraper/internal/syncer"
)

func main() {
	sitePath := flag.String("site", "", "Path to site config YAML file")
	inputPath := flag.String("input", "", "Path to extraction JSON file")
	storeKind := flag.String("store", "memory", "Store backend: memory, postgres or api")
	workers := flag.Int("workers", 0, "Concurrent writers (0 = site config / default)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if *sitePath == "" || *inputPath == "" {
		fmt.Println("Usage: sync -site <site.yaml> -input <extraction.json> [-store memory|postgres|api]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logg := logger.NewLogger(*logLevel)

	site, err := config.LoadSite(*sitePath)
	if err != nil {
		log.Fatalf("Error loading site config: %v", err)
	}

	raws, err := loadRecords(*inputPath)
	if err != nil {
		log.Fatalf("Error loading records: %v", err)
	}

	logg.Info("loaded extraction", "site", site.Name, "records", len(raws))

	ctx := context.Background()

	adapter, cleanup, err := buildStore(ctx, *storeKind, logg)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	defer cleanup()

	syncWorkers := *workers
	if syncWorkers == 0 {
		syncWorkers = site.Sync.Workers
	}

	norm := normalizer.NewNormalizer(site, logg.With("site", site.Name))
	sync := syncer.NewSyncer(adapter, logg, syncer.WithWorkers(syncWorkers))
	pipeline := syncer.NewPipeline(norm, sync, logg)

	report, err := pipeline.Run(ctx, raws)

	fmt.Println(formatter.RenderReport(report))

	if err != nil {
		log.Fatalf("Sync aborted: %v", err)
	}

	logg.Info("sync complete", "report", report.String())
}

func loadRecords(path string) ([]models.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var raws []models.RawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return raws, nil
}

func buildStore(ctx context.Context, kind string, logg *logger.Logger) (store.Adapter, func(), error) {
	switch kind {
	case "memory":
		return store.NewMemory(), func() {}, nil

	case "postgres":
		pg, err := store.NewPostgres(ctx, os.Getenv("DATABASE_DSN"))
		if err != nil {
			return nil, nil, err
		}

		return pg, pg.Close, nil

	case "api":
		api, err := store.NewAPI(os.Getenv("LISTINGS_API_URL"), os.Getenv("LISTINGS_API_KEY"), logg)
		if err != nil {
			return nil, nil, err
		}

		return api, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
