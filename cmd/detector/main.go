// Command detector is the sensitive-text detection service.
//
// It exposes the detection engine over a local HTTP API: given free text,
// it returns labeled spans of personally identifiable or secret
// information (emails, IDs, card numbers, keys, names, addresses) for the
// client UI to act on. Pattern detection is local and synchronous; name
// and address detection is delegated to a fuzzy NER backend, with a
// heuristic fallback when that backend is unreachable.
//
// Usage:
//
//	# All defaults (API on 127.0.0.1:8090, NER backend on :8000)
//	./detector
//
//	# Custom backend and port
//	API_PORT=9090 FUZZY_ENDPOINT=http://localhost:8001 ./detector
//
//	# Pattern detection only
//	USE_FUZZY_DETECTION=false ./detector
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"pii-span-detector/internal/api"
	"pii-span-detector/internal/config"
	"pii-span-detector/internal/engine"
	"pii-span-detector/internal/fuzzy"
	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/metrics"
	"pii-span-detector/internal/scan"
	"pii-span-detector/internal/span"
	"pii-span-detector/internal/tracker"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logger.New("MAIN", cfg.LogLevel)

	printBanner(cfg)

	m := metrics.New()

	scanner := scan.New(scan.DefaultTable(cfg.Entropy()), logger.New("SCANNER", cfg.LogLevel))
	scanner.SetMetrics(m)

	var adapter *fuzzy.Adapter
	if cfg.UseFuzzy {
		backend := fuzzy.NewHTTPBackend(cfg.FuzzyEndpoint, time.Duration(cfg.FuzzyTimeoutSecs)*time.Second)
		opts := fuzzy.DefaultOptions()
		opts.Threshold = cfg.Threshold
		opts.PerLabel = map[span.Label]float64{span.LabelAddress: cfg.AddressThreshold}
		opts.MaxLen = cfg.MaxLen
		opts.ChunkWindow = cfg.ChunkWindow
		opts.StrideChars = cfg.StrideChars
		adapter = fuzzy.New(backend, opts, logger.New("FUZZY", cfg.LogLevel), m)
	}

	store := openStore(cfg, log)
	tr := tracker.New(store, logger.New("TRACKER", cfg.LogLevel))
	defer tr.Close() //nolint:errcheck // best-effort close on shutdown

	eng := engine.New(scanner, adapter, tr, m, logger.New("ENGINE", cfg.LogLevel))

	// Idle tracker records are garbage-collected in the background.
	ttl := time.Duration(cfg.TrackerTTLMins) * time.Minute
	go eng.RunPruner(context.Background(), ttl/6, ttl)

	registry := api.NewCategoryRegistry(cfg.EnabledLabels(), "categories.json", logger.New("CATEGORIES", cfg.LogLevel))
	srv := api.New(cfg, eng, adapter, registry, m, logger.New("API", cfg.LogLevel))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("listen", "%v", err)
	}
}

// openStore opens the persistent tracker store, bounded by an S3-FIFO
// layer. A missing path or an open failure degrades to memory only.
func openStore(cfg *config.Config, log *logger.Logger) tracker.Store {
	if cfg.TrackerDBPath == "" {
		return tracker.NewMemoryStore()
	}
	store, err := tracker.NewBboltStore(cfg.TrackerDBPath)
	if err != nil {
		log.Warnf("tracker_store", "falling back to memory store: %v", err)
		return tracker.NewMemoryStore()
	}
	return tracker.NewBoundedStore(store, cfg.TrackerCapacity)
}

func printBanner(cfg *config.Config) {
	fuzzyState := "disabled"
	if cfg.UseFuzzy {
		fuzzyState = cfg.FuzzyEndpoint
	}
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║        Sensitive-Text Span Detector  (Go)            ║
╚══════════════════════════════════════════════════════╝
  API port        : %d
  Fuzzy backend   : %s
  Threshold       : %.2f (address %.2f)
  Debounce        : %d ms
  Tracker TTL     : %d min

  Scan some text:
    curl -s localhost:%d/scan -d '{"text":"my card is 4242 4242 4242 4242"}'

  Check status:
    curl http://localhost:%d/status
`, cfg.APIPort, fuzzyState, cfg.Threshold, cfg.AddressThreshold,
		cfg.DebounceMs, cfg.TrackerTTLMins, cfg.APIPort, cfg.APIPort)
}
