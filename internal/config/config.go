// Package config loads and holds all detector configuration.
// Settings are read from detector-config.json first, then environment
// variables; env vars win.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"

	"pii-span-detector/internal/span"
	"pii-span-detector/internal/validate"
)

// Config holds the full detector configuration.
type Config struct {
	APIPort     int    `json:"apiPort"`
	BindAddress string `json:"bindAddress"`
	APIToken    string `json:"apiToken"` // empty = no auth
	LogLevel    string `json:"logLevel"`

	// Fuzzy backend
	FuzzyEndpoint    string  `json:"fuzzyEndpoint"`
	UseFuzzy         bool    `json:"useFuzzyDetection"`
	FuzzyTimeoutSecs int     `json:"fuzzyTimeoutSecs"`
	Threshold        float64 `json:"confidenceThreshold"`
	AddressThreshold float64 `json:"addressThreshold"`
	MaxLen           int     `json:"maxChunkTokens"`
	ChunkWindow      int     `json:"chunkWindowChars"`
	StrideChars      int     `json:"strideChars"`

	// Entropy gates
	TokenEntropy  float64 `json:"tokenEntropy"`
	Base64Entropy float64 `json:"base64Entropy"`
	HexEntropy    float64 `json:"hexEntropy"`

	// Cycle scheduling
	DebounceMs int `json:"debounceMs"`

	// Processed-content tracker
	TrackerDBPath   string `json:"trackerDbPath"` // empty = memory only
	TrackerTTLMins  int    `json:"trackerTtlMins"`
	TrackerCapacity int    `json:"trackerCapacity"`
	SkipRemoved     bool   `json:"skipRemovedRegions"`
	SkipReplaced    bool   `json:"skipReplacementData"`

	// Per-category enable toggles and fake replacement values,
	// keyed by label name.
	Categories map[string]bool   `json:"categories"`
	FakeData   map[string]string `json:"fakeData"`
}

// Load returns config with defaults overridden by detector-config.json
// and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "detector-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	categories := make(map[string]bool, len(span.AllLabels))
	for _, l := range span.AllLabels {
		categories[string(l)] = true
	}
	return &Config{
		APIPort:     8090,
		BindAddress: "127.0.0.1",
		LogLevel:    "info",

		FuzzyEndpoint:    "http://localhost:8000",
		UseFuzzy:         true,
		FuzzyTimeoutSecs: 10,
		Threshold:        0.65,
		AddressThreshold: 0.70,
		MaxLen:           256,
		ChunkWindow:      2000,
		StrideChars:      512,

		TokenEntropy:  validate.DefaultTokenEntropy,
		Base64Entropy: validate.DefaultBase64Entropy,
		HexEntropy:    validate.DefaultHexEntropy,

		DebounceMs: 250,

		TrackerTTLMins:  30,
		TrackerCapacity: 10_000,
		SkipRemoved:     true,
		SkipReplaced:    true,

		Categories: categories,
		FakeData: map[string]string{
			string(span.LabelEmail):   "user@example.com",
			string(span.LabelPhone):   "+1-555-0100",
			string(span.LabelCard):    "4242 4242 4242 4242",
			string(span.LabelNRIC):    "S0000001I",
			string(span.LabelSSN):     "000-00-0000",
			string(span.LabelIBAN):    "DE00000000000000000000",
			string(span.LabelIP):      "192.0.2.1",
			string(span.LabelSecret):  "[REDACTED_SECRET]",
			string(span.LabelJWT):     "[REDACTED_TOKEN]",
			string(span.LabelURL):     "https://example.com",
			string(span.LabelName):    "Alex Doe",
			string(span.LabelAddress): "1 Example Street",
		},
	}
}

// EnabledLabels converts the category toggle map to label keys.
func (c *Config) EnabledLabels() map[span.Label]bool {
	out := make(map[span.Label]bool, len(c.Categories))
	for name, on := range c.Categories {
		out[span.Label(name)] = on
	}
	return out
}

// FakeValues converts the fake data map to label keys.
func (c *Config) FakeValues() map[span.Label]string {
	out := make(map[span.Label]string, len(c.FakeData))
	for name, v := range c.FakeData {
		out[span.Label(name)] = v
	}
	return out
}

// Entropy bundles the configured entropy thresholds.
func (c *Config) Entropy() validate.EntropyThresholds {
	return validate.EntropyThresholds{
		Token:  c.TokenEntropy,
		Base64: c.Base64Entropy,
		Hex:    c.HexEntropy,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FUZZY_ENDPOINT"); v != "" {
		cfg.FuzzyEndpoint = v
	}
	if v := os.Getenv("USE_FUZZY_DETECTION"); v == "false" {
		cfg.UseFuzzy = false
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Threshold = f
		}
	}
	if v := os.Getenv("DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DebounceMs = n
		}
	}
	if v := os.Getenv("TRACKER_DB_PATH"); v != "" {
		cfg.TrackerDBPath = v
	}
	if v := os.Getenv("TRACKER_TTL_MINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TrackerTTLMins = n
		}
	}
}
