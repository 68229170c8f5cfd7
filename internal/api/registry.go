// Package api — registry.go
//
// CategoryRegistry holds the mutable per-category enable toggles shared
// between scan cycles and the management endpoints. Changes are persisted
// via atomic file writes so they survive restarts; a persisted file takes
// precedence over config defaults.
package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pii-span-detector/internal/logger"
	"pii-span-detector/internal/span"
)

// CategoryRegistry is the runtime category toggle store.
type CategoryRegistry struct {
	mu          sync.RWMutex
	enabled     map[span.Label]bool
	persistPath string // empty = no persistence
	log         *logger.Logger
}

// NewCategoryRegistry seeds a registry from defaults, overridden by the
// persisted file at persistPath when it exists.
func NewCategoryRegistry(defaults map[span.Label]bool, persistPath string, log *logger.Logger) *CategoryRegistry {
	if log == nil {
		log = logger.New("CATEGORIES", "info")
	}
	r := &CategoryRegistry{
		enabled:     make(map[span.Label]bool, len(span.AllLabels)),
		persistPath: persistPath,
		log:         log,
	}
	for _, l := range span.AllLabels {
		on, ok := defaults[l]
		r.enabled[l] = !ok || on // unknown defaults to enabled
	}

	if persistPath != "" {
		if saved, err := r.loadFromDisk(); err == nil {
			for name, on := range saved {
				if l := span.Label(name); span.Known(l) {
					r.enabled[l] = on
				}
			}
			log.Infof("load", "loaded category toggles from %s", persistPath)
		} else if !os.IsNotExist(err) {
			log.Warnf("load", "failed to load %s: %v (using defaults)", persistPath, err)
		}
	}
	return r
}

// Enabled returns a snapshot of the toggle map.
func (r *CategoryRegistry) Enabled() map[span.Label]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[span.Label]bool, len(r.enabled))
	for l, on := range r.enabled {
		out[l] = on
	}
	return out
}

// Set switches one category on or off and persists the change.
func (r *CategoryRegistry) Set(l span.Label, on bool) error {
	if !span.Known(l) {
		return fmt.Errorf("unknown category %q", l)
	}
	r.mu.Lock()
	r.enabled[l] = on
	snapshot := make(map[string]bool, len(r.enabled))
	for k, v := range r.enabled {
		snapshot[string(k)] = v
	}
	r.mu.Unlock()
	r.persist(snapshot)
	return nil
}

func (r *CategoryRegistry) loadFromDisk() (map[string]bool, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var saved map[string]bool
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return saved, nil
}

// persist writes the toggle snapshot atomically: temp file, then rename.
func (r *CategoryRegistry) persist(snapshot map[string]bool) {
	if r.persistPath == "" {
		return
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		r.log.Errorf("persist", "marshal: %v", err)
		return
	}
	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".categories-*.tmp")
	if err != nil {
		r.log.Errorf("persist", "create temp: %v", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("persist", "write: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("persist", "close: %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		r.log.Errorf("persist", "rename: %v", err)
	}
}
