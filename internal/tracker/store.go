// Package tracker — store.go
//
// Store is the interface for the per-element processed-content records.
// Two implementations are provided:
//   - memoryStore — in-memory only, used in tests and when no path is
//     configured.
//   - bboltStore  — embedded key-value store (bbolt), used in production
//     so acted-upon spans survive process restarts.
//
// The interface is minimal: per-element get/put/delete, a full walk for
// the inactivity pruner, and Close. All implementations must be safe for
// concurrent use.
package tracker

import (
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// Store persists processed-content records keyed by element identity.
type Store interface {
	// Get returns the record for elementID, if present.
	Get(elementID string) (Record, bool)

	// Put stores the record for elementID, overwriting silently.
	Put(elementID string, rec Record)

	// Delete removes the record for elementID. Missing keys are a no-op.
	Delete(elementID string)

	// Each calls fn for every stored record until fn returns false.
	Each(fn func(elementID string, rec Record) bool)

	// Close releases any resources held by the store.
	Close() error
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Get(elementID string) (Record, bool) {
	s.mu.RLock()
	r, ok := s.records[elementID]
	s.mu.RUnlock()
	return r, ok
}

func (s *memoryStore) Put(elementID string, rec Record) {
	s.mu.Lock()
	s.records[elementID] = rec
	s.mu.Unlock()
}

func (s *memoryStore) Delete(elementID string) {
	s.mu.Lock()
	delete(s.records, elementID)
	s.mu.Unlock()
}

func (s *memoryStore) Each(fn func(string, Record) bool) {
	s.mu.RLock()
	snapshot := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

func (s *memoryStore) Close() error { return nil }

// --- bboltStore ----------------------------------------------------------

const recordBucket = "processed_content"

type bboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens (or creates) the bbolt database at path and ensures
// the record bucket exists.
func NewBboltStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open tracker store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create tracker bucket: %w", err)
	}
	return &bboltStore{db: db}, nil
}

func (s *bboltStore) Get(elementID string) (Record, bool) {
	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(elementID))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false
	}
	return rec, found
}

func (s *bboltStore) Put(elementID string, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", recordBucket)
		}
		return b.Put([]byte(elementID), data)
	})
}

func (s *bboltStore) Delete(elementID string) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(elementID))
	})
}

func (s *bboltStore) Each(fn func(string, Record) bool) {
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip corrupt entry
			}
			if !fn(string(k), rec) {
				return errStopIteration
			}
			return nil
		})
	})
}

var errStopIteration = fmt.Errorf("stop iteration")

func (s *bboltStore) Close() error { return s.db.Close() }
