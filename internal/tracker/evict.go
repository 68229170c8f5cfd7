// Package tracker — evict.go
//
// boundedStore wraps a Store with an in-memory S3-FIFO eviction layer so
// the number of tracked elements is capped both in memory and in the
// backing store.
//
// S3-FIFO ("Simple, Scalable, FIFO-based cache eviction", Yang et al.,
// 2023) keeps two FIFO queues and a bounded ghost set:
//
//   - S (small, ~10% of capacity): probationary queue for new elements.
//   - M (main): elements promoted from S after at least one access.
//   - G (ghost): keys recently evicted from S; a ghost hit on insert
//     bypasses S and goes directly to M, giving scan resistance.
//
// Per-element state is a saturating access counter (max 3), incremented on
// Get hits and reset on promotion. Evicting from S with a zero counter
// removes the element fully (ghost + backing-store delete); evicting from
// M deletes without ghosting.
package tracker

import (
	"container/list"
	"sync"
)

type evictEntry struct {
	rec  Record
	freq uint8
	elem *list.Element // position in sQueue or mQueue; Value is the key
	inM  bool
}

type boundedStore struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*evictEntry
	sQueue  *list.List
	mQueue  *list.List

	// Ghost set: bounded ring of recently evicted keys.
	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing Store
}

// NewBoundedStore applies S3-FIFO eviction in front of backing, keeping at
// most capacity elements resident. Capacities below 2 are clamped to 2.
func NewBoundedStore(backing Store, capacity int) Store {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	return &boundedStore{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*evictEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
	}
}

// Get returns the record for elementID, consulting the backing store on a
// memory miss and re-warming the entry on a hit there.
func (c *boundedStore) Get(elementID string) (Record, bool) {
	c.mu.Lock()
	if e, ok := c.entries[elementID]; ok {
		if e.freq < 3 {
			e.freq++
		}
		rec := e.rec
		c.mu.Unlock()
		return rec, true
	}
	c.mu.Unlock()

	rec, ok := c.backing.Get(elementID)
	if !ok {
		return Record{}, false
	}
	c.insert(elementID, rec)
	return rec, true
}

// Put stores the record in memory and in the backing store.
func (c *boundedStore) Put(elementID string, rec Record) {
	c.insert(elementID, rec)
	c.backing.Put(elementID, rec)
}

// Delete removes elementID from memory and from the backing store.
func (c *boundedStore) Delete(elementID string) {
	c.mu.Lock()
	c.removeResident(elementID)
	c.mu.Unlock()
	c.backing.Delete(elementID)
}

// Each walks the backing store, which holds the authoritative record set.
func (c *boundedStore) Each(fn func(string, Record) bool) {
	c.backing.Each(fn)
}

// Close closes the backing store; in-memory state is discarded.
func (c *boundedStore) Close() error { return c.backing.Close() }

// insert performs the S3-FIFO insert/update.
func (c *boundedStore) insert(key string, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.rec = rec // queue position unchanged on update
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &evictEntry{rec: rec, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

func (c *boundedStore) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

func (c *boundedStore) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.freq > 0 {
		// Promote to M; evict M's head if it is now over target.
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		if c.mQueue.Len() > c.capacity-c.sTarget {
			c.evictFromM()
		}
		return
	}
	delete(c.entries, key)
	c.ghostAdd(key)
	go c.backing.Delete(key) // off the hot path
}

func (c *boundedStore) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.mQueue.Remove(front)
	delete(c.entries, key)
	go c.backing.Delete(key) // off the hot path
}

func (c *boundedStore) removeResident(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

func (c *boundedStore) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *boundedStore) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
