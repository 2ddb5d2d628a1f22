// Package cache provides the content-addressed store for synthesized
// audio units: an in-memory LRU index backed by a durable disk layer.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/readaloud/readaloud/tts"
)

// Config contains cache store configuration.
type Config struct {
	Dir      string // Blob directory; empty disables the disk layer
	MaxUnits int    // Unit count watermark for eviction
	MaxBytes int64  // Payload size watermark for eviction
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MaxUnits: 2048,
		MaxBytes: 1 << 30,
	}
}

// Store maps cache keys to audio units. Lookups and puts are
// key-scoped and never block on eviction; eviction runs in the
// background and skips units with active readers.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lru     *list.List // Front is most recently accessed
	size    int64

	cfg  Config
	disk *diskStore

	evictCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

type entry struct {
	unit    *tts.AudioUnit
	elem    *list.Element
	size    int64 // Uncompressed payload size, known even before the blob is loaded
	readers int   // Active readers pin the entry against eviction
}

// New creates a store. When cfg.Dir is set, previously persisted units
// are indexed immediately and their payloads loaded on first lookup.
func New(cfg Config) (*Store, error) {
	if cfg.MaxUnits == 0 {
		cfg.MaxUnits = DefaultConfig().MaxUnits
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}

	s := &Store{
		entries: make(map[string]*entry),
		lru:     list.New(),
		cfg:     cfg,
		evictCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if cfg.Dir != "" {
		disk, err := newDiskStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		s.disk = disk

		for key, meta := range disk.entries() {
			e := &entry{
				unit: &tts.AudioUnit{
					Key:          key,
					Duration:     meta.Duration,
					CreatedAt:    meta.CreatedAt,
					LastAccessed: meta.LastAccessed,
				},
				size: meta.Size,
			}
			e.elem = s.lru.PushBack(e)
			s.entries[key] = e
			s.size += meta.Size
		}
		log.Debug("cache: loaded disk index", "units", len(s.entries), "dir", cfg.Dir)
	}

	s.wg.Add(1)
	go s.evictLoop()

	return s, nil
}

// Lookup returns the unit for key, or false on a miss. A hit bumps
// the unit's last access time. Disk read failures surface as misses;
// synthesis proceeds and rewrites the blob.
func (s *Store) Lookup(key string) (*tts.AudioUnit, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}

	if e.unit.Data == nil && s.disk != nil {
		data, err := s.disk.read(key)
		if err != nil {
			// Treat a broken blob as a miss and drop the entry.
			log.Warn("cache: blob read failed", "key", key, "err", err)
			s.removeLocked(e)
			s.mu.Unlock()
			return nil, false
		}
		e.unit.Data = data
	}

	e.unit.LastAccessed = time.Now()
	s.lru.MoveToFront(e.elem)
	unit := e.unit
	s.mu.Unlock()

	if s.disk != nil {
		s.disk.touch(key, unit.LastAccessed)
	}
	return unit, true
}

// Put stores a new unit. Put is idempotent: when a unit already exists
// for the key (a race with another in-flight job) the existing unit is
// returned and the new bytes are discarded.
func (s *Store) Put(key string, data []byte, duration time.Duration) *tts.AudioUnit {
	now := time.Now()

	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		if e.unit.Data == nil {
			// Indexed from disk but not yet materialized; adopt the
			// bytes rather than rereading the blob.
			e.unit.Data = data
		}
		e.unit.LastAccessed = now
		s.lru.MoveToFront(e.elem)
		unit := e.unit
		s.mu.Unlock()
		return unit
	}

	unit := &tts.AudioUnit{
		Key:          key,
		Data:         data,
		Duration:     duration,
		CreatedAt:    now,
		LastAccessed: now,
	}
	e := &entry{unit: unit, size: int64(len(data))}
	e.elem = s.lru.PushFront(e)
	s.entries[key] = e
	s.size += int64(len(data))
	over := len(s.entries) > s.cfg.MaxUnits || s.size > s.cfg.MaxBytes
	s.mu.Unlock()

	if s.disk != nil {
		if err := s.disk.write(key, data, duration, now); err != nil {
			log.Warn("cache: blob write failed", "key", key, "err", err)
		}
	}

	if over {
		select {
		case s.evictCh <- struct{}{}:
		default:
		}
	}
	return unit
}

// Retain pins the unit against eviction while a reader is streaming
// its bytes. Returns false if the key is not present.
func (s *Store) Retain(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.readers++
	return true
}

// Release drops one reader pin.
func (s *Store) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.readers > 0 {
		e.readers--
	}
}

// Clear truncates the store completely, memory and disk. Partial
// clears are not supported.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.lru.Init()
	s.size = 0
	s.mu.Unlock()

	if s.disk != nil {
		return s.disk.clear()
	}
	return nil
}

// Stats describes the store's current occupancy.
type Stats struct {
	Units int
	Bytes int64
}

// Stats returns current occupancy.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Units: len(s.entries), Bytes: s.size}
}

// Close stops the eviction loop and flushes the disk index.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	if s.disk != nil {
		return s.disk.close()
	}
	return nil
}

func (s *Store) evictLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.evictCh:
			s.evict()
		case <-s.done:
			return
		}
	}
}

// evict removes least-recently-accessed units until the store is back
// under its watermarks. Units with active readers are skipped, not
// necessarily the oldest by insertion time.
func (s *Store) evict() {
	for {
		s.mu.Lock()
		if len(s.entries) <= s.cfg.MaxUnits && s.size <= s.cfg.MaxBytes {
			s.mu.Unlock()
			return
		}

		var victim *entry
		for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
			e := elem.Value.(*entry)
			if e.readers == 0 {
				victim = e
				break
			}
		}
		if victim == nil {
			// Every remaining unit has an in-flight reader.
			s.mu.Unlock()
			return
		}

		key := victim.unit.Key
		s.removeLocked(victim)
		s.mu.Unlock()

		if s.disk != nil {
			s.disk.remove(key)
		}
		log.Debug("cache: evicted unit", "key", key)
	}
}

// removeLocked removes an entry. Caller holds s.mu.
func (s *Store) removeLocked(e *entry) {
	delete(s.entries, e.unit.Key)
	s.lru.Remove(e.elem)
	s.size -= e.size
}
