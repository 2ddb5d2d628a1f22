package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// blobMeta is the durable metadata for one cached unit.
type blobMeta struct {
	Duration     time.Duration `json:"duration"`
	Size         int64         `json:"size"` // Uncompressed payload size
	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed time.Time     `json:"last_accessed"`
}

// diskStore persists audio payloads as zstd-compressed blobs keyed by
// digest, with a JSON index sidecar for metadata.
type diskStore struct {
	mu        sync.Mutex
	dir       string
	indexFile string
	index     map[string]*blobMeta
	dirty     bool

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newDiskStore(dir string) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	d := &diskStore{
		dir:       dir,
		indexFile: filepath.Join(dir, "index.json"),
		index:     make(map[string]*blobMeta),
		enc:       enc,
		dec:       dec,
	}

	// A missing or corrupt index means starting fresh; blobs without
	// index entries are rewritten on demand.
	if data, err := os.ReadFile(d.indexFile); err == nil {
		if err := json.Unmarshal(data, &d.index); err != nil {
			d.index = make(map[string]*blobMeta)
		}
	}

	return d, nil
}

// entries returns a snapshot of the index.
func (d *diskStore) entries() map[string]blobMeta {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]blobMeta, len(d.index))
	for k, v := range d.index {
		out[k] = *v
	}
	return out
}

func (d *diskStore) blobPath(key string) string {
	return filepath.Join(d.dir, key+".zst")
}

func (d *diskStore) read(key string) ([]byte, error) {
	compressed, err := os.ReadFile(d.blobPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	data, err := d.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob: %w", err)
	}
	return data, nil
}

func (d *diskStore) write(key string, data []byte, duration time.Duration, now time.Time) error {
	compressed := d.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	if err := os.WriteFile(d.blobPath(key), compressed, 0o600); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}

	d.mu.Lock()
	d.index[key] = &blobMeta{
		Duration:     duration,
		Size:         int64(len(data)),
		CreatedAt:    now,
		LastAccessed: now,
	}
	err := d.saveIndexLocked()
	d.mu.Unlock()
	return err
}

// touch updates a unit's last access time. The index write is
// deferred to close to keep hits cheap.
func (d *diskStore) touch(key string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if meta, ok := d.index[key]; ok {
		meta.LastAccessed = at
		d.dirty = true
	}
}

func (d *diskStore) remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[key]; !ok {
		return
	}
	_ = os.Remove(d.blobPath(key))
	delete(d.index, key)
	_ = d.saveIndexLocked()
}

func (d *diskStore) clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.index {
		_ = os.Remove(d.blobPath(key))
	}
	d.index = make(map[string]*blobMeta)
	return d.saveIndexLocked()
}

func (d *diskStore) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.dirty {
		err = d.saveIndexLocked()
	}
	d.enc.Close()
	d.dec.Close()
	return err
}

// saveIndexLocked writes the index sidecar. Caller holds d.mu.
func (d *diskStore) saveIndexLocked() error {
	data, err := json.MarshalIndent(d.index, "", "  ")
	if err != nil {
		return err
	}
	d.dirty = false
	return os.WriteFile(d.indexFile, data, 0o600)
}
