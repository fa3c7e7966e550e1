package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const fileExt = ".pcm.zst"

// ErrItemTooLarge is returned when an item exceeds the cache capacity.
var ErrItemTooLarge = errors.New("item too large for cache")

// Stats holds cache counters.
type Stats struct {
	Capacity  int64 // bytes
	Size      int64 // bytes on disk
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

type entry struct {
	path       string
	size       int64
	lastAccess time.Time
}

// Disk is a size-bounded, zstd-compressed cache in a single directory.
// The least recently used entries are evicted first. Access times are kept
// in file modification times, so the order survives a restart.
type Disk struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	closeOnce sync.Once

	mu    sync.Mutex
	index map[string]*entry
	size  int64
	stats Stats
}

// Key derives a cache key from its parts.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// Open opens or creates a cache in dir holding at most capacity bytes.
func Open(dir string, capacity int64) (*Disk, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	d := &Disk{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*entry),
	}
	if err := d.scan(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// scan rebuilds the index from the directory.
func (d *Disk) scan() error {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, fileExt)
		d.index[key] = &entry{
			path:       filepath.Join(d.dir, name),
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		d.size += info.Size()
	}
	for d.size > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}
	return nil
}

// Get returns the value stored under key. Unreadable or corrupt entries are
// dropped and reported as misses.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}
	data, err := os.ReadFile(e.path)
	if err == nil {
		data, err = d.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		d.remove(key, e)
		d.stats.Misses++
		return nil, false
	}

	now := time.Now()
	e.lastAccess = now
	_ = os.Chtimes(e.path, now, now)
	d.stats.Hits++
	return data, true
}

// Put stores value under key, evicting older entries to make room.
func (d *Disk) Put(key string, value []byte) error {
	data := d.encoder.EncodeAll(value, nil)
	size := int64(len(data))
	if size > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.index[key]; ok {
		d.remove(key, e)
	}
	for d.size+size > d.capacity && len(d.index) > 0 {
		d.evictOldest()
	}

	path := filepath.Join(d.dir, key+fileExt)
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	d.index[key] = &entry{path: path, size: size, lastAccess: time.Now()}
	d.size += size
	return nil
}

// Stats returns a copy of the counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity = d.capacity
	s.Size = d.size
	s.Items = len(d.index)
	return s
}

// Close releases the codecs. Cached files stay on disk.
func (d *Disk) Close() {
	d.closeOnce.Do(func() {
		_ = d.encoder.Close()
		d.decoder.Close()
	})
}

func (d *Disk) remove(key string, e *entry) {
	_ = os.Remove(e.path)
	d.size -= e.size
	delete(d.index, key)
}

func (d *Disk) evictOldest() {
	var (
		oldestKey string
		oldest    *entry
	)
	for k, e := range d.index {
		if oldest == nil || e.lastAccess.Before(oldest.lastAccess) {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		d.remove(oldestKey, oldest)
		d.stats.Evictions++
	}
}

// writeFile writes to a temporary file first, then renames it into place.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
