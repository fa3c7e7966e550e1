package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

// MemoryKV is an in-memory KV.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string]string)}
}

func (kv *MemoryKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *MemoryKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}

// FileKV keeps a flat YAML map in a single file. Writes go to a temporary
// file that is renamed into place.
type FileKV struct {
	path string
	mu   sync.Mutex
}

// NewFileKV returns a FileKV at path. A leading ~ is expanded.
func NewFileKV(path string) (*FileKV, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return &FileKV{path: p}, nil
}

// DefaultPath returns the state file location in the user data dir.
func DefaultPath() (string, error) {
	scope := gap.NewScope(gap.User, "recite")
	p, err := scope.DataPath("state.yml")
	if err != nil {
		return "", fmt.Errorf("could not resolve data path: %w", err)
	}
	return p, nil
}

// Path returns the file path.
func (kv *FileKV) Path() string { return kv.path }

func (kv *FileKV) load() (map[string]string, error) {
	m := make(map[string]string)
	b, err := os.ReadFile(kv.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kv.path, err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	return m, nil
}

func (kv *FileKV) Get(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	m, err := kv.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (kv *FileKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	m, err := kv.load()
	if err != nil {
		// a corrupt file is replaced rather than blocking saves forever
		m = make(map[string]string)
	}
	m[key] = value
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(kv.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(kv.path), ".state-*.yml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), kv.path)
}
