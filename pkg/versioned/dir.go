package versioned

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileExt = ".html"

// Dir is a Store backed by one directory with one <key>.html file per key.
// The file modification time is the key's timestamp, so state survives a
// restart without any extra metadata.
type Dir struct {
	mu   sync.RWMutex
	path string
	now  func() time.Time
}

// OpenDir opens the store rooted at path, creating the directory if needed.
func OpenDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", path, err)
	}
	return &Dir{path: path, now: time.Now}, nil
}

// Path returns the store's directory.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) filename(key string) string {
	return filepath.Join(d.path, key+fileExt)
}

func (d *Dir) Get(key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readLocked(key)
}

func (d *Dir) readLocked(key string) ([]byte, bool, error) {
	b, err := os.ReadFile(d.filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return b, true, nil
}

func (d *Dir) Set(key string, content []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, _, err := d.stampLocked(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.path, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	stamp := time.Unix(nextStamp(d.now(), prev), 0)
	if err := os.Chtimes(tmpName, stamp, stamp); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("stamp %s: %w", key, err)
	}
	if err := os.Rename(tmpName, d.filename(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := os.Remove(d.filename(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Timestamp(key string) (int64, bool, error) {
	if err := ValidateKey(key); err != nil {
		return 0, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stampLocked(key)
}

func (d *Dir) stampLocked(key string) (int64, bool, error) {
	info, err := os.Stat(d.filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.ModTime().Unix(), true, nil
}

func (d *Dir) Keys() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.keysLocked()
}

func (d *Dir) keysLocked() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.path, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Dir) Snapshot() (map[string][]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys, err := d.keysLocked()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, ok, err := d.readLocked(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}
