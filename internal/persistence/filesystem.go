package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps one file per shard under a single directory. Writes go
// through a temp file and an atomic rename so a crash mid-save never
// leaves a truncated shard behind.
type FileStore struct {
	dir   string
	codec Codec
}

// NewFileStore creates a FileStore rooted at dir. A nil codec means
// bytes are written as-is.
func NewFileStore(dir string, codec Codec) *FileStore {
	if codec == nil {
		codec = Chain()
	}
	return &FileStore{dir: dir, codec: codec}
}

// Dir returns the storage directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// EnsureDir creates the storage directory if needed.
func (fs *FileStore) EnsureDir() error {
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("create statistics dir %s: %w", fs.dir, err)
	}
	return nil
}

// Load reads and decodes the persisted bytes for a shard. A shard never
// saved yields an fs.ErrNotExist-wrapping error.
func (fs *FileStore) Load(id int) ([]byte, error) {
	raw, err := os.ReadFile(fs.path(id))
	if err != nil {
		return nil, err
	}
	data, err := fs.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode shard %d: %w", id, err)
	}
	return data, nil
}

// Save encodes and writes the bytes for a shard.
func (fs *FileStore) Save(id int, data []byte) error {
	path := fs.path(id)
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(fs.codec.Encode(data)); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (fs *FileStore) path(id int) string {
	return filepath.Join(fs.dir, fmt.Sprintf("unit.%d", id))
}
