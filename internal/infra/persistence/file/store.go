// Package file persists each backend key as a JSON document in a directory,
// guarded by an advisory file lock so several local processes can share it.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alienrisk/pkg/domain"

	"github.com/gofrs/flock"
)

var _ domain.Backend = (*Store)(nil)

const (
	defaultDir    = "./alienrisk-data"
	lockRetry     = 10 * time.Millisecond
	filePerm      = 0o600
	directoryPerm = 0o750
)

// Store maps keys to files under dir. Writes go to a temp file that is
// renamed into place, so readers never observe a partial document.
type Store struct {
	dir string
}

// New returns a file-backed store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// PathFor returns the file that holds key.
func (s *Store) PathFor(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

// fileName keeps letters, digits, dot, dash and underscore; everything else
// (the colons in versioned keys included) becomes an underscore.
func fileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".json"
}

func (s *Store) lock(ctx context.Context, key string, shared bool) (*flock.Flock, error) {
	fl := flock.New(s.PathFor(key) + ".lock")
	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(ctx, lockRetry)
	} else {
		ok, err = fl.TryLockContext(ctx, lockRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: not acquired", key)
	}
	return fl, nil
}

// Read returns the document stored for key, or nil when the file does not exist.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	fl, err := s.lock(ctx, key, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()
	b, err := os.ReadFile(s.PathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// Write atomically replaces the document for key.
func (s *Store) Write(ctx context.Context, key string, payload []byte) error {
	fl, err := s.lock(ctx, key, false)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.PathFor(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Remove deletes the document for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	fl, err := s.lock(ctx, key, false)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()
	if err := os.Remove(s.PathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; locks are released after every call.
func (s *Store) Close() error { return nil }
