package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	tempPrefix = ".upload-"
	lockName   = ".lock"
	writeCheckName  = ".writecheck"
)

// FileStorage implements Storage on a local directory.
type FileStorage struct {
	basePath string
	lock     *flock.Flock
}

func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStorage{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, lockName)),
	}, nil
}

// Lock takes an exclusive advisory lock on the directory so that only one
// process sweeps it.
func (s *FileStorage) Lock() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock storage directory: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (s *FileStorage) Close() error {
	if s.lock.Locked() {
		return s.lock.Unlock()
	}
	return nil
}

func (s *FileStorage) Path() string {
	return s.basePath
}

func (s *FileStorage) objectPath(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.basePath, name), nil
}

func (s *FileStorage) Save(ctx context.Context, name string, data io.Reader, limit int64) (int64, error) {
	finalPath, err := s.objectPath(name)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.basePath, tempPrefix+name+"-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	src := data
	if limit > 0 {
		src = io.LimitReader(data, limit+1)
	}

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write object data: %w", err)
	}
	if limit > 0 && n > limit {
		tmp.Close()
		return 0, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync object data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("failed to commit object: %w", err)
	}
	committed = true
	return n, nil
}

func (s *FileStorage) Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.objectPath(name)
	if err != nil {
		return nil, ObjectInfo{}, err
	}

	file, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotExist
		}
		return nil, ObjectInfo{}, fmt.Errorf("failed to open object: %w", err)
	}

	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return file, infoFromStat(st), nil
}

func (s *FileStorage) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	p, err := s.objectPath(name)
	if err != nil {
		return ObjectInfo{}, err
	}

	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{}, ErrNotExist
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return infoFromStat(st), nil
}

func (s *FileStorage) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var objects []ObjectInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		st, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, infoFromStat(st))
	}

	return objects, nil
}

func (s *FileStorage) Delete(ctx context.Context, name string) error {
	p, err := s.objectPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *FileStorage) PurgeTemp(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage directory: %w", err)
	}

	purged := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		st, err := entry.Info()
		if err != nil || !st.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err == nil {
			purged++
		}
	}
	return purged, nil
}

// Healthy verifies that the directory exists and is writable.
func (s *FileStorage) Healthy(ctx context.Context) error {
	p := filepath.Join(s.basePath, writeCheckName)
	if err := os.WriteFile(p, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	return os.Remove(p)
}

func infoFromStat(st os.FileInfo) ObjectInfo {
	return ObjectInfo{
		Name:    st.Name(),
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}
}
