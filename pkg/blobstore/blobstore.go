// Package blobstore keeps opaque objects in a single flat namespace.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotExist    = errors.New("blobstore: object does not exist")
	ErrTooLarge    = errors.New("blobstore: object exceeds size limit")
	ErrInvalidName = errors.New("blobstore: invalid object name")
	ErrLocked      = errors.New("blobstore: directory is locked by another process")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines interface for object storage
type Storage interface {
	// Save writes data under name. Nothing is visible under name unless
	// the whole write succeeded. limit <= 0 disables the size check.
	Save(ctx context.Context, name string, data io.Reader, limit int64) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	// List returns every committed object. Temporary and hidden files are skipped.
	List(ctx context.Context) ([]ObjectInfo, error)
	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// PurgeTemp removes abandoned partial writes last touched before cutoff.
	PurgeTemp(ctx context.Context, cutoff time.Time) (int, error)
	Healthy(ctx context.Context) error
}
