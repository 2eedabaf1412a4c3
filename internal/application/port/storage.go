package port

import (
	"context"
	"time"
)

// PhotoStorage keeps receipt photos outside the database.
// File ids have the form "<tripCode>/<name>".
type PhotoStorage interface {
	Store(ctx context.Context, tripCode string, content []byte) (string, error)
	Load(ctx context.Context, fileID string) ([]byte, error)
	Release(ctx context.Context, fileID string) error
}

// StoredPhoto describes one file held by a PhotoStorage
type StoredPhoto struct {
	FileID  string
	ModTime time.Time
}

// PhotoInventory enumerates stored photos for housekeeping
type PhotoInventory interface {
	List(ctx context.Context) ([]StoredPhoto, error)
}
