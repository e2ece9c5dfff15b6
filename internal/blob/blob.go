// Package blob provides the artifact store: a content-addressable object
// store for uploaded photos, thumbnails, and generation results.
package blob

import (
	"context"
	"time"
)

// Folders group artifacts by origin. They prefix the object key.
const (
	FolderUploads    = "uploads"
	FolderThumbnails = "thumbnails"
	FolderResults    = "results"
	FolderGarments   = "garments"
)

// UploadResult describes a stored artifact.
type UploadResult struct {
	URL  string
	Key  string
	Size int64
}

// DeleteReport is the outcome of a batched delete.
type DeleteReport struct {
	Succeeded []string
	Failed    []string
}

// Store is the artifact storage interface. Implementations must be safe for
// concurrent use.
type Store interface {
	Ping(ctx context.Context) error
	// Put stores raw bytes under folder and returns the public URL.
	Put(ctx context.Context, data []byte, contentType, folder string) (UploadResult, error)
	// PutFromURL fetches sourceURL and republishes it under this system's
	// own storage, decoupling result availability from the provider's URL TTL.
	PutFromURL(ctx context.Context, sourceURL, folder string) (UploadResult, error)
	// Delete removes one artifact. Best-effort: failures are logged by the
	// implementation and reported as false, never fatal.
	Delete(ctx context.Context, url string) bool
	// DeleteMany removes artifacts in bounded batches.
	DeleteMany(ctx context.Context, urls []string) DeleteReport
	// ListOlderThan returns URLs of artifacts last modified before now-age.
	ListOlderThan(ctx context.Context, age time.Duration) ([]string, error)
}
