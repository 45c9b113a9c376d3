// Package staging defines the Store interface for transient remote object
// storage used to derive a processed variant of an uploaded recording.
//
// A Store uploads raw bytes under a unique namespaced identifier, computes the
// address of a server-side transformed variant without any network I/O,
// downloads that variant, and deletes the staged object once the caller is
// done with it. Staged objects are never meant to outlive a single pipeline
// run; ExpiresAt is a hint for the storage backend, not a guarantee.
//
// Implementations must be safe for concurrent use.
package staging

import (
	"context"
	"time"
)

// Resource is the handle returned by a successful upload. It is the only
// state a caller needs to resolve, download, and delete the staged object.
type Resource struct {
	// ID is the opaque storage identifier (for Cloudinary, the public ID
	// including the folder prefix).
	ID string

	// URL is the fetch address of the original, untransformed object.
	URL string

	// ResourceType is the backend's resource class (e.g. "video" for audio
	// on Cloudinary). Delete needs it to address the right object.
	ResourceType string

	// Format is the container format reported by the backend (e.g. "webm").
	Format string

	// ExpiresAt is the requested lifetime bound of the staged object.
	ExpiresAt time.Time
}

// UploadOptions carries per-upload hints.
type UploadOptions struct {
	// Filename is the client-supplied original filename. Informational only.
	Filename string

	// MIMEType is the client-supplied content type. Informational only.
	MIMEType string

	// TTL bounds the lifetime of the staged object. Zero means the store's
	// configured default.
	TTL time.Duration
}

// Store is the abstraction over a transient remote object store.
type Store interface {
	// Upload stores data under a new unique identifier and returns its handle.
	Upload(ctx context.Context, data []byte, opts UploadOptions) (*Resource, error)

	// ProcessedURL returns the deterministic address of the transformed
	// variant of res. It must not perform any I/O.
	ProcessedURL(res *Resource) (string, error)

	// Download fetches the bytes at url. Implementations retry transient
	// failures (the transformed variant may still be generating).
	Download(ctx context.Context, url string) ([]byte, error)

	// Delete removes the staged object. Deleting an object that no longer
	// exists returns an error; callers treat delete failures as non-fatal.
	Delete(ctx context.Context, res *Resource) error
}
