// Package mock provides a test double for staging.Store.
//
// Store records every call and returns the configured errors. Uploaded
// payloads are kept so tests can assert which bytes reached the store, and
// Delete mirrors real backends by failing on a second delete of the same ID.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/transvox/pkg/staging"
)

// ErrNotFound is returned by Delete for an ID that was already deleted.
var ErrNotFound = errors.New("mock: resource not found")

// Store is a mock implementation of staging.Store.
type Store struct {
	mu sync.Mutex

	// UploadErr, if non-nil, is returned by Upload.
	UploadErr error

	// ProcessedURLErr, if non-nil, is returned by ProcessedURL.
	ProcessedURLErr error

	// DownloadErr, if non-nil, is returned by Download.
	DownloadErr error

	// DeleteErr, if non-nil, is returned by every Delete call.
	DeleteErr error

	// ProcessedData is returned by Download. When nil, Download echoes the
	// most recently uploaded payload.
	ProcessedData []byte

	// --- Call records ---

	Uploads        [][]byte
	UploadOptions  []staging.UploadOptions
	ProcessedCalls int
	DownloadURLs   []string
	Deleted        []string

	seq  int
	gone map[string]bool
}

// Upload records the payload and returns a fresh Resource.
func (s *Store) Upload(_ context.Context, data []byte, opts staging.UploadOptions) (*staging.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads = append(s.Uploads, append([]byte(nil), data...))
	s.UploadOptions = append(s.UploadOptions, opts)
	if s.UploadErr != nil {
		return nil, s.UploadErr
	}
	s.seq++
	id := fmt.Sprintf("mock/%d", s.seq)
	return &staging.Resource{
		ID:           id,
		URL:          "mock://" + id,
		ResourceType: "video",
		ExpiresAt:    time.Now().Add(time.Minute),
	}, nil
}

// ProcessedURL returns a deterministic address derived from the ID.
func (s *Store) ProcessedURL(res *staging.Resource) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessedCalls++
	if s.ProcessedURLErr != nil {
		return "", s.ProcessedURLErr
	}
	return "mock://processed/" + res.ID, nil
}

// Download returns ProcessedData or the last uploaded payload.
func (s *Store) Download(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DownloadURLs = append(s.DownloadURLs, url)
	if s.DownloadErr != nil {
		return nil, s.DownloadErr
	}
	if s.ProcessedData != nil {
		return s.ProcessedData, nil
	}
	if len(s.Uploads) == 0 {
		return nil, ErrNotFound
	}
	return s.Uploads[len(s.Uploads)-1], nil
}

// Delete records the call. A second delete of the same ID fails.
func (s *Store) Delete(_ context.Context, res *staging.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, res.ID)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if s.gone == nil {
		s.gone = make(map[string]bool)
	}
	if s.gone[res.ID] {
		return ErrNotFound
	}
	s.gone[res.ID] = true
	return nil
}

// DeleteCount returns the number of Delete calls. Thread-safe.
func (s *Store) DeleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Deleted)
}

// UploadCount returns the number of Upload calls. Thread-safe.
func (s *Store) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}

// Ensure Store implements staging.Store at compile time.
var _ staging.Store = (*Store)(nil)
