// Package cloudinary provides a staging.Store backed by Cloudinary.
//
// Audio is uploaded with resource type "video" (Cloudinary's class for audio
// and video) under a namespaced folder with a random UUID public ID. The
// processed variant is a delivery URL carrying a transformation, so
// resolving it is a pure string computation; Cloudinary generates the
// derived asset lazily on first fetch.
//
// Usage:
//
//	s, err := cloudinary.New("my-cloud", apiKey, apiSecret,
//	    cloudinary.WithFolder("transvox/staging"),
//	    cloudinary.WithTransformation("e_volume:auto"),
//	)
//	res, err := s.Upload(ctx, data, staging.UploadOptions{})
//	url, _ := s.ProcessedURL(res)
package cloudinary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"github.com/MrWong99/transvox/pkg/staging"
)

const (
	defaultFolder         = "transvox/staging"
	defaultTransformation = "e_volume:auto"
	defaultTTL            = 15 * time.Minute
	resourceTypeVideo     = "video"
)

// Compile-time assertion that Store implements staging.Store.
var _ staging.Store = (*Store)(nil)

// uploadAPI is the subset of the Cloudinary upload API the store uses.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Store implements staging.Store on top of the Cloudinary SDK.
type Store struct {
	client         *cld.Cloudinary
	upload         uploadAPI
	fetcher        *staging.Fetcher
	folder         string
	transformation string
	format         string
	ttl            time.Duration
	now            func() time.Time
}

// Option is a functional option for [New].
type Option func(*Store)

// WithFolder sets the folder prefix staged objects are uploaded into.
func WithFolder(folder string) Option {
	return func(s *Store) {
		if folder != "" {
			s.folder = folder
		}
	}
}

// WithTransformation sets the delivery transformation used for the
// processed variant (e.g. "e_volume:auto" or "e_noise:50/e_volume:auto").
func WithTransformation(t string) Option {
	return func(s *Store) {
		if t != "" {
			s.transformation = t
		}
	}
}

// WithFormat requests the processed variant in a specific container format
// (e.g. "wav"). Empty keeps the uploaded format.
func WithFormat(format string) Option {
	return func(s *Store) { s.format = format }
}

// WithTTL sets the lifetime hint attached to uploads.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithFetcher overrides the downloader used for processed variants.
func WithFetcher(f *staging.Fetcher) Option {
	return func(s *Store) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// New creates a Cloudinary-backed store from explicit account credentials.
func New(cloudName, apiKey, apiSecret string, opts ...Option) (*Store, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}
	client, err := cld.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return newStore(client, opts...), nil
}

// NewFromURL creates a store from a CLOUDINARY_URL style connection string
// (cloudinary://<key>:<secret>@<cloud>).
func NewFromURL(cloudinaryURL string, opts ...Option) (*Store, error) {
	client, err := cld.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return newStore(client, opts...), nil
}

func newStore(client *cld.Cloudinary, opts ...Option) *Store {
	client.Config.URL.Secure = true
	s := &Store{
		client:         client,
		upload:         &client.Upload,
		fetcher:        staging.NewFetcher(),
		folder:         defaultFolder,
		transformation: defaultTransformation,
		ttl:            defaultTTL,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upload stores data under <folder>/<uuid>.
func (s *Store) Upload(ctx context.Context, data []byte, opts staging.UploadOptions) (*staging.Resource, error) {
	if len(data) == 0 {
		return nil, errors.New("cloudinary: upload: empty payload")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	expires := s.now().Add(ttl).UTC()

	params := uploader.UploadParams{
		PublicID:     uuid.NewString(),
		Folder:       s.folder,
		ResourceType: resourceTypeVideo,
		Context: api.CldAPIMap{
			"expires_at": strconv.FormatInt(expires.Unix(), 10),
		},
		Tags: api.CldAPIArray{"transient"},
	}
	if opts.Filename != "" {
		params.Context["original_filename"] = path.Base(opts.Filename)
	}

	resp, err := s.upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: upload: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary: upload: %s", resp.Error.Message)
	}
	if resp.PublicID == "" {
		return nil, errors.New("cloudinary: upload: response carried no public id")
	}

	rt := resp.ResourceType
	if rt == "" {
		rt = resourceTypeVideo
	}
	return &staging.Resource{
		ID:           resp.PublicID,
		URL:          resp.SecureURL,
		ResourceType: rt,
		Format:       resp.Format,
		ExpiresAt:    expires,
	}, nil
}

// ProcessedURL builds the transformed delivery URL. No network I/O.
func (s *Store) ProcessedURL(res *staging.Resource) (string, error) {
	if res == nil || res.ID == "" {
		return "", errors.New("cloudinary: processed url: empty resource")
	}
	asset, err := s.client.Video(res.ID)
	if err != nil {
		return "", fmt.Errorf("cloudinary: processed url: %w", err)
	}
	asset.Transformation = s.transformation
	format := s.format
	if format == "" {
		format = res.Format
	}
	if format != "" {
		asset.PublicID = res.ID + "." + format
	}
	u, err := asset.String()
	if err != nil {
		return "", fmt.Errorf("cloudinary: processed url: %w", err)
	}
	return u, nil
}

// Download fetches the processed variant, retrying while Cloudinary is
// still deriving it.
func (s *Store) Download(ctx context.Context, url string) ([]byte, error) {
	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: download: %w", err)
	}
	return data, nil
}

// Delete destroys the staged object and invalidates CDN copies. A result
// other than "ok" (typically "not found" on a second delete) is an error.
func (s *Store) Delete(ctx context.Context, res *staging.Resource) error {
	if res == nil || res.ID == "" {
		return errors.New("cloudinary: delete: empty resource")
	}
	invalidate := true
	resp, err := s.upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     res.ID,
		ResourceType: res.ResourceType,
		Invalidate:   &invalidate,
	})
	if err != nil {
		return fmt.Errorf("cloudinary: delete %q: %w", res.ID, err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary: delete %q: %s", res.ID, resp.Error.Message)
	}
	if resp.Result != "ok" {
		return fmt.Errorf("cloudinary: delete %q: result %q", res.ID, resp.Result)
	}
	return nil
}
