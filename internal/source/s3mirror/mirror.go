// SPDX-License-Identifier: MPL-2.0

// Package s3mirror serves firmware from a copy of a dump kept in an
// S3-compatible object store, and fills that copy from an upstream source.
//
// Objects are keyed <prefix>/<oem>/<product>/<branch><virtual path>.
package s3mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/android-llm-paper/android-llm-paper/internal/source"
)

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// ErrIncompleteConfig is returned when a required mirror setting is empty.
var ErrIncompleteConfig = errors.New("incomplete mirror configuration")

type (
	// Config locates the mirror bucket.
	Config struct {
		Endpoint  string
		Region    string
		AccessKey string
		SecretKey string
		Bucket    string
		Prefix    string
		UseSSL    bool
	}

	// Mirror is a source.Backend over one mirrored dump.
	Mirror struct {
		client *minio.Client
		bucket string
		region string
		root   string

		initOnce sync.Once
		initErr  error
	}

	// ReadThrough serves from a mirror and fills misses from upstream.
	ReadThrough struct {
		mirror   *Mirror
		upstream source.Backend
		logger   *log.Logger
	}
)

// New connects to the mirror described by cfg for one dump. dump is the
// key path below the prefix, e.g. "google/redfin/redfin-user-13".
func New(cfg Config, dump string) (*Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrIncompleteConfig)
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("%w: access key and secret key are required", ErrIncompleteConfig)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrIncompleteConfig)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	var parts []string
	for _, p := range []string{cfg.Prefix, dump} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return &Mirror{
		client: client,
		bucket: bucket,
		region: region,
		root:   strings.Join(parts, "/"),
	}, nil
}

// Key returns the object key of a virtual path.
func (m *Mirror) Key(virtualPath string) string {
	return m.root + source.Clean(virtualPath)
}

// Fetch downloads the object backing virtualPath.
func (m *Mirror) Fetch(ctx context.Context, virtualPath string) ([]byte, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, m.Key(virtualPath), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate(err, virtualPath)
	}
	defer func() { _ = obj.Close() }() // read-only object stream

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.translate(err, virtualPath)
	}
	return data, nil
}

// Store uploads data as the object backing virtualPath.
func (m *Mirror) Store(ctx context.Context, virtualPath string, data []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := m.client.PutObject(ctx, m.bucket, m.Key(virtualPath), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// List returns the direct children of virtualDir in the store's key order.
// Sub-directories appear as common prefixes.
func (m *Mirror) List(ctx context.Context, virtualDir string) ([]source.Listing, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	dir := source.Clean(virtualDir)
	prefix := strings.TrimSuffix(m.Key(dir), "/") + "/"

	var out []source.Listing
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, m.translate(obj.Err, virtualDir)
		}
		rest := strings.TrimPrefix(obj.Key, prefix)
		if rest == "" {
			continue
		}
		isDir := strings.HasSuffix(rest, "/")
		out = append(out, source.Listing{
			Path:  strings.TrimSuffix(dir, "/") + "/" + strings.TrimSuffix(rest, "/"),
			IsDir: isDir,
		})
	}
	if len(out) == 0 {
		return nil, &source.NotFoundError{Path: dir}
	}
	return out, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if exists {
			return
		}
		m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	})
	return m.initErr
}

func (m *Mirror) translate(err error, virtualPath string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return &source.NotFoundError{Path: source.Clean(virtualPath)}
	}
	return err
}

// NewReadThrough serves from mirror and fetches misses from upstream,
// storing them in the mirror. A nil logger discards output.
func NewReadThrough(mirror *Mirror, upstream source.Backend, logger *log.Logger) *ReadThrough {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ReadThrough{mirror: mirror, upstream: upstream, logger: logger}
}

// Fetch returns the mirrored object, falling back to upstream on a miss.
// Failing to fill the mirror is logged and does not fail the fetch.
func (r *ReadThrough) Fetch(ctx context.Context, virtualPath string) ([]byte, error) {
	data, err := r.mirror.Fetch(ctx, virtualPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, source.ErrNotFound) {
		r.logger.Warn("mirror fetch failed, using upstream", "path", virtualPath, "err", err)
	}
	data, err = r.upstream.Fetch(ctx, virtualPath)
	if err != nil {
		return nil, err
	}
	if err := r.mirror.Store(ctx, virtualPath, data); err != nil {
		r.logger.Warn("mirror fill failed", "path", virtualPath, "err", err)
	}
	return data, nil
}

// List prefers the mirror's listing and falls back to upstream when the
// mirror has nothing below virtualDir.
func (r *ReadThrough) List(ctx context.Context, virtualDir string) ([]source.Listing, error) {
	out, err := r.mirror.List(ctx, virtualDir)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, source.ErrNotFound) {
		r.logger.Warn("mirror list failed, using upstream", "path", virtualDir, "err", err)
	}
	return r.upstream.List(ctx, virtualDir)
}
