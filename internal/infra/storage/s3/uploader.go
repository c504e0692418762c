// Package s3 backs the platform object store with an S3-compatible
// bucket. Listing photos and chat attachments land here; the returned
// URL is what gets written into table rows.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"livelocal/internal/remote"
)

// Options configures the bucket connection. Endpoint and Bucket are
// required; PublicBaseURL defaults to the endpoint when unset.
type Options struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UseSSL        bool
	Logger        *slog.Logger
}

// Store uploads media objects and serves their public URLs. The bucket
// is created on first use and opened for anonymous reads so clients can
// render uploaded images directly.
type Store struct {
	mc      *minio.Client
	bucket  string
	baseURL string
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
}

var _ remote.Storage = (*Store)(nil)

func New(opts Options) (*Store, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	mc, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	base := strings.TrimSpace(opts.PublicBaseURL)
	if base == "" {
		base = endpoint
	}
	return &Store{
		mc:      mc,
		bucket:  bucket,
		baseURL: strings.TrimRight(base, "/"),
		logger:  opts.Logger,
	}, nil
}

// Upload streams the object into the bucket under key and returns the
// public URL it will be reachable at.
func (s *Store) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if reader == nil {
		return "", errors.New("s3: reader is required")
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("s3: object key is required")
	}
	if err := s.init(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.mc.PutObject(ctx, s.bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}

	publicURL := fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key)
	if s.logger != nil {
		s.logger.Info("object uploaded", "bucket", s.bucket, "key", key, "url", publicURL)
	}
	return publicURL, nil
}

func (s *Store) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.mc.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if !exists {
			if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
				s.initErr = fmt.Errorf("s3: create bucket: %w", err)
				return
			}
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, s.bucket)
		if err := s.mc.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
			s.initErr = fmt.Errorf("s3: set bucket policy: %w", err)
		}
	})
	return s.initErr
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}
