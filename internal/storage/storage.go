package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"video-clipper/internal/logging"
	"video-clipper/internal/metrics"
)

// Config holds the object-store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL overrides the derived public URL prefix. Useful
	// when clients reach the store through a CDN or different host.
	PublicBaseURL string
}

// Client uploads finished clip artifacts to object storage.
type Client struct {
	mc         *minio.Client
	bucket     string
	publicBase string
}

// New creates a storage client. It performs no network calls; use
// EnsureBucket at startup to verify connectivity.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	publicBase = strings.TrimRight(publicBase, "/")

	return &Client{
		mc:         mc,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", c.bucket, err)
	}
	logging.Info("Created storage bucket %q", c.bucket)
	return nil
}

// Upload writes the artifact under key and returns its public URL.
// PutObject overwrites an existing object at the same key, so repeated
// uploads are upserts, never conflicts.
func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	start := time.Now()

	_, err := c.mc.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})

	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("failed to upload %q: %w", key, err)
	}
	metrics.UploadsTotal.WithLabelValues("success").Inc()

	logging.Debug("Uploaded %s (%d bytes) in %s", key, size, time.Since(start))
	return c.ResolveURL(key), nil
}

// ResolveURL derives the public URL for a key. It is a pure string
// derivation; the store's URL scheme is deterministic and this never
// touches the network.
func (c *Client) ResolveURL(key string) string {
	return c.publicBase + "/" + strings.TrimLeft(key, "/")
}
