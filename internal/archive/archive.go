// Package archive persists raw fetched profile content as blobs, keyed by
// content hash so re-fetches of identical pages never duplicate storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Archiver stores one profile's raw content and returns a stable URI for it.
type Archiver interface {
	Store(ctx context.Context, profileURL string, content []byte) (string, error)
}

// Noop discards everything. It is the default backend so local runs never
// require cloud credentials.
type Noop struct{}

// Store drops the content and reports an empty URI.
func (Noop) Store(context.Context, string, []byte) (string, error) { return "", nil }

// GCS writes blobs to a Google Cloud Storage bucket under a fixed prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewGCS initializes a GCS client and verifies the bucket is reachable, so a
// misconfigured archive fails at startup instead of mid-run.
// Authentication uses Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close storage client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get bucket %q attributes: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Store uploads the content and returns its gs:// URI.
func (g *GCS) Store(ctx context.Context, profileURL string, content []byte) (string, error) {
	object := ObjectPath(g.prefix, profileURL, content)
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := w.Write(content); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			g.logger.Warn("failed to close object writer after write failure",
				zap.String("object", object), zap.Error(closeErr))
		}
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// ObjectPath builds the blob key: {prefix}/{profile slug}/{sha256 hex}.txt.
// The slug keeps listings browsable; the hash makes identical content land on
// the same object.
func ObjectPath(prefix, profileURL string, content []byte) string {
	sum := sha256.Sum256(content)
	return path.Join(prefix, slug(profileURL), hex.EncodeToString(sum[:])+".txt")
}

func slug(profileURL string) string {
	u, err := url.Parse(profileURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." {
		return "unknown"
	}
	return strings.ToLower(base)
}

// Memory keeps blobs in a map for tests.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory returns an empty in-memory archiver.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Store records the content under its object path with a mem:// URI.
func (m *Memory) Store(_ context.Context, profileURL string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object := ObjectPath("profiles", profileURL, content)
	m.blobs[object] = bytes.Clone(content)
	return "mem://" + object, nil
}

// Len reports how many distinct blobs have been stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
