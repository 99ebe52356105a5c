package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/hugh/easy-diagrams/pkg/config"
)

// GCSMirror authenticates with application default credentials.
type GCSMirror struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSMirror(ctx context.Context, cfg config.StorageConfig) (*GCSMirror, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSMirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *GCSMirror) Put(ctx context.Context, diagramID string, image []byte) error {
	w := m.client.Bucket(m.bucket).Object(ObjectKey(m.prefix, diagramID)).NewWriter(ctx)
	w.ContentType = "image/png"
	w.CacheControl = "public, max-age=60"

	if _, err := w.Write(image); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", diagramID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", diagramID, err)
	}
	return nil
}

func (m *GCSMirror) Delete(ctx context.Context, diagramID string) error {
	err := m.client.Bucket(m.bucket).Object(ObjectKey(m.prefix, diagramID)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", diagramID, err)
	}
	return nil
}

func (m *GCSMirror) Close() error {
	return m.client.Close()
}
