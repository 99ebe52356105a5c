// Package storage mirrors rendered images of public diagrams to object
// storage so they can be served from a CDN without touching the database.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/hugh/easy-diagrams/pkg/config"
)

// Mirror stores and removes objects by diagram id.
type Mirror interface {
	Put(ctx context.Context, diagramID string, image []byte) error
	Delete(ctx context.Context, diagramID string) error
}

// New builds the configured mirror. It returns nil for the "none" backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Mirror, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "s3":
		m, err := NewS3Mirror(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("mirroring public images to s3", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return m, nil
	case "gcs":
		m, err := NewGCSMirror(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("mirroring public images to gcs", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ObjectKey is where a diagram's image lives inside the bucket.
func ObjectKey(prefix, diagramID string) string {
	return path.Join(prefix, diagramID+".png")
}

// MemoryMirror keeps objects in a map. Used in tests.
type MemoryMirror struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{Objects: make(map[string][]byte)}
}

func (m *MemoryMirror) Put(_ context.Context, diagramID string, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[diagramID] = image
	return nil
}

func (m *MemoryMirror) Delete(_ context.Context, diagramID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, diagramID)
	return nil
}

func (m *MemoryMirror) Get(diagramID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Objects[diagramID]
	return b, ok
}

var (
	_ Mirror = (*S3Mirror)(nil)
	_ Mirror = (*GCSMirror)(nil)
	_ Mirror = (*MemoryMirror)(nil)
)
