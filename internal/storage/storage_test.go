package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/hugh/easy-diagrams/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "diagrams/abc.png", ObjectKey("diagrams/", "abc"))
	assert.Equal(t, "abc.png", ObjectKey("", "abc"))
}

func TestNew_None(t *testing.T) {
	m, err := New(context.Background(), config.StorageConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNew_Unknown(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}, nil)
	assert.Error(t, err)
}

func TestNew_S3WithStaticKeys(t *testing.T) {
	m, err := New(context.Background(), config.StorageConfig{
		Backend:         "s3",
		Bucket:          "bucket",
		Region:          "eu-west-1",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
	}, slogDiscard())
	require.NoError(t, err)
	assert.IsType(t, &S3Mirror{}, m)
}

func TestMemoryMirror(t *testing.T) {
	m := NewMemoryMirror()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "d1", []byte("png")))
	got, ok := m.Get("d1")
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	require.NoError(t, m.Delete(ctx, "d1"))
	_, ok = m.Get("d1")
	assert.False(t, ok)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
