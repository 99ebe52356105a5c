package util

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "worker")

	logger.Debug("hidden")
	logger.Info("render sweep finished", "rendered", 3)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "render sweep finished", rec["msg"])
	assert.Equal(t, "worker", rec["process"])
	assert.EqualValues(t, 3, rec["rendered"])
}

func TestNewLogger_Development(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "development", "server")

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "process=server")
}
