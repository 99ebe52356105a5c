package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/easy-diagrams/internal/api/handlers"
	"github.com/hugh/easy-diagrams/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	s := newServer(t)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp handlers.HealthResponse
	testutil.ParseJSONResponse(t, rr, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["database"])
	assert.NotContains(t, resp.Services, "redis")

	rr = s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	s := newServer(t)
	s.Cleanup()

	rr := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
