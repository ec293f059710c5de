package lifecycle

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthServerReportsStartingBeforeFirstPublish(t *testing.T) {
	h := NewHealthServer()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 503, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "starting", body["status"])
}

func TestHealthServerReportsLastPublishedPhase(t *testing.T) {
	h := NewHealthServer()
	require.NoError(t, h.Publish(context.Background(), Context{Phase: BuybackPhase}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 200, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "BUYBACK_PHASE", body["phase"])
}
