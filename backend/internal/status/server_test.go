package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"papergraph/backend/internal/batch"
)

type fixedSource batch.Summary

func (f fixedSource) Snapshot() batch.Summary {
	return batch.Summary(f)
}

func newTestRouter(s batch.Summary) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(fixedSource(s), time.Now(), zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(batch.Summary{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestProgressEndpoint(t *testing.T) {
	router := newTestRouter(batch.Summary{
		RunID:                 "run-1",
		Total:                 10,
		Pending:               3,
		InProgress:            2,
		Succeeded:             3,
		SucceededWithFallback: 1,
		Failed:                1,
		Skipped:               4,
		TopFailures:           []batch.Reason{{Reason: "timeout", Count: 1}},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/progress", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		RunID       string         `json:"run_id"`
		Total       int            `json:"total"`
		Pending     int            `json:"pending"`
		Succeeded   int            `json:"succeeded"`
		Fallback    int            `json:"succeeded_with_fallback"`
		Failed      int            `json:"failed"`
		Skipped     int            `json:"skipped"`
		TopFailures []batch.Reason `json:"top_failures"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "run-1", response.RunID)
	assert.Equal(t, 10, response.Total)
	assert.Equal(t, 3, response.Pending)
	assert.Equal(t, 3, response.Succeeded)
	assert.Equal(t, 1, response.Fallback)
	assert.Equal(t, 1, response.Failed)
	assert.Equal(t, 4, response.Skipped)
	assert.Equal(t, []batch.Reason{{Reason: "timeout", Count: 1}}, response.TopFailures)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := newTestRouter(batch.Summary{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/graph", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/progress", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
