package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

func TestHandlerExposesComponentMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Recognition.RecordOperation(metrics.OpCommit, metrics.StatusSuccess)
	m.Enrollment.SetStoreSize(2, 30)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `faceattend_recognition_operations_total{operation="commit",status="success"} 1`)
	assert.Contains(t, string(body), "faceattend_store_identities 2")
	assert.Contains(t, string(body), "go_goroutines")
}
