package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/health", "200"))
	RecordAPIRequest(http.MethodGet, "/api/health", http.StatusOK, 10*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/health", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordSyncStep(t *testing.T) {
	failuresBefore := testutil.ToFloat64(SyncRunsTotal.WithLabelValues("alerts", "failure"))
	rowsBefore := testutil.ToFloat64(SyncRowsInserted.WithLabelValues("alerts"))

	RecordSyncStep("alerts", 3, nil)
	RecordSyncStep("alerts", 0, errors.New("db locked"))

	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(SyncRunsTotal.WithLabelValues("alerts", "failure")))
	assert.Equal(t, rowsBefore+3, testutil.ToFloat64(SyncRowsInserted.WithLabelValues("alerts")))
}
