package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordExtraction(OutcomeSuccess)
	m.RecordExtraction(OutcomeSuccess)
	m.RecordExtraction(OutcomeCancelled)
	m.RecordSanitizerStage("repaired")
	m.RecordProposals(3, 2)
	m.RecordProposals(1, 0)
	m.RecordMerge(MergeNodeCreated, 2)
	m.RecordMerge(MergeEdgeSkipped, 0)
	m.ObserveInference(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.extractionRequests.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractionRequests.WithLabelValues(OutcomeCancelled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sanitizerStages.WithLabelValues("repaired")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.proposals.WithLabelValues("node")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.proposals.WithLabelValues("edge")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mergeItems.WithLabelValues(MergeNodeCreated)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.inferenceDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordExtraction(OutcomeFailed)
		m.ObserveInference(time.Second)
		m.RecordSanitizerStage("direct")
		m.RecordProposals(1, 1)
		m.RecordMerge(MergeFailed, 1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordExtraction(OutcomeEmpty)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `linkboard_extraction_requests_total{outcome="empty"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
