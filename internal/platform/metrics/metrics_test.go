package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/movement_intake/internal/core/domain"
)

func TestIntakeMetrics_Record(t *testing.T) {
	m := NewIntakeMetrics()

	m.IngestionTransition(domain.ChannelStructured, domain.IngestionCompleted, "")
	m.IngestionTransition(domain.ChannelStructured, domain.IngestionCompleted, "")
	m.IngestionTransition(domain.ChannelUnstructured, domain.IngestionError, domain.ErrorKindAnalysis)
	m.EntityResolved(domain.EntitySupplier, domain.MatchExact)
	m.SupersededDiscarded()
	m.DraftCommitted("create")
	m.ActiveDrafts(3)
	m.IngestionDuration(domain.ChannelStructured, 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("structured", "completed", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("unstructured", "error", "AnalysisFailed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("supplier", "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.superseded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("create")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.drafts))
}

func TestIntakeMetrics_Handler(t *testing.T) {
	m := NewIntakeMetrics()
	m.DraftCommitted("update")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `intake_draft_commits_total{mode="update"} 1`)
}
