package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"blockdoc/internal/docstore"
	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
	"blockdoc/internal/metrics"
	"blockdoc/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_RecordsEngineOperations(t *testing.T) {
	m := metrics.New()
	doc := docstore.NewDocument("doc")
	eng := engine.New(doc, policy.Default(), engine.WithRecorder(m))
	first := doc.Snapshot().ChildIDs(doc.PageID())[0]

	_, err := eng.InsertText(domain.Caret(first, 0), "a", nil)
	require.NoError(t, err)
	_, _ = eng.DeleteBackward(domain.Caret("missing", 0))

	out := scrape(t, m)
	assert.Contains(t, out, `blockdoc_operations_total{op="insertText",outcome="committed"} 1`)
	assert.Contains(t, out, `blockdoc_operations_total{op="deleteBackward",outcome="failed"} 1`)
	assert.Contains(t, out, `blockdoc_operation_duration_seconds_count{op="insertText"} 1`)
}

func TestMetrics_RelayCounters(t *testing.T) {
	m := metrics.New()
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.Frame("in", "change")
	m.ObserveOperation("noopOp", engine.OutcomeNoop, time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, "blockdoc_relay_clients 1")
	assert.Contains(t, out, `blockdoc_relay_frames_total{direction="in",type="change"} 1`)
	assert.Contains(t, out, `blockdoc_operations_total{op="noopOp",outcome="noop"} 1`)
}
