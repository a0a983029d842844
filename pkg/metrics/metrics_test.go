package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.File("JHU", OutcomeProcessed)
	m.File("JHU", OutcomeProcessed)
	m.File("JHU", OutcomeFailed)
	m.Rows("JHU", 10, 2, 1)
	m.Summary(3, 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues("JHU", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesTotal.WithLabelValues("JHU", OutcomeFailed)))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RowsInsertedTotal.WithLabelValues("JHU")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsSkippedTotal.WithLabelValues("JHU")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.SummaryRows))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.File("JHU", OutcomeProcessed)
	m.Rows("JHU", 1, 1, 1)
	m.Summary(1, 1)
	m.Stage("update", 1)
	require.NoError(t, m.WriteTextfile("/nonexistent/ncov.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.File("3GDXY", OutcomeProcessed)

	path := filepath.Join(t.TempDir(), "ncov.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ncov_files_total{outcome="processed",source="3GDXY"} 1`)
}
