package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestS3Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newS3Metrics(reg)

	m.ObserveOperation("PutObject", 10*time.Millisecond, nil)
	m.ObserveOperation("PutObject", 10*time.Millisecond, errors.New("boom"))
	m.RecordBytes("PutObject", 512)
	m.ObserveBatch("PutObject", 3, 1, 20*time.Millisecond)
	m.ObserveBatch("PutObject", 3, 0, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("PutObject", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("PutObject", "error")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("PutObject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesTotal.WithLabelValues("PutObject", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesTotal.WithLabelValues("PutObject", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchFailures.WithLabelValues("PutObject")))
}

func TestVaultMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newVaultMetrics(reg)

	m.ObserveOperation("finalize", time.Millisecond, nil)
	m.RecordDedup(true)
	m.RecordDedup(false)
	m.RecordDedup(true)
	m.RecordFinalize(0)
	m.RecordFinalize(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dedupTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dedupTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finalizeTotal.WithLabelValues("finalized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finalizeTotal.WithLabelValues("missing_blocks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("finalize", "success")))
}

func TestConstructorsWithoutRegistry(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry initialized by another test")
	}
	assert.Nil(t, NewS3Metrics())
	assert.Nil(t, NewVaultMetrics())
}
