package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pkordes/ride-duration/internal/metrics"
)

func TestObserveBatch_Success(t *testing.T) {
	read := testutil.ToFloat64(metrics.RecordsRead)
	filtered := testutil.ToFloat64(metrics.RecordsFiltered)
	scored := testutil.ToFloat64(metrics.RecordsScored)
	ok := testutil.ToFloat64(metrics.BatchesSucceeded)

	metrics.ObserveBatch(10, 7, 0.2, nil)

	assert.Equal(t, read+10, testutil.ToFloat64(metrics.RecordsRead))
	assert.Equal(t, filtered+3, testutil.ToFloat64(metrics.RecordsFiltered))
	assert.Equal(t, scored+7, testutil.ToFloat64(metrics.RecordsScored))
	assert.Equal(t, ok+1, testutil.ToFloat64(metrics.BatchesSucceeded))
}

func TestObserveBatch_Failure(t *testing.T) {
	scored := testutil.ToFloat64(metrics.RecordsScored)
	failed := testutil.ToFloat64(metrics.BatchesFailed)

	metrics.ObserveBatch(5, 0, 0.1, errors.New("boom"))

	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.BatchesFailed))
	assert.Equal(t, scored, testutil.ToFloat64(metrics.RecordsScored), "failed batches publish nothing")
}
