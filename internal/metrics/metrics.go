// Package metrics holds the Prometheus collectors shared by every binary.
// They register on the default registry; expose them with promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_records_read_total",
		Help: "Total number of trip records loaded from batch sources.",
	})
	RecordsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_records_filtered_total",
		Help: "Total number of trip records dropped by the admissible-duration filter.",
	})
	RecordsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_records_scored_total",
		Help: "Total number of scored records written to sinks.",
	})
	BatchesSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_batches_succeeded_total",
		Help: "Total number of batches scored and published.",
	})
	BatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_batches_failed_total",
		Help: "Total number of batches aborted by an error.",
	})
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ride_duration_batch_duration_seconds",
		Help:    "Wall time of a full batch run.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})
	PredictionsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_http_predictions_total",
		Help: "Total number of single-ride predictions served over HTTP.",
	})
	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_duration_stream_messages_total",
		Help: "Stream messages handled, by outcome (scored, failed).",
	}, []string{"outcome"})
	MirrorWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ride_duration_mirror_write_failures_total",
		Help: "Best-effort mirror writes that failed after the primary sink published.",
	})
)

// ObserveBatch records the counts of one finished batch.
func ObserveBatch(read, scored int, seconds float64, err error) {
	RecordsRead.Add(float64(read))
	BatchDuration.Observe(seconds)
	if err != nil {
		BatchesFailed.Inc()
		return
	}
	RecordsFiltered.Add(float64(read - scored))
	RecordsScored.Add(float64(scored))
	BatchesSucceeded.Inc()
}
