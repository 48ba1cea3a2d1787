// Package metrics exposes prometheus instrumentation for the chat pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the pipeline metrics. Register it once on a registry and
// share it across components.
type Recorder struct {
	turnsTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	recallMisses  *prometheus.CounterVec
	docsIndexed   prometheus.Counter
	chunksIndexed prometheus.Counter
}

// NewRecorder creates the pipeline metrics and registers them on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_turns_total",
			Help: "Chat turns processed, by outcome (done, failed, interrupted).",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gantry_turn_stage_duration_seconds",
			Help:    "Time spent per turn stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		recallMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_recall_failures_total",
			Help: "Long-term memory lookups that degraded to empty results.",
		}, []string{"source"}),
		docsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_documents_indexed_total",
			Help: "Documents successfully chunked and embedded.",
		}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gantry_document_chunks_indexed_total",
			Help: "Document chunks written to the vector engine.",
		}),
	}

	reg.MustRegister(r.turnsTotal, r.stageDuration, r.recallMisses, r.docsIndexed, r.chunksIndexed)
	return r
}

// Turn outcomes
const (
	OutcomeDone        = "done"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// ObserveTurn records a finished turn
func (r *Recorder) ObserveTurn(outcome string) {
	if r == nil {
		return
	}
	r.turnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of one turn stage
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveRecallFailure records a degraded memory lookup
func (r *Recorder) ObserveRecallFailure(source string) {
	if r == nil {
		return
	}
	r.recallMisses.WithLabelValues(source).Inc()
}

// ObserveIndexedDocument records a successful document indexing pass
func (r *Recorder) ObserveIndexedDocument(chunks int) {
	if r == nil {
		return
	}
	r.docsIndexed.Inc()
	r.chunksIndexed.Add(float64(chunks))
}
