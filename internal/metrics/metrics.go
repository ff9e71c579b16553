package metrics

import (
	"time"

	"ai-docchat-be/pkg/rag/graph"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_turns_total",
			Help: "Conversation turns by route and outcome",
		},
		[]string{"route", "outcome"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_stage_duration_seconds",
			Help:    "Duration of graph stages",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"stage"},
	)
	retrievedDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_retrieved_documents",
			Help:    "Documents returned by one retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
	classifierFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_classifier_fallbacks_total",
			Help: "Queries routed to retrieval because the classifier answer was unusable",
		},
	)
	ingestedChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_ingested_chunks_total",
			Help: "Chunks embedded and stored by the ingest consumer",
		},
	)
	malformedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_sse_malformed_frames_total",
			Help: "Stream frames skipped by the SSE decoder",
		},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, stageDuration, retrievedDocuments, classifierFallbacks, ingestedChunks, malformedFrames)
}

// Handler serves the default registry for Fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func TurnFinished(route, outcome string) {
	if route == "" {
		route = "none"
	}
	turnsTotal.WithLabelValues(route, outcome).Inc()
}

func ChunksIngested(n int) {
	ingestedChunks.Add(float64(n))
}

func MalformedFrame() {
	malformedFrames.Inc()
}

// Observer feeds graph stage measurements into the collectors.
type Observer struct{}

var _ graph.Observer = Observer{}

func (Observer) StageCompleted(stage graph.Node, elapsed time.Duration, _ error) {
	stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (Observer) ClassifierFallback(string) {
	classifierFallbacks.Inc()
}

func (Observer) DocumentsRetrieved(n int) {
	retrievedDocuments.Observe(float64(n))
}
