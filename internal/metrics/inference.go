package metrics

import "github.com/prometheus/client_golang/prometheus"

// Inference client Prometheus metrics.
var (
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "inference_requests_total",
			Help:      "Total number of inference requests",
		},
		[]string{"kind", "status"},
	)

	InferenceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gallery",
			Name:      "inference_request_duration_seconds",
			Help:      "Inference request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	InferenceCircuitOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gallery",
			Name:      "inference_circuit_opens_total",
			Help:      "Times the inference circuit breaker opened",
		},
	)

	InferenceQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gallery",
			Name:      "inference_queue_depth",
			Help:      "Requests waiting in the inference queue",
		},
	)
)

var inferenceRegistered bool

// RegisterInferenceMetrics registers inference metrics. Called once from main.
func RegisterInferenceMetrics() {
	if inferenceRegistered {
		return
	}
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceRequestDuration)
	prometheus.MustRegister(InferenceCircuitOpens)
	prometheus.MustRegister(InferenceQueueDepth)
	inferenceRegistered = true
}
