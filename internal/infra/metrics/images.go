package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(imagesGeneratedTotal, imageCallLatency, creditsDebitedTotal, referencesSkippedTotal)
}

var imagesGeneratedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "images_generated_total",
		Help: "Per-image generation outcomes, labeled by provider and outcome.",
	},
	[]string{"provider", "outcome"}, // 'billed', 'failed', 'unbilled'
)

var imageCallLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "image_calls_latency_ms",
		Help:    "Image service call latency distribution in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
	},
	[]string{"provider", "success"},
)

var creditsDebitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credits_debited_total",
		Help: "Credits debited per resolution tier.",
	},
	[]string{"resolution"},
)

var referencesSkippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reference_images_skipped_total",
		Help: "Reference images excluded from a request, labeled by reason.",
	},
	[]string{"reason"}, // 'svg', 'too_large', 'fetch_error'
)

func IncImage(provider, outcome string) {
	imagesGeneratedTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func ObserveImageCall(provider string, latencyMs int, success bool) {
	imageCallLatency.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func AddCreditsDebited(resolution string, n int) {
	creditsDebitedTotal.WithLabelValues(norm(resolution)).Add(float64(n))
}

func IncReferenceSkipped(reason string) {
	referencesSkippedTotal.WithLabelValues(norm(reason)).Inc()
}
