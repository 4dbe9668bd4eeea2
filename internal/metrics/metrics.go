package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtractionsTotal *prometheus.CounterVec
	GateRejections   *prometheus.CounterVec
	OCRDuration      prometheus.Histogram
	LLMDuration      prometheus.Histogram
	BatchesTotal     *prometheus.CounterVec
)

// Init registers all collectors on the default registry. Call once from main.
func Init() {
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_extractions_total",
			Help: "Terminal per-item extraction outcomes.",
		},
		[]string{"outcome"}, // success, duplicate, rejected, failed
	)

	GateRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_gate_rejections_total",
			Help: "Items rejected by a quality gate before or after the LLM call.",
		},
		[]string{"gate"}, // url, ocr_text, llm_response
	)

	OCRDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_ocr_duration_seconds",
			Help:    "Duration of OCR inference per item.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	LLMDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_llm_duration_seconds",
			Help:    "Duration of LLM extraction calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_batches_total",
			Help: "Completed extraction batches by terminal status.",
		},
		[]string{"status"}, // completed, failed
	)
}
