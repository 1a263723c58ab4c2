package chat

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the chat API.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	TokensTotal    *prometheus.CounterVec
	StreamDuration *prometheus.HistogramVec
	ActiveStreams  prometheus.Gauge
	RateLimited    prometheus.Counter
}

// NewMetrics registers the chat metrics once per process.
//
// Metrics:
//   - tutor_chat_requests_total{outcome} - chat requests by result code
//   - tutor_tokens_total{model,kind} - tokens by model and input/output/cached/reasoning
//   - tutor_stream_duration_seconds{model} - time from request to finished stream
//   - tutor_active_streams - streams currently producing
//   - tutor_rate_limited_total - requests rejected by the per-user limiter
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutor_chat_requests_total",
					Help: "Total number of chat requests by outcome",
				},
				[]string{"outcome"}, // "ok" or an error code such as "rate_limit:chat"
			),
			TokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutor_tokens_total",
					Help: "Total tokens consumed by model and kind",
				},
				[]string{"model", "kind"},
			),
			StreamDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tutor_stream_duration_seconds",
					Help:    "Duration of streamed responses in seconds",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
				},
				[]string{"model"},
			),
			ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "tutor_active_streams",
				Help: "Number of responses currently streaming",
			}),
			RateLimited: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tutor_rate_limited_total",
				Help: "Total requests rejected by the per-user rate limiter",
			}),
		}
	})
	return globalMetrics
}
