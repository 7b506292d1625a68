package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	slotsProvisioned prometheus.Counter
	joins            *prometheus.CounterVec
	messagesSent     prometheus.Counter
	streamPublishes  *prometheus.CounterVec
	ocrRequests      *prometheus.CounterVec
	ocrLatency       prometheus.Histogram
	groupsRetired    *prometheus.CounterVec
}

// NewPrometheus creates a PrometheusRecorder and registers its
// collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		slotsProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridesplit_slots_provisioned_total",
			Help: "Number of empty groups created for departure slots.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridesplit_joins_total",
			Help: "Join attempts by outcome.",
		}, []string{"outcome"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridesplit_messages_sent_total",
			Help: "Chat messages stored.",
		}),
		streamPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridesplit_stream_publishes_total",
			Help: "Realtime stream publishes by status.",
		}, []string{"status"}),
		ocrRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridesplit_ocr_requests_total",
			Help: "Receipt OCR requests by outcome.",
		}, []string{"outcome"}),
		ocrLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridesplit_ocr_latency_seconds",
			Help:    "Receipt OCR latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		groupsRetired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridesplit_groups_retired_total",
			Help: "Groups deleted by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		p.slotsProvisioned,
		p.joins,
		p.messagesSent,
		p.streamPublishes,
		p.ocrRequests,
		p.ocrLatency,
		p.groupsRetired,
	)

	return p
}

func (p *PrometheusRecorder) AddSlotsProvisioned(n int) { p.slotsProvisioned.Add(float64(n)) }

func (p *PrometheusRecorder) IncJoin(outcome string) { p.joins.WithLabelValues(outcome).Inc() }

func (p *PrometheusRecorder) IncMessageSent() { p.messagesSent.Inc() }

func (p *PrometheusRecorder) IncStreamPublish(status string) {
	p.streamPublishes.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncOCRRequest(outcome string) {
	p.ocrRequests.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveOCRDuration(duration time.Duration) {
	p.ocrLatency.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) AddGroupsRetired(reason string, n int) {
	p.groupsRetired.WithLabelValues(reason).Add(float64(n))
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
