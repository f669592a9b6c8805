package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports call signaling metrics. It implements the
// services.Recorder interface.
type PrometheusCollector struct {
	callsPublishedTotal       *prometheus.CounterVec
	notificationsShownTotal   *prometheus.CounterVec
	callsAcceptedTotal        *prometheus.CounterVec
	notificationsExpiredTotal *prometheus.CounterVec
	cleanupDeletedTotal       *prometheus.CounterVec

	trackedRequests *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		callsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_calls_published_total",
			Help: "Total number of call requests published",
		}, []string{"room"}),

		notificationsShownTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_notifications_shown_total",
			Help: "Total number of incoming-call notifications shown",
		}, []string{"room"}),

		callsAcceptedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_calls_accepted_total",
			Help: "Total number of call requests accepted by the moderator",
		}, []string{"room"}),

		notificationsExpiredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_notifications_expired_total",
			Help: "Total number of notifications that timed out unanswered",
		}, []string{"room"}),

		cleanupDeletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_cleanup_deleted_total",
			Help: "Total number of call records deleted at session teardown",
		}, []string{"room"}),

		trackedRequests: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callwire_tracked_requests",
			Help: "Number of call requests tracked by this session",
		}, []string{"room"}),
	}
}

func (p *PrometheusCollector) CallPublished(roomName string) {
	p.callsPublishedTotal.WithLabelValues(roomName).Inc()
}

func (p *PrometheusCollector) NotificationShown(roomName string) {
	p.notificationsShownTotal.WithLabelValues(roomName).Inc()
}

func (p *PrometheusCollector) CallAccepted(roomName string) {
	p.callsAcceptedTotal.WithLabelValues(roomName).Inc()
}

func (p *PrometheusCollector) NotificationExpired(roomName string) {
	p.notificationsExpiredTotal.WithLabelValues(roomName).Inc()
}

func (p *PrometheusCollector) CleanupDeleted(roomName string, count int) {
	p.cleanupDeletedTotal.WithLabelValues(roomName).Add(float64(count))
}

func (p *PrometheusCollector) TrackedRequests(roomName string, count int) {
	p.trackedRequests.WithLabelValues(roomName).Set(float64(count))
}
