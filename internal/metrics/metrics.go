// metrics содержит Prometheus-метрики сервиса.
//
// Все методы безопасны для nil-получателя: компоненты, собранные без метрик
// (например, в тестах), просто ничего не считают.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bytebot_auth"

// Metrics: набор коллекторов сервиса.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	gateRejections  *prometheus.CounterVec
	mfaVerification *prometheus.CounterVec
	presence        *prometheus.CounterVec
}

// New регистрирует коллекторы в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome (session, mfa_required, invalid_credentials, error).",
		}, []string{"outcome"}),
		gateRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_gate_rejections_total",
			Help:      "Requests rejected by the session gate by reason (missing, invalid, expired, revoked, unavailable).",
		}, []string{"reason"}),
		mfaVerification: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mfa_verifications_total",
			Help:      "TOTP verifications by flow (setup, login) and result.",
		}, []string{"flow", "result"}),
		presence: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_updates_total",
			Help:      "Presence updates by status and result.",
		}, []string{"status", "result"}),
	}
}

// ObserveHTTP учитывает завершённый HTTP-запрос.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}

	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Login учитывает исход попытки входа.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}

	m.logins.WithLabelValues(outcome).Inc()
}

// GateRejected учитывает отказ Session Gate.
func (m *Metrics) GateRejected(reason string) {
	if m == nil {
		return
	}

	m.gateRejections.WithLabelValues(reason).Inc()
}

// MFAVerification учитывает проверку TOTP-кода.
func (m *Metrics) MFAVerification(flow, result string) {
	if m == nil {
		return
	}

	m.mfaVerification.WithLabelValues(flow, result).Inc()
}

// Presence учитывает обновление статуса присутствия.
func (m *Metrics) Presence(status, result string) {
	if m == nil {
		return
	}

	m.presence.WithLabelValues(status, result).Inc()
}
