package apiclient

import "github.com/prometheus/client_golang/prometheus"

// Refresh outcomes
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshMissing = "missing" // 401 with no refresh token stored
)

// Metrics counts requests and token refreshes. A nil *Metrics records nothing.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
}

// NewMetrics creates the client collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comptamaroc",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "API requests sent, by method and response status code.",
		}, []string{"method", "code"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comptamaroc",
			Subsystem: "client",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts triggered by 401 responses, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Refreshes)
	}
	return m
}

func (m *Metrics) observeRequest(method, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}
