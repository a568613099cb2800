package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	register    *prometheus.CounterVec
	login       *prometheus.CounterVec
	tokenChecks *prometheus.CounterVec
	hashSeconds *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		register: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "register_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "login_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		tokenChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authd",
			Name:      "token_validation_total",
			Help:      "Bearer token resolutions by result.",
		}, []string{"result"}),
		hashSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authd",
			Name:      "password_hash_seconds",
			Help:      "Time spent hashing or verifying passwords.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.register, m.login, m.tokenChecks, m.hashSeconds)
	}
	return m
}

func (m *Metrics) observeRegister(err error) {
	if m != nil {
		m.register.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) observeLogin(err error) {
	if m != nil {
		m.login.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) observeToken(err error) {
	if m != nil {
		m.tokenChecks.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) observeHash(op string, started time.Time) {
	if m != nil {
		m.hashSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}
}

// resultLabel keeps label cardinality bounded to the rejection kinds.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return Code(err)
}
