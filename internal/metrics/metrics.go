package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	GenerationsTotal  *prometheus.CounterVec
	RubiesSpent       prometheus.Counter
	PaymentsConfirmed prometheus.Counter
	RubiesPurchased   prometheus.Counter
	TransfersTotal    prometheus.Counter
	RubiesTransferred prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rubybot_generations_total",
			Help: "Image generation attempts by outcome.",
		}, []string{"outcome"}),
		RubiesSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubybot_rubies_spent_total",
			Help: "Rubies debited for successful generations.",
		}),
		PaymentsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubybot_payments_confirmed_total",
			Help: "Payments confirmed and credited.",
		}),
		RubiesPurchased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubybot_rubies_purchased_total",
			Help: "Rubies credited through confirmed payments.",
		}),
		TransfersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubybot_transfers_total",
			Help: "Completed ruby transfers between users.",
		}),
		RubiesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rubybot_rubies_transferred_total",
			Help: "Rubies moved between users.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.GenerationsTotal,
		m.RubiesSpent,
		m.PaymentsConfirmed,
		m.RubiesPurchased,
		m.TransfersTotal,
		m.RubiesTransferred,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
