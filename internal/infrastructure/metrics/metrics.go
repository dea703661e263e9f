package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/copy_follower/internal/domain"
)

// Recorder counts processed plans. It is registered with the dispatcher as
// an outcome sink.
type Recorder struct {
	registry *prometheus.Registry

	outcomes  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	clamped   prometheus.Counter
	riskScore prometheus.Histogram
	overshoot prometheus.Histogram
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "follower_outcomes_total",
			Help: "Processed follow plans by terminal status.",
		}, []string{"status", "action"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "follower_sizing_fallback_total",
			Help: "Entries that kept the source quantity or were rejected while sizing.",
		}, []string{"reason"}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "follower_quantity_clamped_total",
			Help: "Entries raised to the exchange minimum quantity.",
		}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "follower_risk_score",
			Help:    "Risk score of assessed plans.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		overshoot: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "follower_clamp_overshoot_ratio",
			Help:    "Margin committed above target after a minimum quantity clamp.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 50},
		}),
	}
	registry.MustRegister(r.outcomes, r.fallbacks, r.clamped, r.riskScore, r.overshoot)
	return r
}

func (r *Recorder) Publish(_ context.Context, o domain.Outcome) error {
	r.outcomes.WithLabelValues(string(o.Status), string(o.Action)).Inc()
	if o.Sizing.Fallback != "" {
		r.fallbacks.WithLabelValues(o.Sizing.Fallback).Inc()
	}
	if o.Sizing.Clamped {
		r.clamped.Inc()
		r.overshoot.Observe(o.Sizing.OvershootRatio)
	}
	switch o.Status {
	case domain.StatusInvalid, domain.StatusAlreadyHandled, domain.StatusCancelled:
	default:
		r.riskScore.Observe(o.Risk.RiskScore)
	}
	return nil
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
