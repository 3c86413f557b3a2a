// Package metrics exposes session lifecycle counters to Prometheus.
package metrics

import (
	"time"

	"github.com/joy-dx/gosession/dto"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gosession"

type Collector struct {
	renewalsStarted  *prometheus.CounterVec
	renewalsFinished *prometheus.CounterVec
	renewalDuration  *prometheus.HistogramVec
	replays          *prometheus.CounterVec
	forcedLogouts    prometheus.Counter
	state            *prometheus.GaugeVec
}

// NewCollector registers the session collectors on reg. A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		renewalsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_started_total",
			Help:      "Credential renewal network calls started, by trigger.",
		}, []string{"trigger"}),
		renewalsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_finished_total",
			Help:      "Credential renewals finished, by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		renewalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "renewal_duration_seconds",
			Help:      "Latency of credential renewal calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_replays_total",
			Help:      "Requests replayed after a 401, by result.",
		}, []string{"result"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions ended because renewal was impossible.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
	}
	for _, col := range []prometheus.Collector{
		c.renewalsStarted, c.renewalsFinished, c.renewalDuration, c.replays, c.forcedLogouts, c.state,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	c.StateChanged(dto.SessionUnknown)
	return c, nil
}

func (c *Collector) RenewalStarted(trigger dto.RenewalTrigger) {
	c.renewalsStarted.WithLabelValues(string(trigger)).Inc()
}

func (c *Collector) RenewalFinished(trigger dto.RenewalTrigger, outcome dto.RenewalOutcome, elapsed time.Duration) {
	c.renewalsFinished.WithLabelValues(string(trigger), string(outcome)).Inc()
	c.renewalDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (c *Collector) RequestReplayed(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.replays.WithLabelValues(result).Inc()
}

func (c *Collector) ForcedLogout() {
	c.forcedLogouts.Inc()
}

func (c *Collector) StateChanged(state dto.SessionState) {
	for _, s := range []dto.SessionState{dto.SessionUnknown, dto.SessionAuthenticated, dto.SessionAnonymous} {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
}

// Noop discards everything.
type Noop struct{}

func (Noop) RenewalStarted(dto.RenewalTrigger)                                     {}
func (Noop) RenewalFinished(dto.RenewalTrigger, dto.RenewalOutcome, time.Duration) {}
func (Noop) RequestReplayed(bool)                                                  {}
func (Noop) ForcedLogout()                                                         {}
func (Noop) StateChanged(dto.SessionState)                                         {}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m dto.SessionMetrics) dto.SessionMetrics {
	if m == nil {
		return Noop{}
	}
	return m
}
