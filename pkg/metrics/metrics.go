package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"settings-bridge/pkg/channel"
	"settings-bridge/pkg/events"
)

// unknownLabel replaces caller-chosen names that no handler serves.
const unknownLabel = "unknown"

// Metrics exposes call and launch counters for the bridge.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	launches *prometheus.CounterVec

	// known reports whether a channel is registered; nil treats every channel as unknown.
	known func(channel string) bool
}

// New registers the bridge collectors on reg. known bounds the channel label
// to registered channels, typically (*channel.Registry).Has.
func New(reg prometheus.Registerer, known func(channel string) bool) *Metrics {
	m := &Metrics{
		known: known,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settings_bridge",
			Name:      "calls_total",
			Help:      "Dispatched channel calls by response kind.",
		}, []string{"channel", "method", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settings_bridge",
			Name:      "call_duration_seconds",
			Help:      "Time spent handling a channel call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "method"}),
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settings_bridge",
			Name:      "launches_total",
			Help:      "Settings launch outcomes by the screen that opened.",
		}, []string{"outcome", "opened"}),
	}
	reg.MustRegister(m.calls, m.duration, m.launches)
	return m
}

// ObserveCall is a channel.Observer. Channel and method names come from callers,
// so only registered channels and methods their handler implemented keep their
// names; everything else is counted as "unknown".
func (m *Metrics) ObserveCall(call *channel.Call, resp *channel.Response, elapsed time.Duration) {
	channelName, method := unknownLabel, unknownLabel
	if m.known != nil && m.known(call.Channel) {
		channelName = call.Channel
		if !resp.NotImplemented {
			method = call.Method
		}
	}
	m.calls.WithLabelValues(channelName, method, resp.Kind()).Inc()
	m.duration.WithLabelValues(channelName, method).Observe(elapsed.Seconds())
}

// Publish records a launch outcome.
func (m *Metrics) Publish(_ string, evt events.LaunchEvent) {
	opened := evt.Opened
	if opened == "" {
		opened = "none"
	}
	m.launches.WithLabelValues(evt.Outcome, opened).Inc()
}
