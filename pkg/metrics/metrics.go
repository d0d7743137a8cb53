package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"chatwire/pkg/bus"
)

// Collector turns message lifecycle events and fragment counts into Prometheus series.
// A nil *Collector is valid and records nothing.
type Collector struct {
	messagesTotal  *prometheus.CounterVec
	handleSeconds  *prometheus.HistogramVec
	fragmentsTotal *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "channel",
			Name:      "messages_total",
			Help:      "User messages handled per input channel and outcome",
		}, []string{"channel", "status"}),
		handleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatwire",
			Subsystem: "channel",
			Name:      "handle_seconds",
			Help:      "Time spent generating the response to one user message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		fragmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "channel",
			Name:      "fragments_total",
			Help:      "Response fragments written to webhook clients",
		}, []string{"channel", "mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(c.messagesTotal, c.handleSeconds, c.fragmentsTotal)
	return c
}

// Observe records one bus event. Received events are not counted; only outcomes are.
func (c *Collector) Observe(event bus.Event) {
	if c == nil {
		return
	}

	var status string
	switch event.Type {
	case bus.EventMessageCompleted:
		status = "ok"
	case bus.EventMessageFailed:
		status = "error"
	default:
		return
	}

	c.messagesTotal.WithLabelValues(event.Channel, status).Inc()
	if event.Duration > 0 {
		c.handleSeconds.WithLabelValues(event.Channel).Observe(event.Duration.Seconds())
	}
}

// ObserveFragments counts fragments written by one webhook request.
func (c *Collector) ObserveFragments(channel, mode string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.fragmentsTotal.WithLabelValues(channel, mode).Add(float64(count))
}

// Run consumes events until the channel closes or ctx is done.
func (c *Collector) Run(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.Observe(event)
		}
	}
}
