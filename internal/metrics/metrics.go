// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wifistate-go/internal/events"
	"wifistate-go/internal/netstate"
	"wifistate-go/internal/radio"
)

const namespace = "wifistate"

// Collector bundles the engine metrics. It observes probes and radio commands
// directly and everything else through the event bus.
type Collector struct {
	gatherer prometheus.Gatherer

	ProbeAttempts    *prometheus.CounterVec
	ProbeDuration    prometheus.Histogram
	Reachable        prometheus.Gauge
	StateRank        prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	RoundFailures    prometheus.Counter
	CyclesBlocked    prometheus.Counter
	RadioCommands    *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.ProbeAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_attempts_total",
		Help:      "Reachability probe attempts, labeled by result.",
	}, []string{"result"}), "probe_attempts_total"); err != nil {
		return nil, err
	}

	if c.ProbeDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "probe_duration_seconds",
		Help:      "Duration of a single reachability probe.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "probe_duration_seconds"); err != nil {
		return nil, err
	}

	if c.Reachable, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reachable",
		Help:      "1 when the last probe reached the target, 0 otherwise.",
	}), "reachable"); err != nil {
		return nil, err
	}

	if c.StateRank, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state_rank",
		Help:      "Rank of the current connectivity state (0 = disabled).",
	}), "state_rank"); err != nil {
		return nil, err
	}

	if c.StateTransitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_transitions_total",
		Help:      "Accepted state transitions, labeled by the new state.",
	}, []string{"state"}), "state_transitions_total"); err != nil {
		return nil, err
	}

	if c.RoundFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "round_failures_total",
		Help:      "Probe rounds in which every attempt failed.",
	}), "round_failures_total"); err != nil {
		return nil, err
	}

	if c.CyclesBlocked, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "radio_cycles_blocked_total",
		Help:      "Automatic radio cycles suppressed by the cycle guard.",
	}), "radio_cycles_blocked_total"); err != nil {
		return nil, err
	}

	if c.RadioCommands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "radio_commands_total",
		Help:      "Radio commands, labeled by command and result.",
	}, []string{"command", "result"}), "radio_commands_total"); err != nil {
		return nil, err
	}

	if c.Notifications, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Indicator updates, labeled by action (show or clear).",
	}, []string{"action"}), "notifications_total"); err != nil {
		return nil, err
	}

	c.Reachable.Set(1)
	return c, nil
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveProbe implements reachability.ProbeObserver.
func (c *Collector) ObserveProbe(ok bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ProbeAttempts.WithLabelValues(resultLabel(ok)).Inc()
	c.ProbeDuration.Observe(elapsed.Seconds())
}

// ObserveRadioCommand implements radio.CommandObserver.
func (c *Collector) ObserveRadioCommand(command string, _ int, res radio.Result) {
	if c == nil {
		return
	}
	c.RadioCommands.WithLabelValues(command, resultLabel(res.OK)).Inc()
}

// Consume updates metrics from bus events until ctx is done or ch is closed.
func (c *Collector) Consume(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Collector) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.StateChanged:
		data, ok := ev.Data.(events.StateChangeData)
		if !ok {
			return
		}
		state := netstate.ConnectivityState(data.NewState)
		c.StateTransitions.WithLabelValues(state.String()).Inc()
		if rank := state.Rank(); rank >= 0 {
			c.StateRank.Set(float64(rank))
		}

	case events.ReachabilityChanged:
		if data, ok := ev.Data.(events.ReachabilityData); ok {
			c.Reachable.Set(boolGauge(data.Reachable))
		}

	case events.MonitorStarted, events.MonitorStopped:
		c.Reachable.Set(1)

	case events.RoundFailed:
		c.RoundFailures.Inc()

	case events.CycleBlocked:
		c.CyclesBlocked.Inc()

	case events.NotificationShown:
		c.Notifications.WithLabelValues("show").Inc()

	case events.NotificationCleared:
		c.Notifications.WithLabelValues("clear").Inc()
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
