package gate

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rategate/pkg/metrics"
)

// Event describes one decision for the metrics side channel.
type Event struct {
	Route         string
	Type          string
	Authenticated bool
	Allowed       bool
	Blocked       bool
	RateLimited   bool
	Duration      time.Duration
}

// Recorder feeds decision events to Prometheus off the decision path. Record
// never blocks; when the buffer is full the event is dropped, since losing a
// counter increment is preferable to adding latency to an admit/deny
// decision.
type Recorder struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup

	decisions atomic.Int64
	denied    atomic.Int64
	blocked   atomic.Int64
}

// Stats is a point-in-time counter snapshot for the admin surface.
type Stats struct {
	Decisions int64 `json:"decisions"`
	Denied    int64 `json:"denied"`
	Blocked   int64 `json:"blocked"`
}

// NewRecorder creates and starts a Recorder.
func NewRecorder(m *metrics.Metrics, logger *slog.Logger) *Recorder {
	r := &Recorder{
		metrics: m,
		logger:  logger.With("component", "decision-recorder"),
		events:  make(chan Event, 1024),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues an event, dropping it if the buffer is full. The summary
// counters are updated before enqueueing so Stats stays exact even when the
// Prometheus side drops an event.
func (r *Recorder) Record(ev Event) {
	r.decisions.Add(1)
	if !ev.Allowed {
		r.denied.Add(1)
	}
	if ev.Blocked {
		r.blocked.Add(1)
	}

	select {
	case r.events <- ev:
	default:
		r.logger.Debug("decision event dropped", "route", ev.Route)
	}
}

// Stats returns the running decision counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Decisions: r.decisions.Load(),
		Denied:    r.denied.Load(),
		Blocked:   r.blocked.Load(),
	}
}

// Close stops the recorder after draining buffered events.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.events:
			r.apply(ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.events:
					r.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(ev Event) {
	route := metrics.NormalizeRoute(ev.Route)

	r.metrics.DecisionsTotal.WithLabelValues(
		route,
		ev.Type,
		boolLabel(ev.Authenticated),
		boolLabel(ev.Allowed),
	).Inc()

	if ev.Blocked {
		r.metrics.BlockedTotal.WithLabelValues(route).Inc()
	}
	if ev.RateLimited {
		r.metrics.RejectedTotal.WithLabelValues(route, ev.Type).Inc()
	}
	if ev.Duration > 0 {
		r.metrics.DecisionDuration.WithLabelValues(route).Observe(ev.Duration.Seconds())
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
