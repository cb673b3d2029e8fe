package notify

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats is a point-in-time copy of the dispatcher counters.
type Stats struct {
	Queued    int64 `json:"queued"`
	Attempts  int64 `json:"attempts"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Skipped   int64 `json:"skipped"`
}

type counter struct {
	n    atomic.Int64
	prom prometheus.Counter
}

func (c *counter) inc() {
	c.n.Add(1)
	c.prom.Inc()
}

type counters struct {
	queued, attempts, delivered, failed, dropped, skipped *counter
	depth                                                 prometheus.GaugeFunc
}

func newCounters(reg prometheus.Registerer, queueLen func() float64) *counters {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	mk := func(name, help string) *counter {
		return &counter{prom: f.NewCounter(prometheus.CounterOpts{
			Namespace: "frameforge",
			Subsystem: "webhook",
			Name:      name,
			Help:      help,
		})}
	}
	c := &counters{
		queued:    mk("queued_total", "Events accepted into the delivery queue."),
		attempts:  mk("attempts_total", "Delivery attempts, including retries."),
		delivered: mk("delivered_total", "Events delivered with a 2xx response."),
		failed:    mk("failed_attempts_total", "Delivery attempts that failed."),
		dropped:   mk("dropped_total", "Events dropped after the last attempt or on a full queue."),
		skipped:   mk("skipped_total", "Events not sent because the session webhook does not want them."),
	}
	c.depth = f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "frameforge",
		Subsystem: "webhook",
		Name:      "queue_depth",
		Help:      "Events waiting in the delivery queue.",
	}, queueLen)
	return c
}

func (c *counters) snapshot() Stats {
	return Stats{
		Queued:    c.queued.n.Load(),
		Attempts:  c.attempts.n.Load(),
		Delivered: c.delivered.n.Load(),
		Failed:    c.failed.n.Load(),
		Dropped:   c.dropped.n.Load(),
		Skipped:   c.skipped.n.Load(),
	}
}
