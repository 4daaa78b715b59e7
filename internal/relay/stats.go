package relay

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// stats holds relay statistics.
type stats struct {
	reg *prometheus.Registry

	registrations  prometheus.Counter
	keyLookups     *prometheus.CounterVec
	messagesStored prometheus.Counter
	purges         prometheus.Counter
	framesRouted   *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	online         prometheus.Gauge

	routedAtomic  atomic.Uint64
	droppedAtomic atomic.Uint64
	storedAtomic  atomic.Uint64
}

func newStats() *stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &stats{
		reg: reg,

		registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "pqrelay_registrations_total",
			Help: "Number of public keys published to the directory",
		}),
		keyLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pqrelay_key_lookups_total",
			Help: "Number of public key lookups by result",
		}, []string{"result"}),
		messagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "pqrelay_messages_stored_total",
			Help: "Number of message records appended",
		}),
		purges: f.NewCounter(prometheus.CounterOpts{
			Name: "pqrelay_purges_total",
			Help: "Number of conversation deletions",
		}),
		framesRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pqrelay_frames_routed_total",
			Help: "Number of presence frames delivered to a live connection",
		}, []string{"type"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pqrelay_frames_dropped_total",
			Help: "Number of presence frames dropped because the target was offline or slow",
		}, []string{"type"}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Name: "pqrelay_online_users",
			Help: "Number of users with a live presence connection",
		}),
	}
}

func (s *stats) frameRouted(typ string) {
	s.framesRouted.WithLabelValues(typ).Inc()
	s.routedAtomic.Add(1)
}

func (s *stats) frameDropped(typ string) {
	s.framesDropped.WithLabelValues(typ).Inc()
	s.droppedAtomic.Add(1)
}

func (s *stats) messageStored() {
	s.messagesStored.Inc()
	s.storedAtomic.Add(1)
}

func (s *stats) handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}
