package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server.
type Metrics struct {
	game      *Game
	startTime time.Time

	playersConnected   prometheus.Gauge
	objectsTotal       prometheus.Gauge
	vrStatesTotal      prometheus.Gauge
	connectionsTotal   prometheus.Counter
	commandsTotal      prometheus.Counter
	narrativeTotal     prometheus.Counter
	narrativeFallbacks prometheus.Counter
	queueDepth         *prometheus.GaugeVec
	uptimeSeconds      prometheus.Gauge
	memoryHeapBytes    prometheus.Gauge
	goroutines         prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the game.
func NewMetrics(game *Game, startTime time.Time) *Metrics {
	m := &Metrics{
		game:      game,
		startTime: startTime,
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_players_connected",
			Help: "Number of currently connected players.",
		}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_objects_total",
			Help: "Total number of objects in the database.",
		}),
		vrStatesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_vr_states_total",
			Help: "Number of live subjective-reality states.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veilmush_connections_total",
			Help: "Total connections since server start.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veilmush_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		narrativeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veilmush_narrative_requests_total",
			Help: "Persona calls submitted to the narrative service.",
		}),
		narrativeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veilmush_narrative_fallbacks_total",
			Help: "Persona calls that failed and fell back to canned text.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "veilmush_queue_depth",
			Help: "Current command queue depth by type.",
		}, []string{"queue_type"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "veilmush_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.vrStatesTotal,
		m.connectionsTotal,
		m.commandsTotal,
		m.narrativeTotal,
		m.narrativeFallbacks,
		m.queueDepth,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// ConnectionOpened counts a new client connection.
func (m *Metrics) ConnectionOpened() { m.connectionsTotal.Inc() }

// ConnectionClosed is a hook for symmetry; the gauge refreshes in Update.
func (m *Metrics) ConnectionClosed() {}

// CommandProcessed counts one dispatched command.
func (m *Metrics) CommandProcessed() { m.commandsTotal.Inc() }

// NarrativeSubmitted counts one persona call handed to the service.
func (m *Metrics) NarrativeSubmitted() { m.narrativeTotal.Inc() }

// NarrativeFallback counts a persona call that fell back to canned text.
func (m *Metrics) NarrativeFallback() { m.narrativeFallbacks.Inc() }

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	m.playersConnected.Set(float64(len(m.game.Conns.ConnectedPlayers())))
	m.objectsTotal.Set(float64(m.game.DB.Size()))
	m.vrStatesTotal.Set(float64(m.game.Overlay.Count()))

	immediate, waiting := m.game.Queue.Stats()
	m.queueDepth.WithLabelValues("immediate").Set(float64(immediate))
	m.queueDepth.WithLabelValues("waiting").Set(float64(waiting))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	})
}
