package monitor

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Instrument traffic.
	CommandsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scope_commands_issued_total",
		Help: "SCPI commands written to the instrument",
	})

	QueriesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scope_queries_issued_total",
		Help: "SCPI queries sent to the instrument",
	})

	InstrumentErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scope_instrument_errors_total",
		Help: "Errors reported by the instrument error queue",
	})

	// Waveform captures.
	CapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_captures_total",
			Help: "Waveform captures completed, by source channel",
		},
		[]string{"source"},
	)

	CaptureBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scope_capture_bytes_total",
		Help: "Raw waveform bytes transferred from the instrument",
	})

	CaptureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scope_capture_duration_seconds",
		Help:    "Time to configure and transfer one waveform",
		Buckets: prometheus.DefBuckets,
	})

	// Gateway connections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scope_gateway_active_connections",
		Help: "Currently connected gateway clients",
	})

	TotalConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scope_gateway_connections_total",
		Help: "Gateway client connections accepted",
	})

	// Publishing.
	PublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_publish_errors_total",
			Help: "Failed capture publications, by sink",
		},
		[]string{"sink"},
	)

	// Runtime.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scope_goroutines",
		Help: "Current goroutine count",
	})

	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scope_memory_usage_bytes",
		Help: "Heap bytes in use",
	})
)

type Monitor struct {
	log *logrus.Logger
}

func NewMonitor(log *logrus.Logger) *Monitor {
	prometheus.MustRegister(
		CommandsIssued,
		QueriesIssued,
		InstrumentErrors,
		CapturesTotal,
		CaptureBytes,
		CaptureDuration,
		ActiveConnections,
		TotalConnections,
		PublishErrors,
		GoroutineCount,
		MemoryUsage,
	)

	return &Monitor{log: log}
}

// StartMetricsServer serves /metrics and /health on its own port.
func (m *Monitor) StartMetricsServer(port int) {
	http.Handle("/metrics", promhttp.Handler())

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	m.log.Infof("metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			m.log.Errorf("metrics server error: %v", err)
		}
	}()
}

// StartRuntimeMonitor samples goroutine and heap gauges every 10 seconds.
func (m *Monitor) StartRuntimeMonitor() {
	ticker := time.NewTicker(10 * time.Second)

	go func() {
		for range ticker.C {
			GoroutineCount.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			MemoryUsage.Set(float64(memStats.Alloc))

			m.log.Debugf("goroutines: %d, heap: %.2f MB",
				runtime.NumGoroutine(),
				float64(memStats.Alloc)/1024/1024,
			)
		}
	}()
}
