package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCompliant = "compliant"
	OutcomeViolating = "violating"
	OutcomeRetracted = "retracted"
	OutcomeError     = "error"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilienced",
			Name:      "evaluations_total",
			Help:      "Resilience evaluations handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	evaluationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resilienced",
			Name:      "evaluation_seconds",
			Help:      "Resilience evaluation latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resilienced",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the live channel was saturated.",
		},
	)

	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resilienced",
			Name:      "live_clients",
			Help:      "Connected visualization clients.",
		},
	)

	resourceUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resilienced",
			Name:      "resource_usage",
			Help:      "Host and process resource usage sampled by the monitor job.",
		},
		[]string{"scope", "resource"},
	)
)

const (
	ScopeSystem  = "system"
	ScopeProcess = "process"
)

// Register attaches resilienced collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		evaluationsTotal,
		evaluationDurationSeconds,
		notificationsDropped,
		liveClients,
		resourceUsage,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvaluation records one evaluation with its outcome label.
func ObserveEvaluation(operation, outcome string, duration time.Duration) {
	evaluationsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	evaluationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func NotificationDropped() {
	notificationsDropped.Inc()
}

func SetLiveClients(n int) {
	liveClients.Set(float64(n))
}

// SetResourceUsage records a cpu percentage and memory in MiB for the scope.
func SetResourceUsage(scope string, cpuPercent float64, memMiB uint64) {
	resourceUsage.WithLabelValues(scope, "cpu_percent").Set(cpuPercent)
	resourceUsage.WithLabelValues(scope, "memory_mib").Set(float64(memMiB))
}
