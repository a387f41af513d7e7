package remesh

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики планировщика перестроения мешей
type Metrics struct {
	enqueued  prometheus.Counter
	coalesced prometheus.Counter
	built     prometheus.Counter
	failed    prometheus.Counter
	applied   prometheus.Counter
	discarded prometheus.Counter
	active    prometheus.Gauge
	buildTime prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg. nil reg - без регистрации.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "requests_enqueued_total",
			Help:      "Число поставленных в очередь задач (чанк, материал).",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "requests_coalesced_total",
			Help:      "Задачи, заменившие ещё не начатую задачу того же ключа.",
		}),
		built: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "meshes_built_total",
			Help:      "Успешно построенные меши.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "builds_failed_total",
			Help:      "Задачи, отброшенные из-за ошибки построения.",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "results_applied_total",
			Help:      "Результаты, применённые к чанкам.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "results_discarded_total",
			Help:      "Устаревшие результаты и результаты для выгруженных чанков.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "active_tasks",
			Help:      "Задачи в очереди и в работе.",
		}),
		buildTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Subsystem: "remesh",
			Name:      "build_duration_seconds",
			Help:      "Время построения одного меша.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.enqueued, m.coalesced, m.built, m.failed, m.applied, m.discarded, m.active, m.buildTime)
	}
	return m
}
