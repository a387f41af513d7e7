package world

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики жизненного цикла чанков
type Metrics struct {
	ready      prometheus.Gauge
	generating prometheus.Gauge
	loads      *prometheus.CounterVec
	failures   prometheus.Counter
	unloads    prometheus.Counter
	edits      prometheus.Counter
}

// NewMetrics создаёт метрики; при reg == nil они не регистрируются
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "ready",
			Help:      "Чанков в состоянии Ready.",
		}),
		generating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "generating",
			Help:      "Чанков, ожидающих загрузки или генерации.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "loads_total",
			Help:      "Загруженные чанки по источнику (store, generator).",
		}, []string{"source"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "load_failures_total",
			Help:      "Неудачные попытки загрузки или генерации.",
		}),
		unloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "unloads_total",
			Help:      "Выгруженные чанки.",
		}),
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "chunks",
			Name:      "block_edits_total",
			Help:      "Изменённые блоки.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ready, m.generating, m.loads, m.failures, m.unloads, m.edits)
	}
	return m
}
