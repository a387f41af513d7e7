package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/observability"
	"github.com/annel0/voxel-world/internal/storage"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/generator"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if cfg.Logging.Dir != "" {
		logging.GetLoggerManager().SetLogDir(cfg.Logging.Dir)
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevel(level)

	logging.Info("🧱 Запуск сервера воксельного мира %s (seed=%d, генератор=%s)", cfg.World.ID, cfg.World.Seed, cfg.World.Generator)

	if err := run(cfg, level); err != nil {
		logging.Error("❌ Сервер завершился с ошибкой: %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config, level logging.LogLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sizeWorkers(cfg)
	reportHost()

	// === ТЕЛЕМЕТРИЯ И МЕТРИКИ ===
	shutdownTracing, err := observability.Setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logging.Warn("Ошибка остановки трассировки: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsServer := startMetricsServer(cfg.Metrics, registry)

	// === ХРАНИЛИЩЕ, БЛОКИ, ГЕНЕРАТОР ===
	store, err := storage.NewFromConfig(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	blocks := block.NewDefaultRegistry()
	if cfg.Blocks.Definitions != "" {
		if blocks, err = block.LoadDefinitions(cfg.Blocks.Definitions); err != nil {
			return err
		}
	}
	logging.Info("🧩 Типов блоков: %d", blocks.Len())

	gen, err := generator.New(cfg.World.Generator, cfg.World.Seed)
	if err != nil {
		return err
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.Events)
	if err != nil {
		return err
	}
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Логирование событий недоступно: %v", err)
	}
	exporter := eventbus.NewMetricsExporter(bus, registry)
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	// === МИР ===
	host := world.NewMemoryMeshHost()
	builder, err := world.NewBuilder(world.BuilderOptions{
		Config:      cfg,
		Registry:    blocks,
		Generator:   gen,
		Persistence: store,
		Host:        host,
		Bus:         bus,
		Registerer:  registry,
	})
	if err != nil {
		return err
	}

	lm := logging.GetLoggerManager()
	for _, component := range lm.ListComponents() {
		_ = lm.SetLogLevel(component, level, level)
	}

	loop(ctx, cfg, builder, host, store)

	// === GRACEFUL SHUTDOWN ===
	logging.Info("📡 Завершение работы...")
	var errs []error
	if err := builder.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

// loop основной цикл: подгрузка области вокруг спавна, кадры Update и автосохранение
func loop(ctx context.Context, cfg *config.Config, builder *world.Builder, host *world.MemoryMeshHost, store storage.ChunkStore) {
	tickRate := cfg.Host.GetTickRate()
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	interval := cfg.Host.AutosaveInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	autosave := time.NewTicker(interval)
	defer autosave.Stop()

	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	r := cfg.Host.ViewRadius
	center := vec.Vec3{}
	extents := vec.Vec3{X: r, Y: max(1, r/2), Z: r}
	keep := extents.Add(vec.Vec3{X: 1, Y: 1, Z: 1})

	start := time.Now()
	regionReady := false
	var total world.UpdateStats

	logging.Info("✅ Мир запущен: %d тиков/с, радиус обзора %d чанков", tickRate, r)
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if builder.LoadChunkRegion(center, extents) {
				logging.Debug("Область вокруг спавна: новые чанки поставлены на загрузку")
			}
			if !regionReady && builder.RegionReady(center, extents) {
				regionReady = true
				logging.Info("🌍 Область вокруг спавна загружена за %v", time.Since(start).Truncate(time.Millisecond))
			}
			builder.UnloadChunksOutside(center, keep)

			stats := builder.Update()
			total.Integrated += stats.Integrated
			total.Failed += stats.Failed
			total.Applied += stats.Applied
			total.Discarded += stats.Discarded

		case <-autosave.C:
			if err := builder.SaveWorld(); err != nil {
				logging.Error("❌ Автосохранение: %v", err)
			}

		case <-report.C:
			hs := host.Stats()
			logging.Info("📊 Аптайм %s: чанков %d, загружено %d (ошибок %d), мешей %d (%d квадов), применено %d, отброшено %d, в очереди %d",
				formatUptime(start), builder.Manager().ChunkCount(), total.Integrated, total.Failed,
				hs.Live, hs.Quads, total.Applied, total.Discarded, builder.ActiveTasks())
			if summary := storeSummary(store, cfg.World.ID, time.Now()); summary != "" {
				logging.Info("💾 %s", summary)
			}
			reportHost()
		}
	}
}

func newEventBus(cfg config.EventsConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "nats":
		return eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	default:
		return eventbus.NewMemoryBus(1024), nil
	}
}

func startMetricsServer(cfg config.MetricsConfig, registry *prometheus.Registry) *http.Server {
	if !cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Addr:              cfg.GetMetricsAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("📈 Prometheus метрики на %s/metrics", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("❌ Сервер метрик: %v", err)
		}
	}()
	return srv
}

// storeSummary описывает сохранённый мир, если хранилище это умеет
func storeSummary(store storage.ChunkStore, worldID string, now time.Time) string {
	insp, ok := store.(storage.WorldInspector)
	if !ok {
		return ""
	}

	count, err := insp.CountChunks(worldID)
	if err != nil {
		return fmt.Sprintf("Хранилище недоступно: %v", err)
	}
	saved, found, err := insp.LastSaved(worldID)
	switch {
	case err != nil:
		return fmt.Sprintf("В хранилище %d чанков, время сохранения не прочитано: %v", count, err)
	case !found:
		return fmt.Sprintf("В хранилище %d чанков, мир ещё не сохранялся", count)
	default:
		return fmt.Sprintf("В хранилище %d чанков, последнее сохранение %v назад", count, now.Sub(saved).Truncate(time.Second))
	}
}
