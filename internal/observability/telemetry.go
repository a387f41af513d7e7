package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/logging"
)

// ShutdownFunc завершает экспорт трасс
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup включает трассировку, если она разрешена конфигурацией.
// Спаны remesh.build помечаются миром, размером чанка и числом воркеров.
func Setup(ctx context.Context, cfg *config.Config) (ShutdownFunc, error) {
	if !cfg.Telemetry.Enabled {
		return noopShutdown, nil
	}

	var exporterOpts []otlptracehttp.Option
	if cfg.Telemetry.Endpoint != "" {
		exporterOpts = append(exporterOpts,
			otlptracehttp.WithEndpoint(cfg.Telemetry.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	}

	return InitTelemetry(ctx, cfg.Telemetry.ServiceName, WorldAttributes(cfg), exporterOpts,
		trace.WithSampler(Sampler(cfg.Telemetry.SampleRatio)),
	)
}

// WorldAttributes атрибуты ресурса, по которым трассы разных миров различаются в коллекторе
func WorldAttributes(cfg *config.Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("voxel.world.id", cfg.World.ID),
		attribute.Int64("voxel.world.seed", cfg.World.Seed),
		attribute.String("voxel.world.generator", cfg.World.Generator),
		attribute.Int("voxel.chunk.edge", cfg.World.ChunkEdge),
		attribute.Int("voxel.remesh.workers", cfg.Scheduler.Workers),
		attribute.String("voxel.storage.backend", cfg.Storage.Backend),
	}
}

// Sampler выбирает семплирование: доля ratio от корневых трасс, дочерние следуют родителю
func Sampler(ratio float64) trace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return trace.ParentBased(trace.AlwaysSample())
	}
	return trace.ParentBased(trace.TraceIDRatioBased(ratio))
}

// InitTelemetry настраивает OTLP/HTTP экспортер и глобальный TracerProvider.
// attrs добавляются к ресурсу рядом с именем сервиса.
func InitTelemetry(ctx context.Context, serviceName string, attrs []attribute.KeyValue, exporterOpts []otlptracehttp.Option, opts ...trace.TracerProviderOption) (ShutdownFunc, error) {
	exp, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)...),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(append([]trace.TracerProviderOption{
		trace.WithBatcher(exp),
		trace.WithResource(res),
	}, opts...)...)

	otel.SetTracerProvider(tp)
	logging.Info("📡 Трассировка включена: service=%s", serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
