package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-world/internal/vec"
)

// Config корневая структура конфигурации сервера мира.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Loader    LoaderConfig    `yaml:"loader"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Host      HostConfig      `yaml:"host"`
	Blocks    BlocksConfig    `yaml:"blocks"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type WorldConfig struct {
	ID        string `yaml:"id"`
	Seed      int64  `yaml:"seed"`
	ChunkEdge int    `yaml:"chunk_edge"`
	Generator string `yaml:"generator"` // flat | terrain
}

type SchedulerConfig struct {
	Workers           int           `yaml:"workers"` // 0 - по числу CPU
	MaxApplyPerUpdate int           `yaml:"max_apply_per_update"`
	ResultBuffer      int           `yaml:"result_buffer"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type LoaderConfig struct {
	Workers               int           `yaml:"workers"`
	MaxIntegratePerUpdate int           `yaml:"max_integrate_per_update"`
	RetryDelay            time.Duration `yaml:"retry_delay"`
	MaxRetryDelay         time.Duration `yaml:"max_retry_delay"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"` // memory | badger | redis
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type EventsConfig struct {
	Backend   string `yaml:"backend"` // memory | nats
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`     // host:port OTLP/HTTP, пусто - переменные OTEL_* или localhost:4318
	SampleRatio float64 `yaml:"sample_ratio"` // доля трасс remesh.build, 0 или 1 - все
}

type HostConfig struct {
	TickRate         int           `yaml:"tick_rate"`   // тиков в секунду
	ViewRadius       int           `yaml:"view_radius"` // в чанках
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
}

type BlocksConfig struct {
	Definitions string `yaml:"definitions"` // путь к YAML с описанием блоков, пусто - набор по умолчанию
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			ID:        "world",
			Seed:      42,
			ChunkEdge: 16,
			Generator: "terrain",
		},
		Scheduler: SchedulerConfig{
			MaxApplyPerUpdate: 32,
			ResultBuffer:      256,
			ShutdownTimeout:   5 * time.Second,
		},
		Loader: LoaderConfig{
			Workers:               2,
			MaxIntegratePerUpdate: 8,
			RetryDelay:            500 * time.Millisecond,
			MaxRetryDelay:         30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "data/world",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "voxel",
			},
		},
		Events: EventsConfig{
			Backend:   "memory",
			URL:       "nats://127.0.0.1:4222",
			Stream:    "VOXEL_EVENTS",
			Retention: 24,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":2112",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-world",
		},
		Host: HostConfig{
			TickRate:         20,
			ViewRadius:       3,
			AutosaveInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetMetricsAddr возвращает адрес метрик: config -> env -> default
func (m *MetricsConfig) GetMetricsAddr() string {
	return getStringWithEnvFallback(m.Addr, "VOXEL_METRICS_ADDR", ":2112")
}

// GetPath возвращает путь хранилища: config -> env -> default
func (s *StorageConfig) GetPath() string {
	return getStringWithEnvFallback(s.Path, "VOXEL_DATA_PATH", "data/world")
}

// GetTickRate возвращает частоту тиков с fallback на env
func (h *HostConfig) GetTickRate() int {
	return getIntWithEnvFallback(h.TickRate, "VOXEL_TICK_RATE", 20)
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultValue
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	var errs []error

	if !vec.IsPowerOfTwo(c.World.ChunkEdge) {
		errs = append(errs, fmt.Errorf("world.chunk_edge must be a power of two, got %d", c.World.ChunkEdge))
	}
	if c.World.ID == "" {
		errs = append(errs, errors.New("world.id must not be empty"))
	}
	switch c.World.Generator {
	case "flat", "terrain":
	default:
		errs = append(errs, fmt.Errorf("unknown world.generator %q", c.World.Generator))
	}
	switch c.Storage.Backend {
	case "memory", "badger", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Events.Backend {
	case "memory", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown events.backend %q", c.Events.Backend))
	}
	if c.Scheduler.Workers < 0 || c.Loader.Workers < 0 {
		errs = append(errs, errors.New("worker counts must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within [0,1], got %v", c.Telemetry.SampleRatio))
	}
	if c.Scheduler.MaxApplyPerUpdate <= 0 || c.Loader.MaxIntegratePerUpdate <= 0 {
		errs = append(errs, errors.New("per-update limits must be positive"))
	}

	return errors.Join(errs...)
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, берём дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}
