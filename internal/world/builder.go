package world

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/generator"
	"github.com/annel0/voxel-world/internal/world/mesh"
	"github.com/annel0/voxel-world/internal/world/remesh"
)

// BuilderOptions зависимости Builder. Пустые поля заполняются по конфигурации.
type BuilderOptions struct {
	Config      *config.Config
	Registry    block.Registry
	Generator   Generator
	Persistence Persistence
	Host        MeshHost
	Bus         eventbus.EventBus
	Registerer  prometheus.Registerer
	Logger      *logging.Logger
}

// Builder фасад воксельного мира: правки блоков, потоковая загрузка
// чанков и покадровое применение мешей
type Builder struct {
	cfg       *config.Config
	log       *logging.Logger
	mesher    *mesh.Mesher
	scheduler *remesh.Scheduler
	manager   *ChunkManager

	once        sync.Once
	shutdownErr error
}

// NewBuilder собирает мешер, планировщик и менеджер чанков
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if opts.Registry == nil {
		opts.Registry = block.NewDefaultRegistry()
	}
	if opts.Generator == nil {
		gen, err := generator.New(cfg.World.Generator, cfg.World.Seed)
		if err != nil {
			return nil, err
		}
		opts.Generator = gen
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetChunksLogger()
	}

	mesher := mesh.NewMesher(opts.Registry)
	scheduler := remesh.NewScheduler(mesher.Build, remesh.Options{
		Workers:           cfg.Scheduler.Workers,
		MaxApplyPerUpdate: cfg.Scheduler.MaxApplyPerUpdate,
		ResultBuffer:      cfg.Scheduler.ResultBuffer,
		ShutdownTimeout:   cfg.Scheduler.ShutdownTimeout,
		Registerer:        opts.Registerer,
	})

	manager, err := NewChunkManager(ManagerOptions{
		WorldID:               cfg.World.ID,
		Edge:                  cfg.World.ChunkEdge,
		Registry:              opts.Registry,
		Generator:             opts.Generator,
		Persistence:           opts.Persistence,
		Host:                  opts.Host,
		Remesher:              scheduler,
		Bus:                   opts.Bus,
		LoaderWorkers:         cfg.Loader.Workers,
		MaxIntegratePerUpdate: cfg.Loader.MaxIntegratePerUpdate,
		RetryDelay:            cfg.Loader.RetryDelay,
		MaxRetryDelay:         cfg.Loader.MaxRetryDelay,
		Logger:                opts.Logger,
		Registerer:            opts.Registerer,
	})
	if err != nil {
		_ = scheduler.Shutdown(context.Background())
		return nil, err
	}

	return &Builder{
		cfg:       cfg,
		log:       opts.Logger,
		mesher:    mesher,
		scheduler: scheduler,
		manager:   manager,
	}, nil
}

// Manager возвращает менеджер чанков
func (b *Builder) Manager() *ChunkManager {
	return b.manager
}

// SetBlock изменяет блок, при необходимости создавая чанк синхронно
func (b *Builder) SetBlock(pos vec.Vec3, id block.BlockID) error {
	return b.manager.SetBlock(pos, id)
}

// SetBlocks применяет пакет правок
func (b *Builder) SetBlocks(edits []BlockEdit) error {
	return b.manager.SetBlocks(edits)
}

// GetBlock возвращает блок или block.UngeneratedBlockID
func (b *Builder) GetBlock(pos vec.Vec3, createChunk bool) block.BlockID {
	return b.manager.GetBlock(pos, createChunk)
}

// LoadChunkRegion загружает область чанков, true - появились новые загрузки
func (b *Builder) LoadChunkRegion(center, extents vec.Vec3) bool {
	return b.manager.LoadChunkRegion(center, extents)
}

// RegionReady сообщает, что вся область в Ready
func (b *Builder) RegionReady(center, extents vec.Vec3) bool {
	return b.manager.RegionReady(center, extents)
}

// LoadChunkAsync ставит чанк на загрузку, true - загрузка поставлена этим вызовом
func (b *Builder) LoadChunkAsync(pos vec.Vec3) bool {
	return b.manager.LoadChunkAsync(pos)
}

// UnloadChunk сохраняет и выгружает чанк
func (b *Builder) UnloadChunk(pos vec.Vec3) error {
	return b.manager.UnloadChunk(pos)
}

// UnloadChunksOutside выгружает чанки вне области
func (b *Builder) UnloadChunksOutside(center, extents vec.Vec3) int {
	return b.manager.UnloadChunksOutside(center, extents)
}

// ActiveTasks число задач перестроения в очереди и в работе
func (b *Builder) ActiveTasks() int {
	return b.scheduler.ActiveTasks()
}

// Update один кадр хоста
func (b *Builder) Update() UpdateStats {
	return b.manager.Update()
}

// SaveWorld сохраняет изменённые чанки
func (b *Builder) SaveWorld() error {
	return b.manager.SaveWorld()
}

// Shutdown останавливает планировщик, сохраняет мир, освобождает меши и
// останавливает загрузчики. Повторный вызов возвращает тот же результат.
func (b *Builder) Shutdown() error {
	b.once.Do(func() {
		b.log.Info("🛑 Остановка мира %s...", b.cfg.World.ID)

		var errs []error
		if err := b.scheduler.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := b.manager.SaveWorld(); err != nil {
			errs = append(errs, err)
		}
		if err := b.manager.Close(); err != nil {
			errs = append(errs, err)
		}
		b.shutdownErr = errors.Join(errs...)

		if b.shutdownErr != nil {
			b.log.Error("❌ Мир %s остановлен с ошибками: %v", b.cfg.World.ID, b.shutdownErr)
		} else {
			b.log.Info("✅ Мир %s остановлен", b.cfg.World.ID)
		}
	})
	return b.shutdownErr
}
