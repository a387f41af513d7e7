package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// ErrNotReady возвращается при обращении к закрытому хранилищу
var ErrNotReady = errors.New("storage: not ready")

// ChunkStore хранилище сеток чанков, ключ - (мир, позиция чанка)
type ChunkStore interface {
	// LoadChunk возвращает сохранённую сетку; found=false если чанк ещё не сохранялся
	LoadChunk(ctx context.Context, worldID string, pos vec.Vec3) (*chunk.BlockGrid, bool, error)
	SaveChunk(ctx context.Context, worldID string, pos vec.Vec3, grid *chunk.BlockGrid) error
	// SaveWorld фиксирует все сохранённые чанки мира
	SaveWorld(ctx context.Context, worldID string) error
	Close() error
}

// WorldInspector даёт сводку по сохранённому миру. Реализуется BadgerChunkStore.
type WorldInspector interface {
	LastSaved(worldID string) (time.Time, bool, error)
	CountChunks(worldID string) (int, error)
}

var _ WorldInspector = (*BadgerChunkStore)(nil)

// chunkKey ключ чанка: chunk:<world>:x:y:z
func chunkKey(worldID string, pos vec.Vec3) string {
	return fmt.Sprintf("chunk:%s:%d:%d:%d", worldID, pos.X, pos.Y, pos.Z)
}

// worldKey ключ метаданных мира
func worldKey(worldID string) string {
	return fmt.Sprintf("world:%s", worldID)
}

// NewFromConfig создаёт хранилище по конфигурации
func NewFromConfig(cfg config.StorageConfig) (ChunkStore, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryChunkStore(), nil
	case "badger":
		return NewBadgerChunkStore(cfg.GetPath())
	case "redis":
		return NewRedisChunkStore(&RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
