package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr        string        // Адрес Redis сервера
	Password    string        // Пароль (пустой если не требуется)
	DB          int           // Номер базы данных
	KeyPrefix   string        // Префикс для ключей
	DialTimeout time.Duration // Таймаут подключения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:        "localhost:6379",
		KeyPrefix:   "voxel",
		DialTimeout: 2 * time.Second,
	}
}

// RedisChunkStore хранит сетки чанков в Redis.
// Метаданные мира (время сохранения, число чанков) лежат в hash world:<id>.
type RedisChunkStore struct {
	client *redis.Client
	prefix string
	log    *logging.Logger
}

// NewRedisChunkStore создаёт хранилище и проверяет подключение
func NewRedisChunkStore(config *RedisConfig) (*RedisChunkStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := logging.GetStorageLogger()
	logger.Info("✅ Redis хранилище чанков подключено: %s", config.Addr)

	return NewRedisChunkStoreWithClient(client, config.KeyPrefix), nil
}

// NewRedisChunkStoreWithClient оборачивает готовый клиент
func NewRedisChunkStoreWithClient(client *redis.Client, prefix string) *RedisChunkStore {
	return &RedisChunkStore{
		client: client,
		prefix: prefix,
		log:    logging.GetStorageLogger(),
	}
}

func (s *RedisChunkStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// LoadChunk реализует ChunkStore
func (s *RedisChunkStore) LoadChunk(ctx context.Context, worldID string, pos vec.Vec3) (*chunk.BlockGrid, bool, error) {
	data, err := s.client.Get(ctx, s.key(chunkKey(worldID, pos))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get chunk %s: %w", pos, err)
	}

	grid, err := chunk.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return grid, true, nil
}

// SaveChunk реализует ChunkStore
func (s *RedisChunkStore) SaveChunk(ctx context.Context, worldID string, pos vec.Vec3, grid *chunk.BlockGrid) error {
	key := s.key(chunkKey(worldID, pos))

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, chunk.Encode(grid), 0)
	pipe.SAdd(ctx, s.key(worldKey(worldID)+":chunks"), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save chunk %s: %w", pos, err)
	}
	return nil
}

// SaveWorld реализует ChunkStore
func (s *RedisChunkStore) SaveWorld(ctx context.Context, worldID string) error {
	count, err := s.client.SCard(ctx, s.key(worldKey(worldID)+":chunks")).Result()
	if err != nil {
		return fmt.Errorf("redis count chunks: %w", err)
	}

	err = s.client.HSet(ctx, s.key(worldKey(worldID)),
		"saved_at", time.Now().UTC().Format(time.RFC3339Nano),
		"chunks", count,
	).Err()
	if err != nil {
		return fmt.Errorf("redis save world %s: %w", worldID, err)
	}

	s.log.Debug("мир %s сохранён в Redis (%d чанков)", worldID, count)
	return nil
}

// Close закрывает клиент
func (s *RedisChunkStore) Close() error {
	return s.client.Close()
}
