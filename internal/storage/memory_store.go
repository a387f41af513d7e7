package storage

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// MemoryChunkStore хранилище в памяти для тестов и локального запуска.
// Данные хранятся закодированными, как и в постоянных хранилищах.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]byte
	saved  map[string]time.Time
	closed bool
}

// NewMemoryChunkStore создаёт пустое хранилище
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		chunks: make(map[string][]byte),
		saved:  make(map[string]time.Time),
	}
}

// LoadChunk реализует ChunkStore
func (s *MemoryChunkStore) LoadChunk(ctx context.Context, worldID string, pos vec.Vec3) (*chunk.BlockGrid, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrNotReady
	}

	data, ok := s.chunks[chunkKey(worldID, pos)]
	if !ok {
		return nil, false, nil
	}
	grid, err := chunk.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return grid, true, nil
}

// SaveChunk реализует ChunkStore
func (s *MemoryChunkStore) SaveChunk(ctx context.Context, worldID string, pos vec.Vec3, grid *chunk.BlockGrid) error {
	data := chunk.Encode(grid)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotReady
	}
	s.chunks[chunkKey(worldID, pos)] = data
	return nil
}

// SaveWorld реализует ChunkStore
func (s *MemoryChunkStore) SaveWorld(ctx context.Context, worldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotReady
	}
	s.saved[worldID] = time.Now()
	return nil
}

// Len возвращает число сохранённых чанков
func (s *MemoryChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Close реализует ChunkStore
func (s *MemoryChunkStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
