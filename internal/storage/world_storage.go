package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// BadgerChunkStore хранит чанки во встроенной BadgerDB
type BadgerChunkStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	log     *logging.Logger
}

// NewBadgerChunkStore открывает (или создаёт) базу в dataPath/chunks
func NewBadgerChunkStore(dataPath string) (*BadgerChunkStore, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	logger := logging.GetStorageLogger()
	logger.Info("💾 Хранилище чанков открыто: %s", dbPath)

	return &BadgerChunkStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		log:     logger,
	}, nil
}

// Close закрывает хранилище данных
func (s *BadgerChunkStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}

// SaveChunk сохраняет сетку чанка
func (s *BadgerChunkStore) SaveChunk(ctx context.Context, worldID string, pos vec.Vec3, grid *chunk.BlockGrid) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := chunk.Encode(grid)
	key := chunkKey(worldID, pos)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	s.log.Trace("чанк %s сохранён (%d байт)", key, len(data))
	return nil
}

// LoadChunk загружает сетку чанка
func (s *BadgerChunkStore) LoadChunk(ctx context.Context, worldID string, pos vec.Vec3) (*chunk.BlockGrid, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, false, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(chunkKey(worldID, pos)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		// Чанк ещё не сохранялся
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	grid, err := chunk.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("чанк %s: %w", chunkKey(worldID, pos), err)
	}
	return grid, true, nil
}

// SaveWorld записывает отметку сохранения мира и сбрасывает данные на диск
func (s *BadgerChunkStore) SaveWorld(ctx context.Context, worldID string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrNotReady
	}

	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(worldKey(worldID)), stamp)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения мира: %w", err)
	}

	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("ошибка синхронизации BadgerDB: %w", err)
	}
	return nil
}

// LastSaved возвращает время последнего SaveWorld для мира
func (s *BadgerChunkStore) LastSaved(worldID string) (time.Time, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return time.Time{}, false, ErrNotReady
	}

	var stamp []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(worldKey(worldID)))
		if err != nil {
			return err
		}
		stamp, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	t, err := time.Parse(time.RFC3339Nano, string(stamp))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("world %s: bad save stamp: %w", worldID, err)
	}
	return t, true, nil
}

// CountChunks возвращает количество сохранённых чанков мира
func (s *BadgerChunkStore) CountChunks(worldID string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return 0, ErrNotReady
	}

	prefix := []byte(fmt.Sprintf("chunk:%s:", worldID))
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
