package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/storage"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
	"github.com/annel0/voxel-world/internal/world/remesh"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.ID = "test"
	cfg.World.ChunkEdge = testEdge
	cfg.World.Generator = "flat"
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.ShutdownTimeout = time.Second
	cfg.Loader.RetryDelay = time.Millisecond
	return cfg
}

type eventRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *eventRecorder) handle(_ context.Context, ev *eventbus.Envelope) {
	r.mu.Lock()
	r.counts[ev.EventType]++
	r.mu.Unlock()
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[eventType]
}

func TestBuilder_StreamEditSaveShutdown(t *testing.T) {
	store := storage.NewMemoryChunkStore()
	host := NewMemoryMeshHost()
	bus := eventbus.NewMemoryBus(256)
	defer bus.Close()

	rec := &eventRecorder{counts: make(map[string]int)}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, rec.handle)
	require.NoError(t, err)

	b, err := NewBuilder(BuilderOptions{
		Config:      testConfig(),
		Persistence: store,
		Host:        host,
		Bus:         bus,
		Registerer:  prometheus.NewRegistry(),
		Logger:      quietLogger("chunks"),
	})
	require.NoError(t, err)

	center, extents := vec.Vec3{}, vec.Vec3{X: 1, Z: 1}
	assert.True(t, b.LoadChunkRegion(center, extents))
	require.Eventually(t, func() bool {
		b.Update()
		return b.RegionReady(center, extents)
	}, 3*time.Second, time.Millisecond)
	assert.False(t, b.LoadChunkRegion(center, extents))

	// Плоский мир: трава на y=3, воздух с y=4
	assert.Equal(t, block.GrassBlockID, b.GetBlock(vec.Vec3{X: 5, Y: 3, Z: -7}, false))
	assert.Equal(t, block.AirBlockID, b.GetBlock(vec.Vec3{X: 5, Y: 4, Z: -7}, false))

	require.NoError(t, b.SetBlocks([]BlockEdit{
		{Position: vec.Vec3{X: 1, Y: 4, Z: 1}, Block: block.GlassBlockID},
		{Position: vec.Vec3{X: 2, Y: 4, Z: 1}, Block: block.StoneBlockID},
	}))
	assert.Equal(t, block.GlassBlockID, b.GetBlock(vec.Vec3{X: 1, Y: 4, Z: 1}, false))

	require.Eventually(t, func() bool {
		b.Update()
		_, ok := host.Get(vec.Vec3{}, block.MaterialGlass)
		return ok && b.ActiveTasks() == 0
	}, 3*time.Second, time.Millisecond)
	assert.Positive(t, host.Stats().Live)

	require.NoError(t, b.SaveWorld())
	assert.Equal(t, 1, store.Len(), "сохраняется только изменённый чанк")

	assert.Equal(t, 8, b.UnloadChunksOutside(center, vec.Vec3{}))
	assert.Equal(t, 1, b.Manager().ChunkCount())

	require.NoError(t, b.Shutdown())
	require.NoError(t, b.Shutdown())
	assert.Zero(t, host.Stats().Live, "остановка освобождает все меши")

	assert.ErrorIs(t, b.SetBlock(vec.Vec3{}, block.StoneBlockID), ErrClosed)
	assert.False(t, b.LoadChunkAsync(vec.Vec3{X: 3}))
	assert.Equal(t, block.UngeneratedBlockID, b.GetBlock(vec.Vec3{}, true))
	snapshot := chunk.NewSnapshot(vec.Vec3{}, chunk.NewBlockGrid(testEdge), [block.SideCount]chunk.BorderSlice{})
	assert.False(t, b.scheduler.Enqueue(remesh.Request{Snapshot: snapshot, Materials: []int{block.MaterialStone}}))
	assert.Zero(t, b.ActiveTasks())

	require.Eventually(t, func() bool {
		return rec.count(eventbus.EventChunkReady) == 9 &&
			rec.count(eventbus.EventChunkUnloaded) == 8 &&
			rec.count(eventbus.EventWorldSaved) == 2
	}, 3*time.Second, time.Millisecond)
}

func TestBuilder_ReloadsSavedEdits(t *testing.T) {
	store := storage.NewMemoryChunkStore()
	pos := vec.Vec3{X: -3, Y: 10, Z: 4}

	first, err := NewBuilder(BuilderOptions{Config: testConfig(), Persistence: store, Logger: quietLogger("chunks")})
	require.NoError(t, err)
	require.NoError(t, first.SetBlock(pos, block.SandBlockID))
	require.NoError(t, first.Shutdown())

	second, err := NewBuilder(BuilderOptions{Config: testConfig(), Persistence: store, Logger: quietLogger("chunks")})
	require.NoError(t, err)
	defer second.Shutdown()

	assert.Equal(t, block.UngeneratedBlockID, second.GetBlock(pos, true))
	require.Eventually(t, func() bool {
		second.Update()
		return second.GetBlock(pos, false) == block.SandBlockID
	}, 3*time.Second, time.Millisecond)
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.World.ChunkEdge = 10
	_, err := NewBuilder(BuilderOptions{Config: cfg})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.World.Generator = "caves"
	_, err = NewBuilder(BuilderOptions{Config: cfg})
	assert.Error(t, err)
}
