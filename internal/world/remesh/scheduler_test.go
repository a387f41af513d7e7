package remesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
	"github.com/annel0/voxel-world/internal/world/mesh"
)

// gatedBuild строит фиктивный квад, ширина которого равна ID блока (0,0,0) снимка.
// Пока gate не закрыт (или не получил значение), воркер блокируется.
type gatedBuild struct {
	started chan Key
	gate    chan struct{}
}

func newGatedBuild() *gatedBuild {
	return &gatedBuild{
		started: make(chan Key, 64),
		gate:    make(chan struct{}),
	}
}

func (g *gatedBuild) build(ctx context.Context, s *chunk.Snapshot, material int) ([]mesh.Quad, error) {
	g.started <- Key{Chunk: s.Position, Material: material}
	<-g.gate
	return []mesh.Quad{{Material: material, Width: int(s.Grid.At(0, 0, 0)), Height: 1}}, nil
}

func instantBuild(_ context.Context, s *chunk.Snapshot, material int) ([]mesh.Quad, error) {
	return []mesh.Quad{{Material: material, Width: int(s.Grid.At(0, 0, 0)), Height: 1}}, nil
}

// snapshotWith создаёт снимок 2x2x2, помеченный блоком marker в (0,0,0)
func snapshotWith(pos vec.Vec3, marker block.BlockID) *chunk.Snapshot {
	g := chunk.NewBlockGrid(2)
	_, _ = g.Set(vec.Vec3{}, marker)
	var borders [block.SideCount]chunk.BorderSlice
	for _, side := range block.AllSides {
		borders[side] = chunk.UngeneratedSlice(side, 2)
	}
	return chunk.NewSnapshot(pos, g, borders)
}

func newTestScheduler(t *testing.T, build BuildFunc, opts Options) *Scheduler {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	s := NewScheduler(build, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool { return s.ActiveTasks() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func collect(s *Scheduler) ([]*Result, UpdateStats) {
	var applied []*Result
	stats := s.Update(func(r *Result) bool {
		applied = append(applied, r)
		return true
	})
	return applied, stats
}

func TestScheduler_AppliesResults(t *testing.T) {
	s := newTestScheduler(t, instantBuild, Options{})

	pos := vec.Vec3{X: 1}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 5), Materials: []int{0, mesh.CollisionMaterial}}))
	waitIdle(t, s)

	applied, stats := collect(s)
	assert.Equal(t, 2, stats.Applied)
	assert.Equal(t, 0, stats.Discarded)
	require.Len(t, applied, 2)

	materials := []int{applied[0].Material, applied[1].Material}
	assert.ElementsMatch(t, []int{0, mesh.CollisionMaterial}, materials)
	assert.Equal(t, pos, applied[0].Chunk)
	assert.Equal(t, 1, applied[0].Mesh.QuadCount())
}

func TestScheduler_CoalescesPendingRequests(t *testing.T) {
	gb := newGatedBuild()
	s := newTestScheduler(t, gb.build, Options{})

	busy := vec.Vec3{X: 9}
	require.True(t, s.Enqueue(Request{Position: busy, Snapshot: snapshotWith(busy, 1), Materials: []int{0}}))
	<-gb.started // единственный воркер занят

	pos := vec.Vec3{Y: 1}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 2), Materials: []int{0}}))
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 3), Materials: []int{0}}))
	assert.Equal(t, 2, s.ActiveTasks(), "второй запрос должен заменить первый в очереди")

	close(gb.gate)
	waitIdle(t, s)

	applied, stats := collect(s)
	assert.Equal(t, 2, stats.Applied)

	for _, r := range applied {
		if r.Chunk == pos {
			assert.Equal(t, 3, r.Mesh.Quads[0].Width, "применяется более поздний снимок")
		}
	}
}

func TestScheduler_SupersedesInFlight(t *testing.T) {
	gb := newGatedBuild()
	s := newTestScheduler(t, gb.build, Options{})

	pos := vec.Vec3{Z: 4}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0}}))
	<-gb.started // первая версия уже строится

	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 2), Materials: []int{0}}))

	close(gb.gate)
	waitIdle(t, s)

	applied, stats := collect(s)
	assert.Equal(t, 1, stats.Applied, "ровно один результат на ключ")
	assert.Equal(t, 1, stats.Discarded)
	require.Len(t, applied, 1)
	assert.Equal(t, 2, applied[0].Mesh.Quads[0].Width, "победителем должен быть более поздний снимок")
}

func TestScheduler_BoundedUpdate(t *testing.T) {
	s := newTestScheduler(t, instantBuild, Options{MaxApplyPerUpdate: 2, Workers: 2})

	for i := 0; i < 5; i++ {
		pos := vec.Vec3{X: i}
		require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0}}))
	}
	waitIdle(t, s)

	_, stats := collect(s)
	assert.Equal(t, 2, stats.Applied)
	_, stats = collect(s)
	assert.Equal(t, 2, stats.Applied)
	_, stats = collect(s)
	assert.Equal(t, 1, stats.Applied)
	_, stats = collect(s)
	assert.Equal(t, 0, stats.Applied+stats.Discarded, "Update без результатов не блокируется")
}

func TestScheduler_Cancel(t *testing.T) {
	gb := newGatedBuild()
	s := newTestScheduler(t, gb.build, Options{})

	inflight := vec.Vec3{X: 1}
	queued := vec.Vec3{X: 2}
	require.True(t, s.Enqueue(Request{Position: inflight, Snapshot: snapshotWith(inflight, 1), Materials: []int{0}}))
	<-gb.started
	require.True(t, s.Enqueue(Request{Position: queued, Snapshot: snapshotWith(queued, 1), Materials: []int{0, 1}}))
	assert.Equal(t, 3, s.ActiveTasks())

	s.Cancel(queued)
	assert.Equal(t, 1, s.ActiveTasks(), "задачи из очереди сняты")

	s.Cancel(inflight)
	close(gb.gate)
	waitIdle(t, s)

	applied, stats := collect(s)
	assert.Empty(t, applied)
	assert.Equal(t, 1, stats.Discarded, "результат выгруженного чанка отброшен")
}

func TestScheduler_ApplierRejects(t *testing.T) {
	s := newTestScheduler(t, instantBuild, Options{})

	pos := vec.Vec3{}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0}}))
	waitIdle(t, s)

	stats := s.Update(func(*Result) bool { return false })
	assert.Equal(t, 0, stats.Applied)
	assert.Equal(t, 1, stats.Discarded)
}

func TestScheduler_InvalidSnapshotDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := mesh.NewMesher(block.NewDefaultRegistry())
	s := newTestScheduler(t, m.Build, Options{Registerer: reg})

	bad := snapshotWith(vec.Vec3{}, block.StoneBlockID)
	bad.Borders[block.SideXNeg] = chunk.BorderSlice{}

	require.True(t, s.Enqueue(Request{Position: vec.Vec3{}, Snapshot: bad, Materials: []int{block.MaterialStone}}))
	waitIdle(t, s)

	_, stats := collect(s)
	assert.Equal(t, 0, stats.Applied+stats.Discarded, "ошибочный запрос не даёт результата")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.failed))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.enqueued))
	assert.Zero(t, trackedKeys(s), "неудачная сборка не оставляет версию ключа")
}

func trackedKeys(s *Scheduler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}

// failingFirstBuild падает на первой сборке и ждёт gate на второй
type failingFirstBuild struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	gate    chan struct{}
}

func (f *failingFirstBuild) build(ctx context.Context, s *chunk.Snapshot, material int) ([]mesh.Quad, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	f.started <- struct{}{}
	<-f.gate
	if first {
		return nil, mesh.ErrInvalidGrid
	}
	return instantBuild(ctx, s, material)
}

func TestScheduler_FailedBuildKeepsNewerVersion(t *testing.T) {
	fb := &failingFirstBuild{started: make(chan struct{}, 4), gate: make(chan struct{})}
	s := newTestScheduler(t, fb.build, Options{Workers: 1})
	req := func(marker block.BlockID) Request {
		return Request{Position: vec.Vec3{}, Snapshot: snapshotWith(vec.Vec3{}, marker), Materials: []int{block.MaterialStone}}
	}

	require.True(t, s.Enqueue(req(block.StoneBlockID)))
	<-fb.started
	// Первая версия в работе, вторая ждёт в очереди
	require.True(t, s.Enqueue(req(block.DirtBlockID)))
	close(fb.gate)
	waitIdle(t, s)

	applied, stats := collect(s)
	require.Len(t, applied, 1)
	assert.Equal(t, uint64(2), applied[0].Version)
	assert.Equal(t, int(block.DirtBlockID), applied[0].Mesh.Quads[0].Width)
	assert.Zero(t, stats.Discarded)
	assert.Zero(t, trackedKeys(s))
}

func TestScheduler_EnqueueAfterShutdown(t *testing.T) {
	s := NewScheduler(instantBuild, Options{Workers: 2})
	require.NoError(t, s.Shutdown(context.Background()))

	pos := vec.Vec3{}
	assert.False(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0}}))
	assert.Equal(t, 0, s.ActiveTasks())

	_, stats := collect(s)
	assert.Equal(t, 0, stats.Applied)

	// Повторный вызов безопасен
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestScheduler_ShutdownDropsQueue(t *testing.T) {
	gb := newGatedBuild()
	s := NewScheduler(gb.build, Options{Workers: 1})

	pos := vec.Vec3{}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0, 1, 2}}))
	<-gb.started

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Shutdown(context.Background()))
	}()

	require.Eventually(t, func() bool { return s.ActiveTasks() == 1 }, time.Second, 5*time.Millisecond)
	close(gb.gate)
	wg.Wait()

	assert.Equal(t, 0, s.ActiveTasks())
}

func TestScheduler_ShutdownTimeout(t *testing.T) {
	gb := newGatedBuild()
	s := NewScheduler(gb.build, Options{Workers: 1, ShutdownTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { close(gb.gate) })

	pos := vec.Vec3{}
	require.True(t, s.Enqueue(Request{Position: pos, Snapshot: snapshotWith(pos, 1), Materials: []int{0}}))
	<-gb.started

	err := s.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrShutdownTimeout)
}
