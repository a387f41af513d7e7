package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
	"github.com/annel0/voxel-world/internal/world/mesh"
	"github.com/annel0/voxel-world/internal/world/remesh"
)

// ManagerOptions зависимости и параметры менеджера чанков
type ManagerOptions struct {
	WorldID     string
	Edge        int
	Registry    block.Registry
	Generator   Generator
	Persistence Persistence // nil - чанки только генерируются
	Host        MeshHost
	Remesher    Remesher
	Bus         eventbus.EventBus // nil - события не публикуются

	LoaderWorkers         int
	MaxIntegratePerUpdate int
	RetryDelay            time.Duration
	MaxRetryDelay         time.Duration

	Logger     *logging.Logger
	Registerer prometheus.Registerer
}

func (o *ManagerOptions) setDefaults() {
	if o.WorldID == "" {
		o.WorldID = "world"
	}
	if o.Edge <= 0 {
		o.Edge = 16
	}
	if o.Registry == nil {
		o.Registry = block.NewDefaultRegistry()
	}
	if o.Host == nil {
		o.Host = NewMemoryMeshHost()
	}
	if o.LoaderWorkers <= 0 {
		o.LoaderWorkers = 2
	}
	if o.MaxIntegratePerUpdate <= 0 {
		o.MaxIntegratePerUpdate = 8
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 30 * time.Second
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = o.RetryDelay
	}
	if o.Logger == nil {
		o.Logger = logging.GetChunksLogger()
	}
}

type loadJob struct {
	pos   vec.Vec3
	token uint64
}

type loadResult struct {
	pos       vec.Vec3
	token     uint64
	grid      *chunk.BlockGrid
	fromStore bool
	err       error
}

// ChunkManager владеет чанками мира: загрузка, правки, выгрузка и
// применение готовых мешей.
//
// Правки, Update и выгрузка выполняются на основном потоке хоста;
// загрузка и генерация идут в пуле загрузчиков, меши строит Remesher.
// Порядок блокировок: менеджер, затем планировщик.
type ChunkManager struct {
	opts     ManagerOptions
	edge     int
	reg      block.Registry
	gen      Generator
	store    Persistence
	host     MeshHost
	remesher Remesher
	bus      eventbus.EventBus
	log      *logging.Logger
	metrics  *Metrics

	mu      sync.Mutex
	chunks  map[vec.Vec3]*Chunk
	dirty   map[vec.Vec3]struct{}
	retries map[vec.Vec3]struct{}
	tokens  uint64
	closed  bool
	events  []*eventbus.Envelope

	loadMu    sync.Mutex
	loadQueue []loadJob
	loadWake  chan struct{}
	loaded    chan loadResult

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewChunkManager создаёт менеджер и запускает загрузчики
func NewChunkManager(opts ManagerOptions) (*ChunkManager, error) {
	opts.setDefaults()
	if !vec.IsPowerOfTwo(opts.Edge) {
		return nil, fmt.Errorf("chunk edge %d is not a power of two", opts.Edge)
	}
	if opts.Remesher == nil {
		return nil, errors.New("world: remesher is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ChunkManager{
		opts:     opts,
		edge:     opts.Edge,
		reg:      opts.Registry,
		gen:      opts.Generator,
		store:    opts.Persistence,
		host:     opts.Host,
		remesher: opts.Remesher,
		bus:      opts.Bus,
		log:      opts.Logger,
		metrics:  NewMetrics(opts.Registerer),
		chunks:   make(map[vec.Vec3]*Chunk),
		dirty:    make(map[vec.Vec3]struct{}),
		retries:  make(map[vec.Vec3]struct{}),
		loadWake: make(chan struct{}, 1),
		loaded:   make(chan loadResult, opts.LoaderWorkers*opts.MaxIntegratePerUpdate),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < opts.LoaderWorkers; i++ {
		m.wg.Add(1)
		go m.loader()
	}

	m.log.Info("🌍 Менеджер чанков мира %s запущен (ребро %d, загрузчиков %d)", opts.WorldID, opts.Edge, opts.LoaderWorkers)
	return m, nil
}

// Edge возвращает длину ребра чанка
func (m *ChunkManager) Edge() int {
	return m.edge
}

// GetBlock возвращает блок по мировым координатам.
// Для чанков не в Ready возвращает block.UngeneratedBlockID;
// при createChunk=true запускает фоновую загрузку.
func (m *ChunkManager) GetBlock(pos vec.Vec3, createChunk bool) block.BlockID {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	cpos := pos.ChunkCoords(m.edge)
	c, ok := m.chunks[cpos]
	if ok && c.ready() {
		local := pos.LocalInChunk(m.edge)
		return c.grid.At(local.X, local.Y, local.Z)
	}
	if createChunk && !m.closed {
		m.requestLoadLocked(cpos)
	}
	return block.UngeneratedBlockID
}

// SetBlock изменяет один блок, см. SetBlocks
func (m *ChunkManager) SetBlock(pos vec.Vec3, id block.BlockID) error {
	return m.SetBlocks([]BlockEdit{{Position: pos, Block: id}})
}

// SetBlocks применяет пакет правок. Незагруженные чанки загружаются или
// генерируются синхронно. Каждый затронутый чанк ставится на перестроение
// один раз за вызов. Правки в чанках, которые не удалось получить,
// пропускаются; их ошибки объединяются.
func (m *ChunkManager) SetBlocks(edits []BlockEdit) error {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	failed := make(map[vec.Vec3]error)
	for _, e := range edits {
		cpos := e.Position.ChunkCoords(m.edge)
		if _, skip := failed[cpos]; skip {
			continue
		}
		c, err := m.ensureReadyLocked(cpos)
		if err != nil {
			failed[cpos] = err
			continue
		}

		local := e.Position.LocalInChunk(m.edge)
		old, err := c.grid.Set(local, e.Block)
		if err != nil {
			failed[cpos] = err
			continue
		}
		if old == e.Block {
			continue
		}
		c.modified = true
		m.metrics.edits.Inc()
		m.markEditDirtyLocked(c, local, old, e.Block)
	}
	m.flushLocked()

	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, err := range failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadChunkAsync ставит чанк на фоновую загрузку.
// Возвращает true, если загрузка поставлена этим вызовом.
func (m *ChunkManager) LoadChunkAsync(pos vec.Vec3) bool {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	return m.requestLoadLocked(pos)
}

// LoadChunkRegion ставит на загрузку все чанки в параллелепипеде
// center±extents, ближние к центру первыми.
// Возвращает true, если хотя бы один чанк поставлен на загрузку впервые.
func (m *ChunkManager) LoadChunkRegion(center, extents vec.Vec3) bool {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	positions := regionPositions(center, extents)
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].DistanceSq(center) < positions[j].DistanceSq(center)
	})

	added := false
	for _, pos := range positions {
		if m.requestLoadLocked(pos) {
			added = true
		}
	}
	return added
}

// RegionReady сообщает, что все чанки в center±extents находятся в Ready
func (m *ChunkManager) RegionReady(center, extents vec.Vec3) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pos := range regionPositions(center, extents) {
		if c, ok := m.chunks[pos]; !ok || !c.ready() {
			return false
		}
	}
	return true
}

// UnloadChunk сохраняет изменения и выгружает чанк. При ошибке сохранения
// чанк остаётся в Ready, чтобы правки не потерялись.
func (m *ChunkManager) UnloadChunk(pos vec.Vec3) error {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	return m.unloadLocked(pos)
}

// UnloadChunksOutside выгружает чанки вне параллелепипеда center±extents.
// Возвращает число выгруженных чанков.
func (m *ChunkManager) UnloadChunksOutside(center, extents vec.Vec3) int {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0
	}

	var outside []vec.Vec3
	for pos := range m.chunks {
		if !insideRegion(pos, center, extents) {
			outside = append(outside, pos)
		}
	}

	unloaded := 0
	for _, pos := range outside {
		if err := m.unloadLocked(pos); err != nil {
			m.log.Warn("⚠️ Чанк %s не выгружен: %v", pos, err)
			continue
		}
		unloaded++
	}
	return unloaded
}

// Update выполняет один кадр: повторяет загрузки, у которых подошло время,
// принимает не более MaxIntegratePerUpdate готовых загрузок и применяет
// готовые меши. Не блокируется.
func (m *ChunkManager) Update() UpdateStats {
	var stats UpdateStats

	m.publishPending()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return stats
	}

	stats.Retried = m.requeueDueLocked()

pull:
	for pulled := 0; pulled < m.opts.MaxIntegratePerUpdate; pulled++ {
		select {
		case res := <-m.loaded:
			switch m.integrateLocked(res) {
			case integrateReady:
				stats.Integrated++
			case integrateFailed:
				stats.Failed++
			default:
				stats.Stale++
			}
		default:
			break pull
		}
	}

	m.flushLocked()
	m.mu.Unlock()
	m.publishPending()

	rs := m.remesher.Update(m.applyRemesh)
	stats.Applied = rs.Applied
	stats.Discarded = rs.Discarded
	stats.Remaining = rs.Remaining
	return stats
}

// SaveWorld сохраняет все изменённые чанки и фиксирует мир в хранилище.
// Чанк, который не удалось сохранить, остаётся изменённым.
func (m *ChunkManager) SaveWorld() error {
	defer m.publishPending()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	start := m.now()
	var errs []error
	saved, failed := 0, 0
	for pos, c := range m.chunks {
		if !c.ready() || !c.modified {
			continue
		}
		if err := m.store.SaveChunk(m.ctx, m.opts.WorldID, pos, c.grid); err != nil {
			failed++
			errs = append(errs, fmt.Errorf("save chunk %s: %w: %w", pos, ErrPersistenceFailure, err))
			continue
		}
		c.modified = false
		saved++
	}
	if err := m.store.SaveWorld(m.ctx, m.opts.WorldID); err != nil {
		errs = append(errs, fmt.Errorf("save world %s: %w: %w", m.opts.WorldID, ErrPersistenceFailure, err))
	}

	elapsed := m.now().Sub(start)
	if failed > 0 {
		m.log.Error("❌ Мир %s сохранён с ошибками: %d чанков сохранено, %d с ошибкой", m.opts.WorldID, saved, failed)
	} else {
		m.log.Info("💾 Мир %s сохранён: %d чанков за %v", m.opts.WorldID, saved, elapsed)
	}
	m.queueEvent(eventbus.EventWorldSaved, 5, eventbus.WorldSavedEvent{
		World:    m.opts.WorldID,
		Chunks:   saved,
		Failed:   failed,
		Duration: elapsed,
	})
	return errors.Join(errs...)
}

// Close освобождает меши всех чанков и останавливает загрузчики.
// Несохранённые изменения не записываются, сохранение выполняет вызывающий.
func (m *ChunkManager) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		released := 0
		for pos, c := range m.chunks {
			released += c.releaseMeshes()
			delete(m.chunks, pos)
		}
		m.dirty = make(map[vec.Vec3]struct{})
		m.retries = make(map[vec.Vec3]struct{})
		m.metrics.ready.Set(0)
		m.metrics.generating.Set(0)
		m.mu.Unlock()

		m.cancel()
		m.wg.Wait()
		m.log.Info("🛑 Менеджер чанков остановлен, освобождено мешей: %d", released)
	})
	return nil
}

// State возвращает состояние чанка
func (m *ChunkManager) State(pos vec.Vec3) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chunks[pos]; ok {
		return c.state
	}
	return StateUnloaded
}

// ChunkInfo возвращает копию состояния чанка
func (m *ChunkManager) ChunkInfo(pos vec.Vec3) (ChunkInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[pos]
	if !ok {
		return ChunkInfo{Position: pos, State: StateUnloaded}, false
	}
	return c.info(), true
}

// ChunkCount возвращает число чанков в памяти (любое состояние кроме Unloaded)
func (m *ChunkManager) ChunkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// Transform возвращает матрицу переноса чанка в мировые координаты
func (m *ChunkManager) Transform(pos vec.Vec3) mgl32.Mat4 {
	o := pos.ChunkOrigin(m.edge)
	return mgl32.Translate3D(float32(o.X), float32(o.Y), float32(o.Z))
}

// requestLoadLocked ставит загрузку, если чанка нет. true - чанк создан этим вызовом.
func (m *ChunkManager) requestLoadLocked(pos vec.Vec3) bool {
	if _, ok := m.chunks[pos]; ok {
		return false
	}
	c := newChunk(pos)
	m.chunks[pos] = c
	m.enqueueLoadLocked(c)
	m.updateGaugesLocked()
	return true
}

func (m *ChunkManager) enqueueLoadLocked(c *Chunk) {
	m.tokens++
	c.token = m.tokens

	m.loadMu.Lock()
	m.loadQueue = append(m.loadQueue, loadJob{pos: c.Position, token: c.token})
	m.loadMu.Unlock()

	select {
	case m.loadWake <- struct{}{}:
	default:
	}
}

// ensureReadyLocked возвращает чанк в Ready, при необходимости загружая
// его на вызывающем потоке. Фоновая загрузка этого чанка становится устаревшей.
func (m *ChunkManager) ensureReadyLocked(pos vec.Vec3) (*Chunk, error) {
	c, ok := m.chunks[pos]
	if ok && c.ready() {
		return c, nil
	}
	if !ok {
		c = newChunk(pos)
		m.chunks[pos] = c
	}
	m.tokens++
	c.token = m.tokens
	delete(m.retries, pos)

	grid, fromStore, err := m.load(m.ctx, pos)
	if err != nil {
		m.failLocked(c, err)
		return nil, err
	}
	m.makeReadyLocked(c, grid, fromStore)
	return c, nil
}

// load читает чанк из хранилища или генерирует новый
func (m *ChunkManager) load(ctx context.Context, pos vec.Vec3) (*chunk.BlockGrid, bool, error) {
	if m.store != nil {
		grid, found, err := m.store.LoadChunk(ctx, m.opts.WorldID, pos)
		if err != nil {
			return nil, false, fmt.Errorf("load chunk %s: %w: %w", pos, ErrPersistenceFailure, err)
		}
		if found {
			if grid.Edge() != m.edge {
				return nil, false, fmt.Errorf("load chunk %s: %w: stored edge %d, expected %d",
					pos, ErrPersistenceFailure, grid.Edge(), m.edge)
			}
			return grid, true, nil
		}
	}

	grid := chunk.NewBlockGrid(m.edge)
	if m.gen != nil {
		if err := m.gen.Generate(ctx, pos, grid); err != nil {
			return nil, false, fmt.Errorf("generate chunk %s: %w: %w", pos, ErrGenerationFailure, err)
		}
	}
	return grid, false, nil
}

type integrateOutcome int

const (
	integrateStale integrateOutcome = iota
	integrateReady
	integrateFailed
)

func (m *ChunkManager) integrateLocked(res loadResult) integrateOutcome {
	c, ok := m.chunks[res.pos]
	if !ok || c.state != StateGenerating || c.token != res.token {
		return integrateStale
	}
	if res.err != nil {
		m.failLocked(c, res.err)
		return integrateFailed
	}
	m.makeReadyLocked(c, res.grid, res.fromStore)
	return integrateReady
}

// failLocked оставляет чанк в Generating и назначает повтор с экспоненциальной задержкой
func (m *ChunkManager) failLocked(c *Chunk, err error) {
	c.attempt++
	c.lastErr = err
	delay := m.backoff(c.attempt)
	c.retryAt = m.now().Add(delay)
	m.retries[c.Position] = struct{}{}
	m.metrics.failures.Inc()
	m.updateGaugesLocked()

	m.log.Warn("⚠️ Чанк %s не загружен (попытка %d), повтор через %v: %v", c.Position, c.attempt, delay, err)
	m.queueEvent(eventbus.EventChunkFailed, 3, eventbus.ChunkEvent{
		World:    m.opts.WorldID,
		Position: c.Position,
		Attempt:  c.attempt,
		Error:    err.Error(),
	})
}

func (m *ChunkManager) backoff(attempt int) time.Duration {
	delay := m.opts.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.MaxRetryDelay {
			return m.opts.MaxRetryDelay
		}
	}
	return delay
}

func (m *ChunkManager) requeueDueLocked() int {
	if len(m.retries) == 0 {
		return 0
	}
	now := m.now()
	requeued := 0
	for pos := range m.retries {
		c, ok := m.chunks[pos]
		if !ok || c.state != StateGenerating {
			delete(m.retries, pos)
			continue
		}
		if now.Before(c.retryAt) {
			continue
		}
		delete(m.retries, pos)
		m.enqueueLoadLocked(c)
		requeued++
	}
	return requeued
}

// makeReadyLocked переводит чанк в Ready и ставит на перестроение его
// и соседей по общей границе
func (m *ChunkManager) makeReadyLocked(c *Chunk, grid *chunk.BlockGrid, fromStore bool) {
	c.grid = grid
	c.state = StateReady
	c.attempt = 0
	c.lastErr = nil
	c.modified = false
	delete(m.retries, c.Position)

	c.markDirty(mesh.Materials(m.reg, grid)...)
	if mesh.HasSolid(m.reg, grid) {
		c.markDirty(mesh.CollisionMaterial)
	}
	m.dirty[c.Position] = struct{}{}

	for _, side := range block.AllSides {
		if n := m.readyChunkLocked(c.Position.Add(side.Normal())); n != nil {
			m.markBorderDirtyLocked(n, side.Opposite())
		}
	}

	source := "generator"
	if fromStore {
		source = "store"
	}
	m.metrics.loads.WithLabelValues(source).Inc()
	m.updateGaugesLocked()

	m.log.Debug("✅ Чанк %s готов (%s)", c.Position, source)
	m.queueEvent(eventbus.EventChunkReady, 1, eventbus.ChunkEvent{
		World:    m.opts.WorldID,
		Position: c.Position,
		Loaded:   fromStore,
	})
}

// markEditDirtyLocked отмечает материалы, на которые влияет правка блока
func (m *ChunkManager) markEditDirtyLocked(c *Chunk, local vec.Vec3, old, cur block.BlockID) {
	c.markDirty(block.Materials(m.reg, old)...)
	c.markDirty(block.Materials(m.reg, cur)...)
	c.markDirty(mesh.CollisionMaterial)
	m.dirty[c.Position] = struct{}{}

	for _, side := range block.AllSides {
		n := local.Add(side.Normal())
		if c.grid.InBounds(n) {
			id := c.grid.At(n.X, n.Y, n.Z)
			if m.reg.IsVisible(id) {
				c.markDirty(m.reg.MaterialID(id, side.Opposite()))
			}
			continue
		}

		nc := m.readyChunkLocked(c.Position.Add(side.Normal()))
		if nc == nil {
			continue
		}
		nl := n.LocalInChunk(m.edge)
		id := nc.grid.At(nl.X, nl.Y, nl.Z)
		if m.reg.IsVisible(id) {
			nc.markDirty(m.reg.MaterialID(id, side.Opposite()))
		}
		nc.markDirty(mesh.CollisionMaterial)
		m.dirty[nc.Position] = struct{}{}
	}
}

// markBorderDirtyLocked отмечает материалы граней side слоя чанка n
func (m *ChunkManager) markBorderDirtyLocked(n *Chunk, side block.Side) {
	border := n.grid.BorderSlice(side)
	seen := make(map[block.BlockID]struct{})
	for _, id := range border.Blocks {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if m.reg.IsVisible(id) {
			n.markDirty(m.reg.MaterialID(id, side))
		}
	}
	n.markDirty(mesh.CollisionMaterial)
	m.dirty[n.Position] = struct{}{}
}

func (m *ChunkManager) readyChunkLocked(pos vec.Vec3) *Chunk {
	if c, ok := m.chunks[pos]; ok && c.ready() {
		return c
	}
	return nil
}

// flushLocked отправляет накопленные материалы чанков в Remesher
func (m *ChunkManager) flushLocked() {
	for pos := range m.dirty {
		delete(m.dirty, pos)

		c := m.readyChunkLocked(pos)
		if c == nil {
			continue
		}
		materials := c.takeDirty()
		if len(materials) == 0 {
			continue
		}
		req := remesh.Request{
			Position:  pos,
			Snapshot:  m.snapshotLocked(c),
			Materials: materials,
		}
		if !m.remesher.Enqueue(req) {
			m.log.Debug("перестроение чанка %s не принято", pos)
		}
	}
}

// snapshotLocked копирует сетку чанка и граничные слои соседей
func (m *ChunkManager) snapshotLocked(c *Chunk) *chunk.Snapshot {
	var borders [block.SideCount]chunk.BorderSlice
	for _, side := range block.AllSides {
		if n := m.readyChunkLocked(c.Position.Add(side.Normal())); n != nil {
			borders[side] = n.grid.BorderSlice(side.Opposite())
		} else {
			borders[side] = chunk.UngeneratedSlice(side, m.edge)
		}
	}
	return chunk.NewSnapshot(c.Position, c.grid, borders)
}

// applyRemesh применяет готовый меш. Вызывается из Remesher.Update.
func (m *ChunkManager) applyRemesh(r *remesh.Result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	c := m.readyChunkLocked(r.Chunk)
	if c == nil {
		return false
	}

	h, ok := c.meshes[r.Material]
	if r.Mesh.IsEmpty() {
		if ok {
			h.Release()
			delete(c.meshes, r.Material)
		}
		return true
	}
	if !ok {
		h = m.host.CreateMesh(c.Position, r.Material, m.Transform(c.Position))
		c.meshes[r.Material] = h
	}
	h.Upload(r.Mesh)
	return true
}

func (m *ChunkManager) unloadLocked(pos vec.Vec3) error {
	c, ok := m.chunks[pos]
	if !ok {
		return nil
	}

	if !c.ready() {
		// Загрузка ещё идёт: результат будет отброшен по отсутствию чанка
		delete(m.chunks, pos)
		delete(m.retries, pos)
		m.updateGaugesLocked()
		return nil
	}

	c.state = StateUnloading
	saved := false
	if c.modified && m.store != nil {
		if err := m.store.SaveChunk(m.ctx, m.opts.WorldID, pos, c.grid); err != nil {
			c.state = StateReady
			return fmt.Errorf("unload chunk %s: %w: %w", pos, ErrPersistenceFailure, err)
		}
		saved = true
	}

	c.releaseMeshes()
	m.remesher.Cancel(pos)
	delete(m.chunks, pos)
	delete(m.dirty, pos)
	c.state = StateUnloaded

	for _, side := range block.AllSides {
		if n := m.readyChunkLocked(pos.Add(side.Normal())); n != nil {
			m.markBorderDirtyLocked(n, side.Opposite())
		}
	}
	m.flushLocked()

	m.metrics.unloads.Inc()
	m.updateGaugesLocked()
	m.log.Debug("📤 Чанк %s выгружен (сохранён: %v)", pos, saved)
	m.queueEvent(eventbus.EventChunkUnloaded, 1, eventbus.ChunkEvent{
		World:    m.opts.WorldID,
		Position: pos,
		Saved:    saved,
	})
	return nil
}

func (m *ChunkManager) updateGaugesLocked() {
	ready, generating := 0, 0
	for _, c := range m.chunks {
		switch c.state {
		case StateReady:
			ready++
		case StateGenerating:
			generating++
		}
	}
	m.metrics.ready.Set(float64(ready))
	m.metrics.generating.Set(float64(generating))
}

// queueEvent откладывает публикацию до снятия блокировки
func (m *ChunkManager) queueEvent(eventType string, priority int, payload any) {
	if m.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("chunks", eventType, priority, payload)
	if err != nil {
		m.log.Error("событие %s не создано: %v", eventType, err)
		return
	}
	m.events = append(m.events, ev)
}

func (m *ChunkManager) publishPending() {
	if m.bus == nil {
		return
	}
	m.mu.Lock()
	events := m.events
	m.events = nil
	m.mu.Unlock()

	for _, ev := range events {
		if err := m.bus.Publish(context.Background(), ev); err != nil {
			m.log.Debug("событие %s не опубликовано: %v", ev.EventType, err)
		}
	}
}

// loader фоновый загрузчик чанков
func (m *ChunkManager) loader() {
	defer m.wg.Done()
	for {
		job, ok := m.nextLoad()
		if !ok {
			select {
			case <-m.ctx.Done():
				return
			case <-m.loadWake:
				continue
			}
		}

		grid, fromStore, err := m.load(m.ctx, job.pos)
		res := loadResult{pos: job.pos, token: job.token, grid: grid, fromStore: fromStore, err: err}
		select {
		case m.loaded <- res:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *ChunkManager) nextLoad() (loadJob, bool) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if len(m.loadQueue) == 0 {
		return loadJob{}, false
	}
	job := m.loadQueue[0]
	m.loadQueue = m.loadQueue[1:]
	if len(m.loadQueue) > 0 {
		select {
		case m.loadWake <- struct{}{}:
		default:
		}
	}
	return job, true
}

func regionPositions(center, extents vec.Vec3) []vec.Vec3 {
	var positions []vec.Vec3
	for x := center.X - extents.X; x <= center.X+extents.X; x++ {
		for y := center.Y - extents.Y; y <= center.Y+extents.Y; y++ {
			for z := center.Z - extents.Z; z <= center.Z+extents.Z; z++ {
				positions = append(positions, vec.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return positions
}

func insideRegion(pos, center, extents vec.Vec3) bool {
	d := pos.Sub(center)
	return abs(d.X) <= extents.X && abs(d.Y) <= extents.Y && abs(d.Z) <= extents.Z
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
