package world

import (
	"sort"
	"time"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// State стадия жизненного цикла чанка
type State int

const (
	StateUnloaded   State = iota // Чанка нет в памяти
	StateGenerating              // Идёт загрузка или генерация
	StateReady                   // Сетка доступна, меши строятся
	StateUnloading               // Сохранение перед выгрузкой
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateGenerating:
		return "generating"
	case StateReady:
		return "ready"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// Chunk чанк мира под управлением ChunkManager.
// Все поля защищены мьютексом менеджера.
type Chunk struct {
	Position vec.Vec3

	state    State
	grid     *chunk.BlockGrid
	meshes   map[int]MeshHandle // материал -> ресурс меша
	dirty    map[int]struct{}   // материалы, ожидающие перестроения
	modified bool               // есть несохранённые изменения
	token    uint64             // поколение загрузки, чужие результаты отбрасываются
	attempt  int                // неудачных попыток подряд
	retryAt  time.Time          // время следующей попытки
	lastErr  error
}

// ChunkInfo копия состояния чанка для чтения снаружи менеджера
type ChunkInfo struct {
	Position  vec.Vec3
	State     State
	Modified  bool
	Attempts  int
	LastError error
	Materials []int // материалы с активными мешами
}

func newChunk(pos vec.Vec3) *Chunk {
	return &Chunk{
		Position: pos,
		state:    StateGenerating,
		meshes:   make(map[int]MeshHandle),
		dirty:    make(map[int]struct{}),
	}
}

func (c *Chunk) ready() bool {
	return c.state == StateReady
}

func (c *Chunk) markDirty(materials ...int) {
	for _, m := range materials {
		c.dirty[m] = struct{}{}
	}
}

// takeDirty забирает накопленные материалы в порядке возрастания
func (c *Chunk) takeDirty() []int {
	if len(c.dirty) == 0 {
		return nil
	}
	materials := make([]int, 0, len(c.dirty))
	for m := range c.dirty {
		materials = append(materials, m)
	}
	sort.Ints(materials)
	c.dirty = make(map[int]struct{})
	return materials
}

// releaseMeshes освобождает все ресурсы мешей чанка
func (c *Chunk) releaseMeshes() int {
	n := len(c.meshes)
	for material, h := range c.meshes {
		h.Release()
		delete(c.meshes, material)
	}
	return n
}

func (c *Chunk) info() ChunkInfo {
	materials := make([]int, 0, len(c.meshes))
	for m := range c.meshes {
		materials = append(materials, m)
	}
	sort.Ints(materials)
	return ChunkInfo{
		Position:  c.Position,
		State:     c.state,
		Modified:  c.modified,
		Attempts:  c.attempt,
		LastError: c.lastErr,
		Materials: materials,
	}
}
