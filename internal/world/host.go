package world

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/mesh"
)

type meshKey struct {
	chunk    vec.Vec3
	material int
}

// MemoryMeshHost хранит меши в памяти. Используется сервером без рендера
// (коллизии и статистика) и в тестах.
type MemoryMeshHost struct {
	mu       sync.Mutex
	nextID   uint64
	live     map[meshKey]*MemoryMesh
	created  int
	released int
	uploads  int
}

// MeshHostStats счётчики хоста
type MeshHostStats struct {
	Created  int
	Released int
	Uploads  int
	Live     int
	Quads    int
}

// MemoryMesh ресурс меша в памяти
type MemoryMesh struct {
	host      *MemoryMeshHost
	ID        uint64
	Position  vec.Vec3
	Material  int
	Transform mgl32.Mat4

	mesh     *mesh.Mesh
	released bool
}

// NewMemoryMeshHost создаёт пустой хост
func NewMemoryMeshHost() *MemoryMeshHost {
	return &MemoryMeshHost{live: make(map[meshKey]*MemoryMesh)}
}

// CreateMesh регистрирует новый ресурс
func (h *MemoryMeshHost) CreateMesh(pos vec.Vec3, material int, transform mgl32.Mat4) MeshHandle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.created++
	mm := &MemoryMesh{
		host:      h,
		ID:        h.nextID,
		Position:  pos,
		Material:  material,
		Transform: transform,
	}
	h.live[meshKey{chunk: pos, material: material}] = mm
	return mm
}

// Get возвращает живой меш чанка по материалу
func (h *MemoryMeshHost) Get(pos vec.Vec3, material int) (*MemoryMesh, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mm, ok := h.live[meshKey{chunk: pos, material: material}]
	return mm, ok
}

// Stats возвращает счётчики хоста
func (h *MemoryMeshHost) Stats() MeshHostStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := MeshHostStats{
		Created:  h.created,
		Released: h.released,
		Uploads:  h.uploads,
		Live:     len(h.live),
	}
	for _, mm := range h.live {
		stats.Quads += mm.mesh.QuadCount()
	}
	return stats
}

// Upload заменяет содержимое меша
func (mm *MemoryMesh) Upload(m *mesh.Mesh) {
	mm.host.mu.Lock()
	defer mm.host.mu.Unlock()
	if mm.released {
		return
	}
	mm.mesh = m
	mm.host.uploads++
}

// Release освобождает ресурс, повторный вызов ничего не делает
func (mm *MemoryMesh) Release() {
	mm.host.mu.Lock()
	defer mm.host.mu.Unlock()
	if mm.released {
		return
	}
	mm.released = true
	mm.mesh = nil
	mm.host.released++

	key := meshKey{chunk: mm.Position, material: mm.Material}
	if cur, ok := mm.host.live[key]; ok && cur == mm {
		delete(mm.host.live, key)
	}
}

// Mesh возвращает последние загруженные буферы
func (mm *MemoryMesh) Mesh() *mesh.Mesh {
	mm.host.mu.Lock()
	defer mm.host.mu.Unlock()
	return mm.mesh
}
