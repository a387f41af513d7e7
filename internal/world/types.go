package world

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
	"github.com/annel0/voxel-world/internal/world/mesh"
	"github.com/annel0/voxel-world/internal/world/remesh"
)

var (
	// ErrGenerationFailure генератор не смог заполнить чанк
	ErrGenerationFailure = errors.New("world: generation failed")
	// ErrPersistenceFailure хранилище не смогло загрузить или сохранить чанк
	ErrPersistenceFailure = errors.New("world: persistence failed")
	// ErrClosed мир уже остановлен
	ErrClosed = errors.New("world: closed")
)

// Generator заполняет сетку нового чанка
type Generator interface {
	Generate(ctx context.Context, pos vec.Vec3, grid *chunk.BlockGrid) error
}

// Persistence хранилище сеток чанков.
// LoadChunk возвращает found=false, если чанк ещё не сохранялся.
type Persistence interface {
	LoadChunk(ctx context.Context, worldID string, pos vec.Vec3) (*chunk.BlockGrid, bool, error)
	SaveChunk(ctx context.Context, worldID string, pos vec.Vec3, grid *chunk.BlockGrid) error
	SaveWorld(ctx context.Context, worldID string) error
}

// MeshHost создаёт ресурсы мешей на стороне рендера или физики
type MeshHost interface {
	CreateMesh(pos vec.Vec3, material int, transform mgl32.Mat4) MeshHandle
}

// MeshHandle ресурс одного меша (чанк, материал).
// Методы вызываются только из Update, выгрузки и остановки.
type MeshHandle interface {
	Upload(m *mesh.Mesh)
	Release()
}

// Remesher очередь фонового перестроения мешей
type Remesher interface {
	Enqueue(req remesh.Request) bool
	Cancel(pos vec.Vec3)
	Update(apply remesh.ApplyFunc) remesh.UpdateStats
	ActiveTasks() int
	Shutdown(ctx context.Context) error
}

// BlockEdit изменение одного блока в мировых координатах
type BlockEdit struct {
	Position vec.Vec3
	Block    block.BlockID
}

// UpdateStats итог одного кадра
type UpdateStats struct {
	Integrated int // чанков перешло в Ready
	Failed     int // неудачных загрузок
	Stale      int // устаревших результатов загрузки
	Retried    int // повторно поставленных загрузок
	Applied    int // применённых мешей
	Discarded  int // отброшенных мешей
	Remaining  int // задач перестроения в очереди и в работе
}
