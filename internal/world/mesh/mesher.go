package mesh

import (
	"context"

	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// Mesher строит видимые меши и меш коллизий для снимков чанков.
// Не имеет изменяемого состояния и может использоваться из любого числа горутин.
type Mesher struct {
	visual    FaceFunc
	collision FaceFunc
}

// NewMesher создаёт построитель с правилами граней по умолчанию
func NewMesher(reg block.Registry) *Mesher {
	return NewMesherWithFaces(VisualFaces(reg), CollisionFaces(reg))
}

// NewMesherWithFaces создаёт построитель с собственными правилами граней
func NewMesherWithFaces(visual, collision FaceFunc) *Mesher {
	return &Mesher{visual: visual, collision: collision}
}

// Build строит квады материала; CollisionMaterial строит меш коллизий
func (m *Mesher) Build(ctx context.Context, s *chunk.Snapshot, material int) ([]Quad, error) {
	if material == CollisionMaterial {
		return m.BuildCollision(ctx, s)
	}
	return m.BuildVisual(ctx, s, material)
}

// BuildVisual строит видимые квады одного материала
func (m *Mesher) BuildVisual(ctx context.Context, s *chunk.Snapshot, material int) ([]Quad, error) {
	return Greedy(ctx, s, material, m.visual)
}

// BuildCollision строит меш коллизий
func (m *Mesher) BuildCollision(ctx context.Context, s *chunk.Snapshot) ([]Quad, error) {
	return Greedy(ctx, s, CollisionMaterial, m.collision)
}
