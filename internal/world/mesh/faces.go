package mesh

import (
	"sort"

	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// CollisionMaterial псевдо-материал меша коллизий
const CollisionMaterial = -1

// FaceFunc решает, нужна ли грань side блока (x,y,z) в меше материала material.
// Видимый и коллизионный меши строятся одним алгоритмом с разными FaceFunc.
type FaceFunc func(s *chunk.Snapshot, x, y, z int, side block.Side, material int) bool

// VisualFaces правило видимых граней.
//
// Грань рисуется, если блок видим, материал его грани совпадает с запрошенным,
// а сосед либо невидим, либо прозрачен и отличается от блока. Одинаковые
// прозрачные блоки (вода к воде) внутренних граней не дают.
func VisualFaces(reg block.Registry) FaceFunc {
	return func(s *chunk.Snapshot, x, y, z int, side block.Side, material int) bool {
		src := s.Grid.At(x, y, z)
		if !reg.IsVisible(src) || reg.MaterialID(src, side) != material {
			return false
		}

		n := s.Neighbor(x, y, z, side)
		if !reg.IsVisible(n) {
			return true
		}
		return reg.IsTransparent(n) && n != src
	}
}

// CollisionFaces правило граней коллизии: твёрдый блок рядом с нетвёрдым.
// Материал игнорируется, поэтому поверхность сливается через границы материалов.
func CollisionFaces(reg block.Registry) FaceFunc {
	return func(s *chunk.Snapshot, x, y, z int, side block.Side, _ int) bool {
		if !block.IsSolid(reg, s.Grid.At(x, y, z)) {
			return false
		}
		return !block.IsSolid(reg, s.Neighbor(x, y, z, side))
	}
}

// Materials возвращает отсортированный список материалов видимых блоков сетки
func Materials(reg block.Registry, g *chunk.BlockGrid) []int {
	seen := make(map[int]struct{})
	for id := range g.Distinct() {
		for _, m := range block.Materials(reg, id) {
			seen[m] = struct{}{}
		}
	}

	result := make([]int, 0, len(seen))
	for m := range seen {
		result = append(result, m)
	}
	sort.Ints(result)
	return result
}

// HasSolid сообщает, есть ли в сетке твёрдые блоки (нужен ли меш коллизий)
func HasSolid(reg block.Registry, g *chunk.BlockGrid) bool {
	for id := range g.Distinct() {
		if block.IsSolid(reg, id) {
			return true
		}
	}
	return false
}
