package chunk

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// BorderSlice слой блоков толщиной в один блок на грани чанка.
// Blocks индексируется как u + v*Edge по осям плоскости грани.
type BorderSlice struct {
	Side   block.Side
	Edge   int
	Blocks []block.BlockID
}

// At возвращает блок слоя по координатам плоскости
func (b BorderSlice) At(u, v int) block.BlockID {
	return b.Blocks[u+v*b.Edge]
}

// UngeneratedSlice создаёт слой для отсутствующего соседа
func UngeneratedSlice(side block.Side, edge int) BorderSlice {
	blocks := make([]block.BlockID, edge*edge)
	for i := range blocks {
		blocks[i] = block.UngeneratedBlockID
	}
	return BorderSlice{Side: side, Edge: edge, Blocks: blocks}
}

// Snapshot неизменяемая копия чанка для фонового построения мешей.
// Borders[s] содержит соседний с чанком слой блоков соседа по стороне s.
type Snapshot struct {
	Position vec.Vec3
	Grid     *BlockGrid
	Borders  [block.SideCount]BorderSlice
}

// NewSnapshot копирует сетку и принимает слои соседей.
// Слои должны быть свежими (BorderSlice и UngeneratedSlice всегда создают новые).
func NewSnapshot(pos vec.Vec3, grid *BlockGrid, borders [block.SideCount]BorderSlice) *Snapshot {
	return &Snapshot{
		Position: pos,
		Grid:     grid.Clone(),
		Borders:  borders,
	}
}

// Edge возвращает длину ребра чанка
func (s *Snapshot) Edge() int {
	return s.Grid.Edge()
}

// Neighbor возвращает блок, соседний с локальной позицией (x,y,z) по стороне side.
// За границей чанка блок берётся из слоя соседа.
func (s *Snapshot) Neighbor(x, y, z int, side block.Side) block.BlockID {
	n := vec.Vec3{X: x, Y: y, Z: z}.Add(side.Normal())
	if s.Grid.InBounds(n) {
		return s.Grid.At(n.X, n.Y, n.Z)
	}
	u, v := side.PlaneAxes()
	return s.Borders[side].At(n.Axis(u), n.Axis(v))
}
