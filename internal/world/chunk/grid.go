package chunk

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

var (
	// ErrOutOfBounds возвращается при обращении к позиции вне сетки чанка
	ErrOutOfBounds = errors.New("chunk: position out of bounds")
	// ErrCorrupted возвращается при повреждённых сохранённых данных чанка
	ErrCorrupted = errors.New("chunk: corrupted data")
)

// BlockGrid плотный массив ID блоков одного чанка размером edge³.
// Индекс блока: x + y*edge + z*edge².
//
// Сетка не потокобезопасна: её изменяет только менеджер чанков,
// а фоновые задачи получают копию через Snapshot.
type BlockGrid struct {
	edge   int
	blocks []block.BlockID
}

// NewBlockGrid создаёт сетку, заполненную воздухом. edge должен быть степенью двойки.
func NewBlockGrid(edge int) *BlockGrid {
	if !vec.IsPowerOfTwo(edge) {
		panic(fmt.Sprintf("chunk: edge %d is not a power of two", edge))
	}
	return &BlockGrid{
		edge:   edge,
		blocks: make([]block.BlockID, edge*edge*edge),
	}
}

// NewBlockGridFrom оборачивает готовый массив блоков. Массив не копируется.
func NewBlockGridFrom(edge int, blocks []block.BlockID) (*BlockGrid, error) {
	if !vec.IsPowerOfTwo(edge) {
		return nil, fmt.Errorf("%w: edge %d is not a power of two", ErrCorrupted, edge)
	}
	if len(blocks) != edge*edge*edge {
		return nil, fmt.Errorf("%w: expected %d blocks, got %d", ErrCorrupted, edge*edge*edge, len(blocks))
	}
	return &BlockGrid{edge: edge, blocks: blocks}, nil
}

// Edge возвращает длину ребра чанка в блоках
func (g *BlockGrid) Edge() int {
	return g.edge
}

// Len возвращает количество блоков в сетке
func (g *BlockGrid) Len() int {
	return len(g.blocks)
}

// Blocks возвращает внутренний массив блоков. Изменять его нельзя.
func (g *BlockGrid) Blocks() []block.BlockID {
	return g.blocks
}

// InBounds проверяет, что локальная позиция лежит внутри сетки
func (g *BlockGrid) InBounds(p vec.Vec3) bool {
	return p.X >= 0 && p.X < g.edge &&
		p.Y >= 0 && p.Y < g.edge &&
		p.Z >= 0 && p.Z < g.edge
}

func (g *BlockGrid) index(x, y, z int) int {
	return x + y*g.edge + z*g.edge*g.edge
}

// Get возвращает блок по локальной позиции
func (g *BlockGrid) Get(p vec.Vec3) (block.BlockID, error) {
	if !g.InBounds(p) {
		return block.AirBlockID, fmt.Errorf("%w: %s (edge %d)", ErrOutOfBounds, p, g.edge)
	}
	return g.blocks[g.index(p.X, p.Y, p.Z)], nil
}

// At возвращает блок без проверки границ. Используется в горячих циклах.
func (g *BlockGrid) At(x, y, z int) block.BlockID {
	return g.blocks[g.index(x, y, z)]
}

// Set устанавливает блок и возвращает предыдущее значение
func (g *BlockGrid) Set(p vec.Vec3, id block.BlockID) (block.BlockID, error) {
	if !g.InBounds(p) {
		return block.AirBlockID, fmt.Errorf("%w: %s (edge %d)", ErrOutOfBounds, p, g.edge)
	}
	i := g.index(p.X, p.Y, p.Z)
	prev := g.blocks[i]
	g.blocks[i] = id
	return prev, nil
}

// Fill заполняет всю сетку одним блоком
func (g *BlockGrid) Fill(id block.BlockID) {
	for i := range g.blocks {
		g.blocks[i] = id
	}
}

// FillBox заполняет параллелепипед [from, to] включительно, обрезая его по границам сетки
func (g *BlockGrid) FillBox(from, to vec.Vec3, id block.BlockID) {
	for z := max(from.Z, 0); z <= min(to.Z, g.edge-1); z++ {
		for y := max(from.Y, 0); y <= min(to.Y, g.edge-1); y++ {
			for x := max(from.X, 0); x <= min(to.X, g.edge-1); x++ {
				g.blocks[g.index(x, y, z)] = id
			}
		}
	}
}

// Count возвращает количество блоков с указанным ID
func (g *BlockGrid) Count(id block.BlockID) int {
	n := 0
	for _, b := range g.blocks {
		if b == id {
			n++
		}
	}
	return n
}

// Distinct возвращает множество ID блоков, встречающихся в сетке
func (g *BlockGrid) Distinct() map[block.BlockID]struct{} {
	result := make(map[block.BlockID]struct{})
	for _, b := range g.blocks {
		result[b] = struct{}{}
	}
	return result
}

// Clone создаёт глубокую копию сетки
func (g *BlockGrid) Clone() *BlockGrid {
	blocks := make([]block.BlockID, len(g.blocks))
	copy(blocks, g.blocks)
	return &BlockGrid{edge: g.edge, blocks: blocks}
}

// BorderSlice возвращает слой блоков edge×edge на стороне side.
// Слой индексируется осями плоскости грани u=(d+1)%3, v=(d+2)%3.
func (g *BlockGrid) BorderSlice(side block.Side) BorderSlice {
	d := side.Axis()
	u, v := side.PlaneAxes()

	layer := 0
	if side.Positive() {
		layer = g.edge - 1
	}

	slice := BorderSlice{
		Side:   side,
		Edge:   g.edge,
		Blocks: make([]block.BlockID, g.edge*g.edge),
	}

	var p vec.Vec3
	p = p.WithAxis(d, layer)
	for j := 0; j < g.edge; j++ {
		p = p.WithAxis(v, j)
		for i := 0; i < g.edge; i++ {
			p = p.WithAxis(u, i)
			slice.Blocks[i+j*g.edge] = g.At(p.X, p.Y, p.Z)
		}
	}
	return slice
}
