package mesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// isolatedSnapshot создаёт снимок чанка без соседей
func isolatedSnapshot(g *chunk.BlockGrid) *chunk.Snapshot {
	var borders [block.SideCount]chunk.BorderSlice
	for _, side := range block.AllSides {
		borders[side] = chunk.UngeneratedSlice(side, g.Edge())
	}
	return chunk.NewSnapshot(vec.Vec3{}, g, borders)
}

func countBySide(quads []Quad) map[block.Side]int {
	result := make(map[block.Side]int)
	for _, q := range quads {
		result[q.Side]++
	}
	return result
}

func TestGreedy_SolidChunk(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)

	g := chunk.NewBlockGrid(16)
	g.Fill(block.StoneBlockID)

	quads, err := m.BuildVisual(context.Background(), isolatedSnapshot(g), block.MaterialStone)
	require.NoError(t, err)
	require.Len(t, quads, 6, "изолированный сплошной чанк даёт по одному кваду на сторону")

	for i, q := range quads {
		assert.Equal(t, block.AllSides[i], q.Side, "порядок сторон фиксирован")
		assert.Equal(t, 16*16, q.Area())
		assert.Equal(t, block.MaterialStone, q.Material)
	}

	collision, err := m.BuildCollision(context.Background(), isolatedSnapshot(g))
	require.NoError(t, err)
	assert.Len(t, collision, 6)
	assert.Equal(t, CollisionMaterial, collision[0].Material)

	// Другие материалы в чанке отсутствуют
	other, err := m.BuildVisual(context.Background(), isolatedSnapshot(g), block.MaterialSand)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGreedy_EmptyChunk(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)
	snap := isolatedSnapshot(chunk.NewBlockGrid(8))

	for _, material := range []int{block.MaterialStone, CollisionMaterial} {
		quads, err := m.Build(context.Background(), snap, material)
		require.NoError(t, err)
		assert.Empty(t, quads, "пустой чанк не даёт квадов (материал %d)", material)
	}
}

func TestGreedy_Idempotent(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)

	g := chunk.NewBlockGrid(8)
	g.FillBox(vec.Vec3{}, vec.Vec3{X: 7, Y: 3, Z: 7}, block.StoneBlockID)
	g.FillBox(vec.Vec3{X: 2, Y: 4, Z: 1}, vec.Vec3{X: 4, Y: 6, Z: 2}, block.StoneBlockID)
	_, _ = g.Set(vec.Vec3{X: 5, Y: 2, Z: 5}, block.AirBlockID)
	snap := isolatedSnapshot(g)

	first, err := m.BuildVisual(context.Background(), snap, block.MaterialStone)
	require.NoError(t, err)
	second, err := m.BuildVisual(context.Background(), snap, block.MaterialStone)
	require.NoError(t, err)

	assert.Equal(t, first, second, "повторное построение по тому же снимку должно совпадать")
}

func TestGreedy_CarvedCorner(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)

	g := chunk.NewBlockGrid(16)
	g.Fill(block.StoneBlockID)
	g.FillBox(vec.Vec3{}, vec.Vec3{X: 1, Y: 1, Z: 1}, block.AirBlockID)

	quads, err := m.BuildVisual(context.Background(), isolatedSnapshot(g), block.MaterialStone)
	require.NoError(t, err)

	assert.Len(t, quads, 12)
	assert.Less(t, len(quads), 16*16*6)

	bySide := countBySide(quads)
	// Внешние грани с вырезом разбиваются на два прямоугольника плюс внутренний квад 2x2
	assert.Equal(t, 3, bySide[block.SideXNeg])
	assert.Equal(t, 3, bySide[block.SideYNeg])
	assert.Equal(t, 3, bySide[block.SideZNeg])
	assert.Equal(t, 1, bySide[block.SideXPos])
	assert.Equal(t, 1, bySide[block.SideYPos])
	assert.Equal(t, 1, bySide[block.SideZPos])

	// Три открывшиеся внутренние грани: по одному кваду 2x2 в плоскости 2
	var internal []Quad
	for _, q := range quads {
		if q.Corners[0].Axis(q.Side.Axis()) == 2 {
			internal = append(internal, q)
		}
	}
	require.Len(t, internal, 3)
	for _, q := range internal {
		assert.Equal(t, 2, q.Width)
		assert.Equal(t, 2, q.Height)
		assert.False(t, q.Side.Positive(), "внутренние грани смотрят в сторону выреза")
	}

	total := 0
	for _, q := range quads {
		total += q.Area()
	}
	assert.Equal(t, 6*16*16, total, "площадь поверхности сохраняется")
}

func TestGreedy_Winding(t *testing.T) {
	reg := block.NewDefaultRegistry()
	g := chunk.NewBlockGrid(4)
	_, _ = g.Set(vec.Vec3{X: 1, Y: 2, Z: 3}, block.StoneBlockID)

	quads, err := NewMesher(reg).BuildVisual(context.Background(), isolatedSnapshot(g), block.MaterialStone)
	require.NoError(t, err)
	require.Len(t, quads, 6)

	for _, q := range quads {
		a := q.Corners[1].Sub(q.Corners[0])
		b := q.Corners[2].Sub(q.Corners[1])
		cross := vec.Vec3{
			X: a.Y*b.Z - a.Z*b.Y,
			Y: a.Z*b.X - a.X*b.Z,
			Z: a.X*b.Y - a.Y*b.X,
		}
		n := q.Normal()
		dot := cross.X*n.X + cross.Y*n.Y + cross.Z*n.Z
		assert.Positive(t, dot, "обход против часовой стрелки снаружи для стороны %s", q.Side)
	}

	// Грань +X одиночного блока в (1,2,3) лежит в плоскости x=2
	assert.Equal(t, [4]vec.Vec3{
		{X: 2, Y: 2, Z: 3}, {X: 2, Y: 3, Z: 3}, {X: 2, Y: 3, Z: 4}, {X: 2, Y: 2, Z: 4},
	}, quads[1].Corners)
}

func TestGreedy_Transparency(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)
	ctx := context.Background()

	// Два блока стекла подряд: внутренняя грань не рисуется
	g := chunk.NewBlockGrid(4)
	_, _ = g.Set(vec.Vec3{X: 1, Y: 1, Z: 1}, block.GlassBlockID)
	_, _ = g.Set(vec.Vec3{X: 2, Y: 1, Z: 1}, block.GlassBlockID)
	quads, err := m.BuildVisual(ctx, isolatedSnapshot(g), block.MaterialGlass)
	require.NoError(t, err)
	assert.Len(t, quads, 6, "одинаковые прозрачные блоки сливаются")

	// Стекло рядом с водой: обе грани на стыке видны
	_, _ = g.Set(vec.Vec3{X: 2, Y: 1, Z: 1}, block.WaterBlockID)
	glass, err := m.BuildVisual(ctx, isolatedSnapshot(g), block.MaterialGlass)
	require.NoError(t, err)
	assert.Len(t, glass, 6)
	water, err := m.BuildVisual(ctx, isolatedSnapshot(g), block.MaterialWater)
	require.NoError(t, err)
	assert.Len(t, water, 6)

	// Камень за стеклом виден, стекло перед камнем - нет
	_, _ = g.Set(vec.Vec3{X: 2, Y: 1, Z: 1}, block.StoneBlockID)
	glass, err = m.BuildVisual(ctx, isolatedSnapshot(g), block.MaterialGlass)
	require.NoError(t, err)
	assert.Len(t, glass, 5)
	assert.NotContains(t, countBySide(glass), block.SideXPos)

	stone, err := m.BuildVisual(ctx, isolatedSnapshot(g), block.MaterialStone)
	require.NoError(t, err)
	assert.Len(t, stone, 6)

	// В коллизии стекло не участвует
	collision, err := m.BuildCollision(ctx, isolatedSnapshot(g))
	require.NoError(t, err)
	assert.Len(t, collision, 6)
}

func TestGreedy_CollisionIgnoresMaterial(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)
	ctx := context.Background()

	g := chunk.NewBlockGrid(4)
	_, _ = g.Set(vec.Vec3{X: 0, Y: 0, Z: 0}, block.StoneBlockID)
	_, _ = g.Set(vec.Vec3{X: 1, Y: 0, Z: 0}, block.DirtBlockID)
	snap := isolatedSnapshot(g)

	stone, err := m.BuildVisual(ctx, snap, block.MaterialStone)
	require.NoError(t, err)
	assert.Len(t, stone, 5)

	collision, err := m.BuildCollision(ctx, snap)
	require.NoError(t, err)
	assert.Len(t, collision, 6, "коллизия сливается через границу материалов")
	for _, q := range collision {
		if q.Side.Axis() != 0 {
			assert.Equal(t, 2, q.Area())
		}
	}
}

func TestGreedy_NeighbourBorder(t *testing.T) {
	reg := block.NewDefaultRegistry()
	m := NewMesher(reg)

	g := chunk.NewBlockGrid(4)
	g.Fill(block.StoneBlockID)

	neighbour := chunk.NewBlockGrid(4)
	neighbour.Fill(block.StoneBlockID)

	snap := isolatedSnapshot(g)
	snap.Borders[block.SideXPos] = neighbour.BorderSlice(block.SideXNeg)

	quads, err := m.BuildVisual(context.Background(), snap, block.MaterialStone)
	require.NoError(t, err)
	assert.Len(t, quads, 5, "грань к загруженному сплошному соседу скрыта")
	assert.NotContains(t, countBySide(quads), block.SideXPos)
}

func TestGreedy_InvalidGrid(t *testing.T) {
	m := NewMesher(block.NewDefaultRegistry())

	snap := isolatedSnapshot(chunk.NewBlockGrid(4))
	snap.Borders[block.SideZPos] = chunk.UngeneratedSlice(block.SideZPos, 8)

	_, err := m.BuildVisual(context.Background(), snap, block.MaterialStone)
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = m.BuildVisual(context.Background(), nil, block.MaterialStone)
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestGreedy_Cancelled(t *testing.T) {
	g := chunk.NewBlockGrid(4)
	g.Fill(block.StoneBlockID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMesher(block.NewDefaultRegistry()).BuildVisual(ctx, isolatedSnapshot(g), block.MaterialStone)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterials(t *testing.T) {
	reg := block.NewDefaultRegistry()
	g := chunk.NewBlockGrid(4)
	assert.Empty(t, Materials(reg, g))
	assert.False(t, HasSolid(reg, g))

	_, _ = g.Set(vec.Vec3{}, block.GrassBlockID)
	_, _ = g.Set(vec.Vec3{X: 1}, block.WaterBlockID)

	assert.Equal(t, []int{block.MaterialGrassTop, block.MaterialGrassSide, block.MaterialDirt, block.MaterialWater}, Materials(reg, g))
	assert.True(t, HasSolid(reg, g))
}
