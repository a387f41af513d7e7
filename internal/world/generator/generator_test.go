package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

func TestFlatGenerator(t *testing.T) {
	g := NewFlatGenerator(4)
	grid := chunk.NewBlockGrid(8)
	require.NoError(t, g.Generate(context.Background(), vec.Vec3{}, grid))

	assert.Equal(t, block.StoneBlockID, grid.At(3, 0, 5))
	assert.Equal(t, block.DirtBlockID, grid.At(3, 1, 5))
	assert.Equal(t, block.GrassBlockID, grid.At(3, 3, 5))
	assert.Equal(t, block.AirBlockID, grid.At(3, 4, 5))
	assert.Equal(t, 4*64, grid.Len()-grid.Count(block.AirBlockID))

	// Чанк выше поверхности пустой
	above := chunk.NewBlockGrid(8)
	require.NoError(t, g.Generate(context.Background(), vec.Vec3{Y: 1}, above))
	assert.Equal(t, above.Len(), above.Count(block.AirBlockID))
}

func TestTerrainGenerator_Deterministic(t *testing.T) {
	pos := vec.Vec3{X: 3, Y: 0, Z: -2}

	a := chunk.NewBlockGrid(16)
	b := chunk.NewBlockGrid(16)
	require.NoError(t, NewTerrainGenerator(7).Generate(context.Background(), pos, a))
	require.NoError(t, NewTerrainGenerator(7).Generate(context.Background(), pos, b))

	assert.Equal(t, a.Blocks(), b.Blocks(), "одинаковый сид даёт одинаковый чанк")
}

func TestTerrainGenerator_Columns(t *testing.T) {
	g := NewTerrainGenerator(99)
	grid := chunk.NewBlockGrid(16)
	pos := vec.Vec3{X: 1, Y: 0, Z: 1}
	require.NoError(t, g.Generate(context.Background(), pos, grid))

	origin := pos.ChunkOrigin(16)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			surface, _ := g.ColumnAt(origin.X+x, origin.Z+z)
			for y := 0; y < 16; y++ {
				id := grid.At(x, y, z)
				if y >= surface {
					assert.Contains(t, []block.BlockID{block.AirBlockID, block.WaterBlockID}, id)
				} else {
					assert.NotEqual(t, block.AirBlockID, id, "под поверхностью нет пустот")
				}
			}
		}
	}
}

func TestTerrainGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTerrainGenerator(1).Generate(ctx, vec.Vec3{}, chunk.NewBlockGrid(8))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	g, err := New("flat", 1)
	require.NoError(t, err)
	assert.IsType(t, &FlatGenerator{}, g)

	_, err = New("caves", 1)
	assert.Error(t, err)
}
