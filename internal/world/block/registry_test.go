package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
)

func TestSide_Geometry(t *testing.T) {
	assert.Equal(t, SideXPos, SideXNeg.Opposite())
	assert.Equal(t, SideZNeg, SideZPos.Opposite())
	assert.Equal(t, 1, SideYPos.Axis())
	assert.True(t, SideYPos.Positive())
	assert.False(t, SideZNeg.Positive())

	assert.Equal(t, vec.Vec3{X: -1}, SideXNeg.Normal())
	assert.Equal(t, vec.Vec3{Z: 1}, SideZPos.Normal())

	u, v := SideYNeg.PlaneAxes()
	assert.Equal(t, 2, u)
	assert.Equal(t, 0, v)
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	assert.False(t, r.IsVisible(AirBlockID))
	assert.False(t, r.IsVisible(UngeneratedBlockID), "незагруженные блоки невидимы")
	assert.False(t, r.IsVisible(BlockID(999)), "неизвестные блоки невидимы")

	assert.True(t, IsSolid(r, StoneBlockID))
	assert.False(t, IsSolid(r, GlassBlockID), "стекло прозрачное, в коллизии не участвует")
	assert.True(t, r.IsTransparent(WaterBlockID))

	assert.Equal(t, MaterialGrassTop, r.MaterialID(GrassBlockID, SideYPos))
	assert.Equal(t, MaterialDirt, r.MaterialID(GrassBlockID, SideYNeg))
	assert.Equal(t, MaterialGrassSide, r.MaterialID(GrassBlockID, SideXNeg))
	assert.Equal(t, NoMaterial, r.MaterialID(AirBlockID, SideXNeg))

	assert.Equal(t, []int{MaterialGrassTop, MaterialGrassSide, MaterialDirt}, Materials(r, GrassBlockID))
	assert.Nil(t, Materials(r, AirBlockID))
}

func TestRegister_Duplicates(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Error(t, r.Register(UniformDefinition(StoneBlockID, "stone2", 9, false)))
	assert.Error(t, r.Register(UniformDefinition(UngeneratedBlockID, "ghost", 9, false)))
}

func TestParseDefinitions(t *testing.T) {
	data := []byte(`
blocks:
  - id: 0
    name: air
    visible: false
  - id: 1
    name: log
    material: 7
    faces:
      sides: 8
      top: 9
  - id: 2
    name: ice
    material: 10
    transparent: true
`)

	r, err := ParseDefinitions(data)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	assert.False(t, r.IsVisible(0))
	assert.Equal(t, 9, r.MaterialID(1, SideYPos))
	assert.Equal(t, 7, r.MaterialID(1, SideYNeg))
	assert.Equal(t, 8, r.MaterialID(1, SideZPos))
	assert.True(t, r.IsTransparent(2))
}

func TestParseDefinitions_UnknownFace(t *testing.T) {
	_, err := ParseDefinitions([]byte("blocks:\n  - id: 1\n    name: x\n    faces:\n      diagonal: 1\n"))
	assert.Error(t, err)
}
