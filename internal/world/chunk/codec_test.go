package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

func TestCodec_RoundTrip(t *testing.T) {
	g := NewBlockGrid(16)
	g.FillBox(vec.Vec3{}, vec.Vec3{X: 15, Y: 7, Z: 15}, block.StoneBlockID)
	_, _ = g.Set(vec.Vec3{X: 3, Y: 8, Z: 9}, block.UngeneratedBlockID-1)

	data := Encode(g)
	assert.Less(t, len(data), g.Len()*2, "данные должны сжиматься")

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, g.Edge(), decoded.Edge())
	assert.Equal(t, g.Blocks(), decoded.Blocks())
}

func TestCodec_Corruption(t *testing.T) {
	data := Encode(NewBlockGrid(4))

	_, err := Decode(data[:5])
	assert.ErrorIs(t, err, ErrCorrupted, "обрезанный заголовок")

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrCorrupted, "неверная сигнатура")

	bad = append([]byte(nil), data...)
	bad[7] ^= 0xFF
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrCorrupted, "неверная контрольная сумма")

	bad = append([]byte(nil), data[:headerSize]...)
	bad = append(bad, 0x01, 0x02, 0x03)
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrCorrupted, "мусор вместо zstd")
}
