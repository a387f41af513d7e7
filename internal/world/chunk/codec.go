package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-world/internal/world/block"
)

// Формат сохранённого чанка:
//
//	magic "VXG1" | edge uint16 | checksum uint64 (xxhash несжатых блоков) | zstd(blocks uint16 LE)
var gridMagic = []byte("VXG1")

const headerSize = 4 + 2 + 8

// Кодеры без потока можно использовать конкурентно через EncodeAll/DecodeAll
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode сериализует сетку в сжатый бинарный формат
func Encode(g *BlockGrid) []byte {
	raw := make([]byte, len(g.blocks)*2)
	for i, b := range g.blocks {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(b))
	}

	out := make([]byte, headerSize, headerSize+len(raw)/4)
	copy(out, gridMagic)
	binary.LittleEndian.PutUint16(out[4:], uint16(g.edge))
	binary.LittleEndian.PutUint64(out[6:], xxhash.Sum64(raw))

	return encoder.EncodeAll(raw, out)
}

// Decode восстанавливает сетку. Любое несоответствие формата даёт ErrCorrupted.
func Decode(data []byte) (*BlockGrid, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], gridMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupted)
	}

	edge := int(binary.LittleEndian.Uint16(data[4:]))
	checksum := binary.LittleEndian.Uint64(data[6:])

	raw, err := decoder.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if xxhash.Sum64(raw) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd payload length %d", ErrCorrupted, len(raw))
	}

	blocks := make([]block.BlockID, len(raw)/2)
	for i := range blocks {
		blocks[i] = block.BlockID(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return NewBlockGridFrom(edge, blocks)
}
