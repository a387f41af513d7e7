package generator

import (
	"context"
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// Generator заполняет сетку чанка блоками
type Generator interface {
	Generate(ctx context.Context, pos vec.Vec3, grid *chunk.BlockGrid) error
}

// New создаёт генератор по имени из конфигурации
func New(name string, seed int64) (Generator, error) {
	switch name {
	case "flat":
		return NewFlatGenerator(4), nil
	case "terrain", "":
		return NewTerrainGenerator(seed), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

// FlatGenerator плоский мир: камень, слой земли и трава на высоте Height
type FlatGenerator struct {
	Height int // мировая Y первого блока воздуха
}

// NewFlatGenerator создаёт плоский генератор
func NewFlatGenerator(height int) *FlatGenerator {
	return &FlatGenerator{Height: height}
}

// Generate реализует Generator
func (g *FlatGenerator) Generate(ctx context.Context, pos vec.Vec3, grid *chunk.BlockGrid) error {
	edge := grid.Edge()
	originY := pos.Y * edge

	for y := 0; y < edge; y++ {
		id := columnBlock(originY+y, g.Height, -1, BiomePlains)
		if id == block.AirBlockID {
			continue
		}
		grid.FillBox(vec.Vec3{Y: y}, vec.Vec3{X: edge - 1, Y: y, Z: edge - 1}, id)
	}
	return ctx.Err()
}

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
	BiomeDeepWater
)

// Константы высот (в долях MaxHeight)
const (
	DeepWaterMax    = 0.20 // Ниже - глубинная вода
	ShallowWaterMax = 0.30 // Ниже - мелководье, это же уровень моря
	MountainStart   = 0.80 // Выше - горы
)

// TerrainGenerator генерирует ландшафт по карте высот из шума Перлина
type TerrainGenerator struct {
	Seed       int64
	NoiseScale float64 // Масштаб основного шума (высота)
	BiomeScale float64 // Масштаб шума биомов
	MaxHeight  int     // Мировая высота, соответствующая шуму 1.0

	height *Noise
	biome  *Noise
}

// NewTerrainGenerator создаёт генератор ландшафта
func NewTerrainGenerator(seed int64) *TerrainGenerator {
	return &TerrainGenerator{
		Seed:       seed,
		NoiseScale: 0.02,
		BiomeScale: 0.01,
		MaxHeight:  64,
		height:     NewNoise(seed),
		biome:      NewNoise(seed + 42),
	}
}

// SeaLevel возвращает мировую высоту уровня моря
func (g *TerrainGenerator) SeaLevel() int {
	return int(ShallowWaterMax * float64(g.MaxHeight))
}

// ColumnAt возвращает высоту поверхности и биом для мировой колонки (x, z)
func (g *TerrainGenerator) ColumnAt(x, z int) (int, BiomeType) {
	h := g.height.Noise2D(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	b := g.biome.Noise2D(float64(x)*g.BiomeScale, float64(z)*g.BiomeScale)
	return int(h * float64(g.MaxHeight)), getBiomeType(h, b)
}

// Generate реализует Generator
func (g *TerrainGenerator) Generate(ctx context.Context, pos vec.Vec3, grid *chunk.BlockGrid) error {
	edge := grid.Edge()
	origin := pos.ChunkOrigin(edge)
	sea := g.SeaLevel()

	for x := 0; x < edge; x++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for z := 0; z < edge; z++ {
			surface, biome := g.ColumnAt(origin.X+x, origin.Z+z)
			for y := 0; y < edge; y++ {
				id := columnBlock(origin.Y+y, surface, sea, biome)
				if id != block.AirBlockID {
					_, _ = grid.Set(vec.Vec3{X: x, Y: y, Z: z}, id)
				}
			}
		}
	}
	return nil
}

// columnBlock возвращает блок на мировой высоте worldY для колонки
// с поверхностью surface (первый блок воздуха). sea < 0 - без воды.
func columnBlock(worldY, surface, sea int, biome BiomeType) block.BlockID {
	switch {
	case worldY >= surface:
		if worldY < sea {
			return block.WaterBlockID
		}
		return block.AirBlockID
	case worldY < surface-3:
		return block.StoneBlockID
	case worldY < surface-1:
		return subsoilForBiome(biome)
	default:
		return topBlockForBiome(biome)
	}
}

// topBlockForBiome возвращает верхний блок колонки для биома
func topBlockForBiome(biome BiomeType) block.BlockID {
	switch biome {
	case BiomeDesert, BiomeWater, BiomeDeepWater:
		return block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID
	default:
		return block.GrassBlockID
	}
}

func subsoilForBiome(biome BiomeType) block.BlockID {
	switch biome {
	case BiomeDesert, BiomeWater, BiomeDeepWater:
		return block.SandBlockID
	case BiomeMountains:
		return block.StoneBlockID
	default:
		return block.DirtBlockID
	}
}

// getBiomeType определяет тип биома на основе значений шума
func getBiomeType(height, biomeValue float64) BiomeType {
	// Водные биомы в низинах
	if height < DeepWaterMax {
		return BiomeDeepWater
	}
	if height < ShallowWaterMax {
		return BiomeWater
	}

	// Горные биомы на возвышенностях
	if height > MountainStart {
		return BiomeMountains
	}

	// Для средних высот выбираем биом на основе biomeValue
	if biomeValue < 0.35 {
		return BiomeDesert
	} else if biomeValue > 0.65 {
		return BiomeForest
	}

	return BiomePlains
}
