package block

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// BlockID представляет идентификатор блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5
	GlassBlockID                // 6

	// UngeneratedBlockID возвращается для чанков, которые ещё не загружены
	// или не сгенерированы. Никогда не хранится в сетке загруженного чанка.
	UngeneratedBlockID BlockID = math.MaxUint16
)

// Материалы блоков по умолчанию
const (
	MaterialStone = iota
	MaterialGrassTop
	MaterialGrassSide
	MaterialDirt
	MaterialWater
	MaterialSand
	MaterialGlass
)

// NoMaterial возвращается для невидимых блоков
const NoMaterial = -1

// Registry описывает свойства блоков, нужные для построения мешей.
type Registry interface {
	// IsVisible сообщает, рисуется ли блок вообще
	IsVisible(id BlockID) bool
	// IsTransparent сообщает, пропускает ли блок свет (вода, стекло)
	IsTransparent(id BlockID) bool
	// MaterialID возвращает материал грани side
	MaterialID(id BlockID, side Side) int
}

// IsSolid возвращает true для видимых непрозрачных блоков.
// Такие блоки участвуют в меше коллизий.
func IsSolid(r Registry, id BlockID) bool {
	return r.IsVisible(id) && !r.IsTransparent(id)
}

// Materials возвращает отсортированный список материалов всех граней блока
func Materials(r Registry, id BlockID) []int {
	if !r.IsVisible(id) {
		return nil
	}
	seen := make(map[int]struct{}, SideCount)
	for _, side := range AllSides {
		seen[r.MaterialID(id, side)] = struct{}{}
	}
	result := make([]int, 0, len(seen))
	for m := range seen {
		result = append(result, m)
	}
	sort.Ints(result)
	return result
}

// Definition описывает один тип блока
type Definition struct {
	ID          BlockID
	Name        string
	Visible     bool
	Transparent bool
	Faces       [SideCount]int // материал для каждой грани
}

// UniformDefinition создаёт описание блока с одним материалом на всех гранях
func UniformDefinition(id BlockID, name string, material int, transparent bool) Definition {
	def := Definition{ID: id, Name: name, Visible: true, Transparent: transparent}
	for i := range def.Faces {
		def.Faces[i] = material
	}
	return def
}

// DefinitionRegistry реализует Registry на основе таблицы описаний.
// Неизвестные ID считаются невидимыми.
type DefinitionRegistry struct {
	mu   sync.RWMutex
	defs map[BlockID]Definition
}

// NewDefinitionRegistry создаёт пустой регистр
func NewDefinitionRegistry() *DefinitionRegistry {
	return &DefinitionRegistry{
		defs: make(map[BlockID]Definition),
	}
}

// NewDefaultRegistry создаёт регистр со стандартным набором блоков
func NewDefaultRegistry() *DefinitionRegistry {
	r := NewDefinitionRegistry()

	grass := UniformDefinition(GrassBlockID, "grass", MaterialGrassSide, false)
	grass.Faces[SideYPos] = MaterialGrassTop
	grass.Faces[SideYNeg] = MaterialDirt

	defs := []Definition{
		{ID: AirBlockID, Name: "air"},
		UniformDefinition(StoneBlockID, "stone", MaterialStone, false),
		grass,
		UniformDefinition(WaterBlockID, "water", MaterialWater, true),
		UniformDefinition(SandBlockID, "sand", MaterialSand, false),
		UniformDefinition(DirtBlockID, "dirt", MaterialDirt, false),
		UniformDefinition(GlassBlockID, "glass", MaterialGlass, true),
	}
	for _, def := range defs {
		// ID уникальны, ошибка невозможна
		_ = r.Register(def)
	}
	return r
}

// Register добавляет описание блока в регистр
func (r *DefinitionRegistry) Register(def Definition) error {
	if def.ID == UngeneratedBlockID {
		return fmt.Errorf("block id %d is reserved for ungenerated chunks", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.defs[def.ID]; ok {
		return fmt.Errorf("block id %d already registered as %q", def.ID, existing.Name)
	}
	r.defs[def.ID] = def
	return nil
}

// Get возвращает описание блока
func (r *DefinitionRegistry) Get(id BlockID) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	return def, ok
}

// Len возвращает число зарегистрированных блоков
func (r *DefinitionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// IsVisible реализует Registry
func (r *DefinitionRegistry) IsVisible(id BlockID) bool {
	def, ok := r.Get(id)
	return ok && def.Visible
}

// IsTransparent реализует Registry
func (r *DefinitionRegistry) IsTransparent(id BlockID) bool {
	def, ok := r.Get(id)
	return ok && def.Transparent
}

// MaterialID реализует Registry
func (r *DefinitionRegistry) MaterialID(id BlockID, side Side) int {
	def, ok := r.Get(id)
	if !ok || !def.Visible || int(side) >= SideCount {
		return NoMaterial
	}
	return def.Faces[side]
}
