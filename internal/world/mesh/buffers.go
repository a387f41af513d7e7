package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Mesh готовые индексированные буферы одного материала чанка.
// Каждый квад даёт 4 вершины и 6 индексов (два треугольника 0-1-2, 0-2-3).
type Mesh struct {
	Material  int
	Quads     []Quad
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2 // повторяются по размеру квада, текстура тайлится
	Indices   []uint32
}

// NewMesh строит буферы из списка квадов
func NewMesh(material int, quads []Quad) *Mesh {
	m := &Mesh{
		Material:  material,
		Quads:     quads,
		Positions: make([]mgl32.Vec3, 0, len(quads)*4),
		Normals:   make([]mgl32.Vec3, 0, len(quads)*4),
		UVs:       make([]mgl32.Vec2, 0, len(quads)*4),
		Indices:   make([]uint32, 0, len(quads)*6),
	}
	for _, q := range quads {
		m.AppendQuad(q)
	}
	return m
}

// AppendQuad добавляет квад в буферы
func (m *Mesh) AppendQuad(q Quad) {
	base := uint32(len(m.Positions))

	n := q.Normal()
	normal := mgl32.Vec3{float32(n.X), float32(n.Y), float32(n.Z)}

	w, h := float32(q.Width), float32(q.Height)
	uvs := [4]mgl32.Vec2{{0, 0}, {w, 0}, {w, h}, {0, h}}
	if !q.Side.Positive() {
		// Для отрицательных сторон обход углов идёт по v раньше u
		uvs = [4]mgl32.Vec2{{0, 0}, {0, h}, {w, h}, {w, 0}}
	}

	for i, c := range q.Corners {
		m.Positions = append(m.Positions, mgl32.Vec3{float32(c.X), float32(c.Y), float32(c.Z)})
		m.Normals = append(m.Normals, normal)
		m.UVs = append(m.UVs, uvs[i])
	}

	m.Indices = append(m.Indices,
		base, base+1, base+2,
		base, base+2, base+3,
	)
}

// IsEmpty сообщает, что в меше нет ни одного квада
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Quads) == 0
}

// QuadCount возвращает число квадов
func (m *Mesh) QuadCount() int {
	if m == nil {
		return 0
	}
	return len(m.Quads)
}

// VertexCount возвращает число вершин
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Positions)
}

// Bounds возвращает минимальный и максимальный углы меша
func (m *Mesh) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	if m.VertexCount() == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	lo, hi := m.Positions[0], m.Positions[0]
	for _, p := range m.Positions[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	return lo, hi
}
