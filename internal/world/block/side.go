package block

import "github.com/annel0/voxel-world/internal/vec"

// Side обозначает одну из шести граней блока (и направление соседа).
type Side uint8

const (
	SideXNeg Side = iota // -X
	SideXPos             // +X
	SideYNeg             // -Y (низ)
	SideYPos             // +Y (верх)
	SideZNeg             // -Z
	SideZPos             // +Z
)

// SideCount количество граней
const SideCount = 6

// AllSides перечисляет грани в каноническом порядке обхода
var AllSides = [SideCount]Side{SideXNeg, SideXPos, SideYNeg, SideYPos, SideZNeg, SideZPos}

// Axis возвращает номер оси грани (0 - X, 1 - Y, 2 - Z)
func (s Side) Axis() int {
	return int(s) / 2
}

// Positive возвращает true для граней, смотрящих в положительном направлении
func (s Side) Positive() bool {
	return s%2 == 1
}

// Opposite возвращает противоположную грань
func (s Side) Opposite() Side {
	return s ^ 1
}

// Normal возвращает единичный вектор нормали грани
func (s Side) Normal() vec.Vec3 {
	step := -1
	if s.Positive() {
		step = 1
	}
	return vec.Vec3{}.WithAxis(s.Axis(), step)
}

// PlaneAxes возвращает оси u и v плоскости грани: u=(d+1)%3, v=(d+2)%3.
// Порядок выбран так, что u×v совпадает с положительной нормалью оси d.
func (s Side) PlaneAxes() (u, v int) {
	d := s.Axis()
	return (d + 1) % 3, (d + 2) % 3
}

// String возвращает строковое представление грани
func (s Side) String() string {
	switch s {
	case SideXNeg:
		return "-x"
	case SideXPos:
		return "+x"
	case SideYNeg:
		return "-y"
	case SideYPos:
		return "+y"
	case SideZNeg:
		return "-z"
	case SideZPos:
		return "+z"
	default:
		return "unknown"
	}
}
