package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется и для позиций блоков в мире, и для координат чанков.
type Vec3 struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Zero нулевой вектор
var Zero = Vec3{}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Mul умножает все компоненты на скаляр
func (v Vec3) Mul(factor int) Vec3 {
	return Vec3{X: v.X * factor, Y: v.Y * factor, Z: v.Z * factor}
}

// Axis возвращает компоненту по номеру оси (0 - X, 1 - Y, 2 - Z)
func (v Vec3) Axis(d int) int {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// WithAxis возвращает копию вектора с заменённой компонентой
func (v Vec3) WithAxis(d, value int) Vec3 {
	switch d {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// DistanceSq возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// ChunkCoords преобразует глобальные координаты блока в координаты чанка.
// edge должен быть степенью двойки; для отрицательных координат работает
// как деление с округлением вниз (арифметический сдвиг).
func (v Vec3) ChunkCoords(edge int) Vec3 {
	shift := Log2(edge)
	return Vec3{X: v.X >> shift, Y: v.Y >> shift, Z: v.Z >> shift}
}

// LocalInChunk возвращает локальные координаты блока внутри чанка
func (v Vec3) LocalInChunk(edge int) Vec3 {
	mask := edge - 1
	return Vec3{X: v.X & mask, Y: v.Y & mask, Z: v.Z & mask}
}

// ChunkOrigin возвращает мировые координаты угла чанка
func (v Vec3) ChunkOrigin(edge int) Vec3 {
	return v.Mul(edge)
}

// String для логов
func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// IsPowerOfTwo проверяет, что n > 0 и является степенью двойки
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 возвращает показатель степени двойки для n
func Log2(n int) uint {
	var shift uint
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}
