package mesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/annel0/voxel-world/internal/world/chunk"
)

// ErrInvalidGrid возвращается для снимка с несогласованными размерами
var ErrInvalidGrid = errors.New("mesh: invalid grid")

// Quad прямоугольная грань, полученная слиянием соседних граней блоков.
// Углы заданы в локальных координатах чанка против часовой стрелки,
// если смотреть снаружи (со стороны нормали).
type Quad struct {
	Corners  [4]vec.Vec3
	Side     block.Side
	Material int
	Width    int // по оси u плоскости грани
	Height   int // по оси v плоскости грани
}

// Normal возвращает нормаль квада
func (q Quad) Normal() vec.Vec3 {
	return q.Side.Normal()
}

// Area возвращает площадь квада в гранях блоков
func (q Quad) Area() int {
	return q.Width * q.Height
}

// Validate проверяет согласованность размеров снимка
func Validate(s *chunk.Snapshot) error {
	if s == nil || s.Grid == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidGrid)
	}
	edge := s.Grid.Edge()
	if !vec.IsPowerOfTwo(edge) || s.Grid.Len() != edge*edge*edge {
		return fmt.Errorf("%w: %d blocks for edge %d", ErrInvalidGrid, s.Grid.Len(), edge)
	}
	for _, side := range block.AllSides {
		b := s.Borders[side]
		if b.Edge != edge || len(b.Blocks) != edge*edge {
			return fmt.Errorf("%w: border %s has %d blocks, want %d", ErrInvalidGrid, side, len(b.Blocks), edge*edge)
		}
	}
	return nil
}

// Greedy строит список квадов для одного материала.
//
// Стороны обходятся в порядке -X,+X,-Y,+Y,-Z,+Z, слои по возрастанию, строки
// по v, столбцы по u, поэтому результат зависит только от содержимого снимка.
// Между слоями проверяется отмена ctx.
func Greedy(ctx context.Context, s *chunk.Snapshot, material int, face FaceFunc) ([]Quad, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	edge := s.Edge()
	mask := make([]bool, edge*edge)
	var quads []Quad

	for _, side := range block.AllSides {
		d := side.Axis()
		u, v := side.PlaneAxes()

		for layer := 0; layer < edge; layer++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			// Маска граней слоя: n = i + j*edge, i по u, j по v
			var p vec.Vec3
			p = p.WithAxis(d, layer)
			found := false
			for j := 0; j < edge; j++ {
				p = p.WithAxis(v, j)
				for i := 0; i < edge; i++ {
					p = p.WithAxis(u, i)
					ok := face(s, p.X, p.Y, p.Z, side, material)
					mask[i+j*edge] = ok
					found = found || ok
				}
			}
			if !found {
				continue
			}

			for j := 0; j < edge; j++ {
				for i := 0; i < edge; {
					if !mask[i+j*edge] {
						i++
						continue
					}

					// Ширина вдоль u
					w := 1
					for i+w < edge && mask[i+w+j*edge] {
						w++
					}

					// Высота вдоль v, пока вся строка кандидата свободна
					h := 1
				grow:
					for j+h < edge {
						for k := 0; k < w; k++ {
							if !mask[i+k+(j+h)*edge] {
								break grow
							}
						}
						h++
					}

					// Гасим использованные клетки
					for l := 0; l < h; l++ {
						for k := 0; k < w; k++ {
							mask[i+k+(j+l)*edge] = false
						}
					}

					quads = append(quads, makeQuad(side, layer, i, j, w, h, material))
					i += w
				}
			}
		}
	}

	return quads, nil
}

// makeQuad вычисляет углы квада. Для положительной стороны плоскость лежит
// на layer+1, обход (0,0),(w,0),(w,h),(0,h) в осях u,v; для отрицательной
// обход обратный.
func makeQuad(side block.Side, layer, i, j, w, h, material int) Quad {
	d := side.Axis()
	u, v := side.PlaneAxes()

	plane := layer
	if side.Positive() {
		plane = layer + 1
	}

	var base vec.Vec3
	base = base.WithAxis(d, plane).WithAxis(u, i).WithAxis(v, j)
	du := vec.Vec3{}.WithAxis(u, w)
	dv := vec.Vec3{}.WithAxis(v, h)

	q := Quad{Side: side, Material: material, Width: w, Height: h}
	if side.Positive() {
		q.Corners = [4]vec.Vec3{base, base.Add(du), base.Add(du).Add(dv), base.Add(dv)}
	} else {
		q.Corners = [4]vec.Vec3{base, base.Add(dv), base.Add(du).Add(dv), base.Add(du)}
	}
	return q
}
