package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Icosphere returns a sphere of the given radius built by repeated midpoint
// subdivision of an icosahedron.
func Icosphere(subdivisions int, radius float64) (*Mesh, []r3.Vec, error) {
	t := (1 + math.Sqrt(5)) / 2
	pos := []r3.Vec{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < subdivisions; s++ {
		mid := make(map[[2]int]int)
		midpoint := func(a, b int) int {
			k := [2]int{min(a, b), max(a, b)}
			if i, ok := mid[k]; ok {
				return i
			}
			pos = append(pos, r3.Scale(0.5, r3.Add(pos[a], pos[b])))
			mid[k] = len(pos) - 1
			return len(pos) - 1
		}
		next := make([][3]int, 0, 4*len(faces))
		for _, f := range faces {
			ab, bc, ca := midpoint(f[0], f[1]), midpoint(f[1], f[2]), midpoint(f[2], f[0])
			next = append(next,
				[3]int{f[0], ab, ca},
				[3]int{f[1], bc, ab},
				[3]int{f[2], ca, bc},
				[3]int{ab, bc, ca},
			)
		}
		faces = next
	}

	for i := range pos {
		pos[i] = r3.Scale(radius, r3.Unit(pos[i]))
	}
	m, err := FromFaces(len(pos), faces)
	return m, pos, err
}

// Hexagon returns a flat hexagonal patch in the xy plane with the given
// circumradius and number of triangle rings.
func Hexagon(radius float64, rings int) (*Mesh, []r3.Vec, error) {
	if rings < 1 {
		rings = 1
	}
	h := radius / float64(rings)
	index := make(map[[2]int]int)
	var pos []r3.Vec
	for r := -rings; r <= rings; r++ {
		for q := -rings; q <= rings; q++ {
			if abs(q+r) > rings {
				continue
			}
			index[[2]int{q, r}] = len(pos)
			pos = append(pos, r3.Vec{
				X: h * (float64(q) + float64(r)/2),
				Y: h * float64(r) * math.Sqrt(3) / 2,
			})
		}
	}
	var faces [][3]int
	for r := -rings; r <= rings; r++ {
		for q := -rings - 1; q <= rings; q++ {
			p, okP := index[[2]int{q, r}]
			right, okR := index[[2]int{q + 1, r}]
			up, okU := index[[2]int{q, r + 1}]
			upRight, okUR := index[[2]int{q + 1, r + 1}]
			if okP && okR && okU {
				faces = append(faces, [3]int{p, right, up})
			}
			if okR && okUR && okU {
				faces = append(faces, [3]int{right, upRight, up})
			}
		}
	}
	m, err := FromFaces(len(pos), faces)
	return m, pos, err
}

// Cylinder returns an open tube along z.
func Cylinder(radius, height float64, nTheta, nZ int) (*Mesh, []r3.Vec, error) {
	nTheta = max(nTheta, 3)
	nZ = max(nZ, 1)
	var pos []r3.Vec
	for k := 0; k <= nZ; k++ {
		z := height * (float64(k)/float64(nZ) - 0.5)
		for i := 0; i < nTheta; i++ {
			th := 2 * math.Pi * float64(i) / float64(nTheta)
			pos = append(pos, r3.Vec{X: radius * math.Cos(th), Y: radius * math.Sin(th), Z: z})
		}
	}
	at := func(k, i int) int { return k*nTheta + (i % nTheta) }
	var faces [][3]int
	for k := 0; k < nZ; k++ {
		for i := 0; i < nTheta; i++ {
			faces = append(faces,
				[3]int{at(k, i), at(k, i+1), at(k+1, i+1)},
				[3]int{at(k, i), at(k+1, i+1), at(k+1, i)},
			)
		}
	}
	m, err := FromFaces(len(pos), faces)
	return m, pos, err
}

func Tetrahedron() (*Mesh, []r3.Vec, error) {
	pos := []r3.Vec{
		{X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: 1},
	}
	faces := [][3]int{{0, 1, 2}, {0, 3, 1}, {0, 2, 3}, {1, 3, 2}}
	m, err := FromFaces(len(pos), faces)
	return m, pos, err
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
