// Package mesh walks the terrain grid the rendering side builds its plane
// mesh from, and runs the one-shot generation pass over it.
package mesh

import "math"

// Grid is a square plane of Size world units split into Segments cells per
// side, centred on the origin.
type Grid struct {
	Size     float64
	Segments int
}

// DefaultSegments scales resolution with the square root of the extent.
func DefaultSegments(size float64) int {
	return int(math.Round(12.8 * math.Sqrt(size)))
}

func (g Grid) segments() int {
	if g.Segments > 0 {
		return g.Segments
	}
	if g.Size <= 0 {
		return 0
	}
	return DefaultSegments(g.Size)
}

// Columns is the vertex count per row.
func (g Grid) Columns() int {
	n := g.segments()
	if n == 0 {
		return 0
	}
	return n + 1
}

func (g Grid) Len() int {
	c := g.Columns()
	return c * c
}

// Vertex returns the world (x, z) of vertex i. Rows run along z from -Size/2,
// columns along x. Coordinates are rounded to float32 because that is what
// the vertex buffer holds, and generation must see the same points.
func (g Grid) Vertex(i int) (x, z float64) {
	n := g.segments()
	cols := n + 1
	step := g.Size / float64(n)
	half := g.Size / 2
	ix := i % cols
	iz := i / cols
	x = float64(float32(float64(ix)*step - half))
	z = float64(float32(float64(iz)*step - half))
	return x, z
}

// Contains reports whether (x, z) lies on the plane.
func (g Grid) Contains(x, z float64) bool {
	half := g.Size / 2
	return x >= -half && x <= half && z >= -half && z <= half
}
