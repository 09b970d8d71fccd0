package placement

import "math"

type cellKey struct{ x, z int }

// spatialHash buckets accepted points by cell so the separation check only
// visits the 3x3 neighbourhood. With cell size equal to the minimum
// separation, any point closer than that lies in a neighbouring cell.
type spatialHash struct {
	cell  float64
	cells map[cellKey][]int
	xs    []float64
	zs    []float64
}

func newSpatialHash(cell float64, capHint int) *spatialHash {
	return &spatialHash{
		cell:  cell,
		cells: make(map[cellKey][]int),
		xs:    make([]float64, 0, capHint),
		zs:    make([]float64, 0, capHint),
	}
}

func (h *spatialHash) key(x, z float64) cellKey {
	return cellKey{int(math.Floor(x / h.cell)), int(math.Floor(z / h.cell))}
}

func (h *spatialHash) insert(x, z float64) {
	k := h.key(x, z)
	h.cells[k] = append(h.cells[k], len(h.xs))
	h.xs = append(h.xs, x)
	h.zs = append(h.zs, z)
}

// near reports whether any stored point is strictly closer than minDistSq.
func (h *spatialHash) near(x, z, minDistSq float64) bool {
	k := h.key(x, z)
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			for _, i := range h.cells[cellKey{k.x + dx, k.z + dz}] {
				ddx := h.xs[i] - x
				ddz := h.zs[i] - z
				if ddx*ddx+ddz*ddz < minDistSq {
					return true
				}
			}
		}
	}
	return false
}
