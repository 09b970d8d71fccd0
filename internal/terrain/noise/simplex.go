package noise

import "math"

const (
	f3 = 1.0 / 3.0
	g3 = 1.0 / 6.0
)

var grad3 = [36]float64{
	1, 1, 0, -1, 1, 0, 1, -1, 0, -1, -1, 0,
	1, 0, 1, -1, 0, 1, 1, 0, -1, -1, 0, -1,
	0, 1, 1, 0, -1, 1, 0, 1, -1, 0, -1, -1,
}

// Simplex3 is a 3D simplex noise sampler. The tables are fixed at
// construction, so Eval is safe for concurrent use.
type Simplex3 struct {
	perm  [512]int
	gradX [512]float64
	gradY [512]float64
	gradZ [512]float64
}

// NewSimplex3 shuffles the permutation table with draws from rand.
func NewSimplex3(rand func() float64) *Simplex3 {
	s := &Simplex3{}
	var p [256]int
	for i := range p {
		p[i] = i
	}
	for i := 0; i < 255; i++ {
		r := i + int(rand()*float64(256-i))
		p[i], p[r] = p[r], p[i]
	}
	for i := 0; i < 512; i++ {
		v := p[i&255]
		s.perm[i] = v
		g := (v % 12) * 3
		s.gradX[i] = grad3[g]
		s.gradY[i] = grad3[g+1]
		s.gradZ[i] = grad3[g+2]
	}
	return s
}

// Eval samples the field at (x, y, z). The result lies in [-1, 1].
func (s *Simplex3) Eval(x, y, z float64) float64 {
	sk := (x + y + z) * f3
	i := int(math.Floor(x + sk))
	j := int(math.Floor(y + sk))
	k := int(math.Floor(z + sk))
	t := float64(i+j+k) * g3
	x0 := x - (float64(i) - t)
	y0 := y - (float64(j) - t)
	z0 := z - (float64(k) - t)

	var i1, j1, k1, i2, j2, k2 int
	if x0 >= y0 {
		switch {
		case y0 >= z0:
			i1, j1, k1, i2, j2, k2 = 1, 0, 0, 1, 1, 0
		case x0 >= z0:
			i1, j1, k1, i2, j2, k2 = 1, 0, 0, 1, 0, 1
		default:
			i1, j1, k1, i2, j2, k2 = 0, 0, 1, 1, 0, 1
		}
	} else {
		switch {
		case y0 < z0:
			i1, j1, k1, i2, j2, k2 = 0, 0, 1, 0, 1, 1
		case x0 < z0:
			i1, j1, k1, i2, j2, k2 = 0, 1, 0, 0, 1, 1
		default:
			i1, j1, k1, i2, j2, k2 = 0, 1, 0, 1, 1, 0
		}
	}

	x1 := x0 - float64(i1) + g3
	y1 := y0 - float64(j1) + g3
	z1 := z0 - float64(k1) + g3
	x2 := x0 - float64(i2) + 2*g3
	y2 := y0 - float64(j2) + 2*g3
	z2 := z0 - float64(k2) + 2*g3
	x3 := x0 - 1 + 3*g3
	y3 := y0 - 1 + 3*g3
	z3 := z0 - 1 + 3*g3

	ii := i & 255
	jj := j & 255
	kk := k & 255
	p := &s.perm

	n := s.corner(ii+p[jj+p[kk]], x0, y0, z0)
	n += s.corner(ii+i1+p[jj+j1+p[kk+k1]], x1, y1, z1)
	n += s.corner(ii+i2+p[jj+j2+p[kk+k2]], x2, y2, z2)
	n += s.corner(ii+1+p[jj+1+p[kk+1]], x3, y3, z3)
	return 32 * n
}

func (s *Simplex3) corner(gi int, x, y, z float64) float64 {
	t := 0.6 - x*x - y*y - z*z
	if t < 0 {
		return 0
	}
	t *= t
	return t * t * (s.gradX[gi]*x + s.gradY[gi]*y + s.gradZ[gi]*z)
}
