package placement

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// PlacedObject is one accepted placement. Objects are immutable once Place
// returns them.
type PlacedObject struct {
	Position  mgl64.Vec3
	RotationY float64
	Scale     float64
}

// Transform returns the instance matrix T * Ry * S in the float32 layout
// instance buffers expect.
func (o PlacedObject) Transform() mgl32.Mat4 {
	p := o.Position
	t := mgl32.Translate3D(float32(p.X()), float32(p.Y()), float32(p.Z()))
	r := mgl32.HomogRotate3DY(float32(o.RotationY))
	s := mgl32.Scale3D(float32(o.Scale), float32(o.Scale), float32(o.Scale))
	return t.Mul4(r).Mul4(s)
}
