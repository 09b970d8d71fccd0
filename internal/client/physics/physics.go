// Package physics moves the local player over the terrain height field.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Params struct {
	Height float64
	Radius float64
	Speed  float64
	// JumpVelocity is the upward velocity given by a jump.
	JumpVelocity float64
	// Gravity is signed; negative pulls down.
	Gravity float64
	// Bounds is the terrain side length; the player is kept Radius inside it.
	Bounds float64
}

func DefaultParams() Params {
	return Params{
		Height:       1.8,
		Radius:       0.4,
		Speed:        5,
		JumpVelocity: 7,
		Gravity:      -20,
		Bounds:       1000,
	}
}

// Body is the player capsule; Position is its center.
type Body struct {
	Position  mgl64.Vec3
	VelocityY float64
	Grounded  bool
}

// Input is one frame of movement intent. Forward and Strafe are in [-1,1];
// positive Strafe moves right.
type Input struct {
	Forward float64
	Strafe  float64
}

// HeightFunc returns ground height at a planar position.
type HeightFunc func(x, z float64) float64

// Spawn places a body standing on the ground at (x, z).
func Spawn(x, z float64, ground HeightFunc, p Params) Body {
	return Body{
		Position: mgl64.Vec3{x, ground(x, z) + p.Height/2, z},
		Grounded: true,
	}
}

// Forward is the horizontal facing for yaw in radians; yaw 0 faces -Z.
func Forward(yaw float64) mgl64.Vec3 {
	return mgl64.Vec3{-math.Sin(yaw), 0, -math.Cos(yaw)}
}

func Right(yaw float64) mgl64.Vec3 {
	return Forward(yaw).Cross(mgl64.Vec3{0, 1, 0}).Normalize()
}

// Step advances b by dt seconds and returns the new body. Horizontal motion
// is normalized so diagonal input is not faster. Gravity always applies; the
// body lands when its bottom reaches the ground.
func Step(b Body, in Input, yaw, dt float64, ground HeightFunc, p Params) Body {
	move := Forward(yaw).Mul(in.Forward).Add(Right(yaw).Mul(in.Strafe))
	if move.LenSqr() > 0.0001 {
		move = move.Normalize().Mul(p.Speed * dt)
		b.Position = b.Position.Add(move)

		half := p.Bounds / 2
		b.Position[0] = clamp(b.Position[0], -half+p.Radius, half-p.Radius)
		b.Position[2] = clamp(b.Position[2], -half+p.Radius, half-p.Radius)
	}

	b.VelocityY += p.Gravity * dt
	b.Position[1] += b.VelocityY * dt

	h := ground(b.Position[0], b.Position[2])
	if b.Position[1]-p.Height/2 <= h {
		b.Position[1] = h + p.Height/2
		b.VelocityY = 0
		b.Grounded = true
	} else {
		b.Grounded = false
	}
	return b
}

// Jump starts a jump when grounded and reports whether it did.
func Jump(b *Body, p Params) bool {
	if !b.Grounded {
		return false
	}
	b.VelocityY = p.JumpVelocity
	b.Grounded = false
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
