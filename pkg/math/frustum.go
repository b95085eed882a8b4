package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Frustum holds the four side planes of the view pyramid (right, left, bottom, top).
// Near and far clipping are left to the backend.
type Frustum [4]Plane

// NewFrustum builds the side planes for a viewer at origin looking along forward.
// Field-of-view angles are in degrees.
func NewFrustum(origin, forward, right, up mgl32.Vec3, fovX, fovY float32) Frustum {
	var f Frustum
	normals := [4]mgl32.Vec3{
		TurnVector(forward, right, fovX/2-90), // right plane
		TurnVector(forward, right, 90-fovX/2), // left plane
		TurnVector(forward, up, 90-fovY/2),    // bottom plane
		TurnVector(forward, up, fovY/2-90),    // top plane
	}
	for i, n := range normals {
		f[i] = Plane{
			Normal:   n,
			Dist:     origin.Dot(n),
			Type:     PlaneAnyZ,
			SignBits: SignBitsFor(n),
		}
	}
	return f
}

// TurnVector turns forward towards side by angle degrees on the plane they span.
// forward and side must be perpendicular unit vectors.
func TurnVector(forward, side mgl32.Vec3, angle float32) mgl32.Vec3 {
	rad := mgl32.DegToRad(angle)
	scaleForward := math32.Cos(rad)
	scaleSide := math32.Sin(rad)
	return forward.Mul(scaleForward).Add(side.Mul(scaleSide))
}

// CullBox reports whether the box lies completely outside the frustum.
func (f *Frustum) CullBox(mins, maxs mgl32.Vec3) bool {
	for i := range f {
		if !f[i].BoxInFront(mins, maxs) {
			return true
		}
	}
	return false
}

// BoxInFront reports whether any part of the box is on the front side of the plane.
// The corner furthest along the normal is selected with the sign bits.
func (p *Plane) BoxInFront(mins, maxs mgl32.Vec3) bool {
	var v mgl32.Vec3
	for j := 0; j < 3; j++ {
		if p.SignBits&(1<<j) == 0 {
			v[j] = maxs[j]
		} else {
			v[j] = mins[j]
		}
	}
	return p.Normal.Dot(v) >= p.Dist
}
