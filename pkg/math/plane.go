// Package math provides the plane, frustum and angle helpers shared by the
// world renderer. Vector and matrix types come from mgl32.
package math

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane types. Values below PlaneAnyX are axial and allow a fast distance test.
const (
	PlaneX    uint8 = 0
	PlaneY    uint8 = 1
	PlaneZ    uint8 = 2
	PlaneAnyX uint8 = 3
	PlaneAnyY uint8 = 4
	PlaneAnyZ uint8 = 5
)

// Plane is a plane in Hessian normal form: Normal·p == Dist.
type Plane struct {
	Normal   mgl32.Vec3
	Dist     float32
	Type     uint8
	SignBits uint8 // bit i set when Normal[i] < 0
}

// NewPlane builds a plane and classifies its type and sign bits.
func NewPlane(normal mgl32.Vec3, dist float32) Plane {
	return Plane{
		Normal:   normal,
		Dist:     dist,
		Type:     planeTypeFor(normal),
		SignBits: SignBitsFor(normal),
	}
}

// SignBitsFor returns the sign bits used for fast box-on-plane tests.
func SignBitsFor(normal mgl32.Vec3) uint8 {
	var bits uint8
	for j := 0; j < 3; j++ {
		if normal[j] < 0 {
			bits |= 1 << j
		}
	}
	return bits
}

func planeTypeFor(n mgl32.Vec3) uint8 {
	switch {
	case n[0] == 1 || n[0] == -1:
		if n[1] == 0 && n[2] == 0 {
			return PlaneX
		}
	case n[1] == 1 || n[1] == -1:
		if n[0] == 0 && n[2] == 0 {
			return PlaneY
		}
	case n[2] == 1 || n[2] == -1:
		if n[0] == 0 && n[1] == 0 {
			return PlaneZ
		}
	}

	ax, ay, az := abs(n[0]), abs(n[1]), abs(n[2])
	if ax >= ay && ax >= az {
		return PlaneAnyX
	}
	if ay >= ax && ay >= az {
		return PlaneAnyY
	}
	return PlaneAnyZ
}

// Distance returns the signed distance from point to the plane.
func (p *Plane) Distance(point mgl32.Vec3) float32 {
	if p.Type < PlaneAnyX && p.Normal[p.Type] == 1 {
		return point[p.Type] - p.Dist
	}
	return point.Dot(p.Normal) - p.Dist
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
