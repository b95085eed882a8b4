package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Euler angle indices, in degrees.
const (
	Pitch = 0
	Yaw   = 1
	Roll  = 2
)

// AngleVectors converts pitch/yaw/roll degrees to forward, right and up vectors.
func AngleVectors(angles mgl32.Vec3) (forward, right, up mgl32.Vec3) {
	sy, cy := math32.Sincos(mgl32.DegToRad(angles[Yaw]))
	sp, cp := math32.Sincos(mgl32.DegToRad(angles[Pitch]))
	sr, cr := math32.Sincos(mgl32.DegToRad(angles[Roll]))

	forward = mgl32.Vec3{cp * cy, cp * sy, -sp}
	right = mgl32.Vec3{
		-sr*sp*cy + cr*sy,
		-sr*sp*sy - cr*cy,
		-sr * cp,
	}
	up = mgl32.Vec3{
		cr*sp*cy + sr*sy,
		cr*sp*sy - sr*cy,
		cr * cp,
	}
	return forward, right, up
}

// RotateForEntity returns the model matrix for an entity at origin with the given angles.
// Yaw rotates about Z, pitch about Y (negated), roll about X.
func RotateForEntity(origin, angles mgl32.Vec3) mgl32.Mat4 {
	m := mgl32.Translate3D(origin[0], origin[1], origin[2])
	m = m.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(angles[Yaw])))
	m = m.Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(-angles[Pitch])))
	m = m.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(angles[Roll])))
	return m
}

// ModelSpaceOrigin transforms a world-space point into an entity's model space,
// undoing the entity origin and angles. Used for per-entity backface culling.
func ModelSpaceOrigin(point, origin, angles mgl32.Vec3) mgl32.Vec3 {
	local := point.Sub(origin)
	if angles[0] == 0 && angles[1] == 0 && angles[2] == 0 {
		return local
	}
	forward, right, up := AngleVectors(angles)
	return mgl32.Vec3{local.Dot(forward), -local.Dot(right), local.Dot(up)}
}
