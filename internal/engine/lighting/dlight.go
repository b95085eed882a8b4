package lighting

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
)

// DLight is a short-lived dynamic light such as a muzzle flash.
type DLight struct {
	Key      int
	Origin   mgl32.Vec3
	Radius   float32
	MinLight float32
	Color    mgl32.Vec3
	Die      float64 // client time after which the light is dead
}

// Alive reports whether the light contributes at time t.
func (l *DLight) Alive(t float64) bool {
	return l.Die >= t && l.Radius != 0
}

// DLights is the fixed table of dynamic light slots.
type DLights [bsp.MaxDLights]DLight

// PushDlights marks world surfaces touched by every live light with frame.
func PushDlights(world *bsp.Model, lights *DLights, t float64, frame int) {
	for i := range lights {
		l := &lights[i]
		if !l.Alive(t) {
			continue
		}
		MarkLights(world, l, i, world.Headnode, frame)
	}
}

// MarkModelLights marks the surfaces of a brush model. Models without a
// node tree are tested surface by surface.
func MarkModelLights(m *bsp.Model, lights *DLights, t float64, frame int) {
	for i := range lights {
		l := &lights[i]
		if !l.Alive(t) {
			continue
		}
		if m.Headnode >= 0 {
			MarkLights(m, l, i, m.Headnode, frame)
			continue
		}
		maxdist := l.Radius * l.Radius
		for si := m.FirstModelSurface; si < m.FirstModelSurface+m.NumModelSurfaces; si++ {
			surf := &m.Surfaces[si]
			dist := surf.Plane.Distance(l.Origin)
			if dist > l.Radius || dist < -l.Radius {
				continue
			}
			markSurface(surf, l, i, dist, maxdist, frame)
		}
	}
}

// MarkLights walks the node tree from node and flags every surface within
// the radius of light num.
func MarkLights(m *bsp.Model, l *DLight, num, node, frame int) {
	for node >= 0 {
		n := &m.Nodes[node]
		dist := n.Plane.Distance(l.Origin)
		if dist > l.Radius {
			node = n.Children[0]
			continue
		}
		if dist < -l.Radius {
			node = n.Children[1]
			continue
		}

		maxdist := l.Radius * l.Radius
		for i := n.FirstSurface; i < n.FirstSurface+n.NumSurfaces; i++ {
			markSurface(&m.Surfaces[i], l, num, dist, maxdist, frame)
		}

		if n.Children[0] >= 0 {
			MarkLights(m, l, num, n.Children[0], frame)
		}
		node = n.Children[1]
	}
}

// markSurface clamps the light's impact point to the surface extents and
// sets the light's bit when the clamped distance is inside the radius.
func markSurface(surf *bsp.Surface, l *DLight, num int, dist, maxdist float32, frame int) {
	impact := l.Origin.Sub(surf.Plane.Normal.Mul(dist))
	ti := surf.TexInfo

	ls := ti.TexCoord(impact, 0) - float32(surf.TextureMins[0])
	s := int(ls + 0.5)
	s = min(max(s, 0), surf.Extents[0])
	s = int(ls - float32(s))

	lt := ti.TexCoord(impact, 1) - float32(surf.TextureMins[1])
	t := int(lt + 0.5)
	t = min(max(t, 0), surf.Extents[1])
	t = int(lt - float32(t))

	if float32(s*s+t*t)+dist*dist >= maxdist {
		return
	}
	if surf.DLightFrame != frame {
		clear(surf.DLightBits[:])
		surf.DLightFrame = frame
	}
	surf.DLightBits[num>>5] |= 1 << (num & 31)
}
