// Package batch turns per-texture surface chains into backend uploads,
// merging consecutive surfaces that share draw state into one batch.
package batch

import (
	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
)

// NumFanIndices returns the index count of a fan over v vertices.
func NumFanIndices(v int) int {
	return max(0, 3*(v-2))
}

// FanIndices appends the triangle list of a fan over v vertices starting
// at base. Triangle i is (base+i, base+i-1, base).
func FanIndices(dst []uint32, base uint32, v int) []uint32 {
	for i := 2; i < v; i++ {
		dst = append(dst, base+uint32(i), base+uint32(i-1), base)
	}
	return dst
}

// BrushVertices converts the model's flat vertex array into backend vertices.
// It runs once per level, after lightmap coordinates are assigned. Submodels
// share the world's array.
func BrushVertices(m *bsp.Model) []renderer.Vertex {
	out := make([]renderer.Vertex, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = renderer.Vertex{
			Position:   v.Pos,
			TexCoord:   v.ST,
			LightCoord: v.LightST,
			Color:      0xFFFFFFFF,
		}
	}
	return out
}
