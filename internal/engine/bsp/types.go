// Package bsp holds the read-only spatial index of a loaded level: the node
// tree, leaves with their potentially visible sets, and the surfaces that the
// visibility and batching stages operate on.
package bsp

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/Faultbox/rtquake/pkg/math"
)

// Leaf contents.
const (
	ContentsEmpty = -1
	ContentsSolid = -2
	ContentsWater = -3
	ContentsSlime = -4
	ContentsLava  = -5
	ContentsSky   = -6
)

// Surface flags.
const (
	SurfPlaneBack      = 1 << 1
	SurfDrawSky        = 1 << 2
	SurfDrawSprite     = 1 << 3
	SurfDrawTurb       = 1 << 4
	SurfDrawTiled      = 1 << 5
	SurfDrawBackground = 1 << 6
	SurfUnderwater     = 1 << 7
	SurfNoTexture      = 1 << 8
	SurfDrawFence      = 1 << 9
	SurfDrawLava       = 1 << 10
	SurfDrawSlime      = 1 << 11
	SurfDrawTele       = 1 << 12
	SurfDrawWater      = 1 << 13
)

const (
	// MaxLightmaps is the number of light style layers a surface can carry.
	MaxLightmaps = 4
	// StyleNone terminates a surface's style list.
	StyleNone = 255
	// MaxDLights is the number of dynamic light slots.
	MaxDLights = 64
	// MaxLightStyles is the number of animated light styles.
	MaxLightStyles = 64
)

// Chain selects one of the per-frame texture chains on a texture.
type Chain int

const (
	ChainWorld      Chain = 0
	ChainAlphaModel Chain = 1
	chainModel0     Chain = 2
)

// ChainModel returns the chain used by entity draw context i.
func ChainModel(i int) Chain {
	return chainModel0 + Chain(i)
}

// NumChains returns the chain count needed for the given entity contexts.
func NumChains(entityContexts int) int {
	return int(chainModel0) + entityContexts
}

// Vertex is one entry of the flat brush vertex array.
type Vertex struct {
	Pos     mgl32.Vec3
	ST      [2]float32 // diffuse texture coordinates
	LightST [2]float32 // lightmap atlas coordinates, filled at lightmap build
}

// Texture is a material shared by surfaces. The chain slices are rebuilt
// every frame; each chain has a single writer per frame.
type Texture struct {
	Name     string
	Width    int
	Height   int
	Material uuid.UUID // diffuse material handle

	Warp       bool        // has a procedural warp image
	UpdateWarp atomic.Bool // a liquid surface using it was drawn; cleared at frame end

	AnimTotal      int // frames in the animation cycle, 0 when static
	AnimMin        int
	AnimMax        int
	AnimNext       int // index into Model.Textures, -1 for none
	AlternateAnims int // index into Model.Textures, -1 for none

	Chains [][]int // surface indices per Chain
}

// ChainLen returns the number of surfaces linked into chain this frame.
func (t *Texture) ChainLen(c Chain) int {
	if int(c) >= len(t.Chains) {
		return 0
	}
	return len(t.Chains[c])
}

// TexInfo maps world positions to texture space.
type TexInfo struct {
	Vecs    [2][4]float32
	Texture int
	Flags   int
}

// TexCoord returns the texture-space coordinate of p along axis (0 = s, 1 = t).
func (ti *TexInfo) TexCoord(p mgl32.Vec3, axis int) float32 {
	v := ti.Vecs[axis]
	return p[0]*v[0] + p[1]*v[1] + p[2]*v[2] + v[3]
}

// Surface is a convex polygon of the world or a brush model.
type Surface struct {
	Plane *math.Plane
	Flags int

	FirstVert int // offset into Model.Vertices
	NumVerts  int

	TexInfo     *TexInfo
	TextureMins [2]int
	Extents     [2]int

	LightS   int
	LightT   int
	Lightmap int // atlas page, -1 when unlit

	Styles       [MaxLightmaps]uint8
	CachedLight  [MaxLightmaps]int
	CachedDlight bool
	Samples      []byte // RGB samples, one block per style

	DLightFrame int
	DLightBits  [MaxDLights / 32]uint32

	VisFrame int
}

// LightmapSize returns the lightmap texel dimensions of the surface.
func (s *Surface) LightmapSize() (smax, tmax int) {
	return (s.Extents[0] >> 4) + 1, (s.Extents[1] >> 4) + 1
}

// Leaf is a convex region at the bottom of the node tree.
type Leaf struct {
	Contents      int
	Mins          mgl32.Vec3
	Maxs          mgl32.Vec3
	CompressedVis []byte // nil when the level has no vis data
	MarkSurfaces  []int  // surface indices
	Efrags        []int  // entities linked into the leaf this frame
}

// Node splits space with a plane. Children >= 0 are node indices, negative
// values encode a leaf index as -1-leaf.
type Node struct {
	Plane        *math.Plane
	Children     [2]int
	FirstSurface int
	NumSurfaces  int
}

// LeafChild encodes leaf index i as a node child.
func LeafChild(i int) int { return -1 - i }

// ChildLeaf decodes a negative node child into a leaf index.
func ChildLeaf(c int) int { return -1 - c }

// Model is a world or brush model. Brush submodels share the world's arrays
// and only differ in their surface range and head node.
type Model struct {
	Name string

	Planes       []math.Plane
	Nodes        []Node
	Headnode     int    // -1 when the model has no node tree
	Leafs        []Leaf // Leafs[0] is the shared solid leaf
	NumLeafs     int    // visible leaves, excluding Leafs[0]
	Surfaces     []Surface
	MarkSurfaces []int
	TexInfos     []TexInfo
	Textures     []*Texture
	Vertices     []Vertex

	FirstModelSurface int
	NumModelSurfaces  int

	LightData []byte
	VisData   []byte
	Entities  string

	Mins mgl32.Vec3
	Maxs mgl32.Vec3

	Submodels []*Model
}

// SurfaceTexture returns the texture of surface i.
func (m *Model) SurfaceTexture(i int) *Texture {
	return m.Textures[m.Surfaces[i].TexInfo.Texture]
}

// AllocChains sizes the texture chains of every texture.
func (m *Model) AllocChains(n int) {
	for _, t := range m.Textures {
		if t == nil {
			continue
		}
		t.Chains = make([][]int, n)
	}
}

// ClearChains empties chain c on every texture, keeping capacity.
func (m *Model) ClearChains(c Chain) {
	for _, t := range m.Textures {
		if t == nil || int(c) >= len(t.Chains) {
			continue
		}
		t.Chains[c] = t.Chains[c][:0]
	}
}

// ChainSurface appends surface i to its texture's chain c.
func (m *Model) ChainSurface(i int, c Chain) {
	t := m.SurfaceTexture(i)
	t.Chains[c] = append(t.Chains[c], i)
}

// PointInLeaf returns the index of the leaf containing p.
func (m *Model) PointInLeaf(p mgl32.Vec3) int {
	if m.Headnode < 0 || len(m.Nodes) == 0 {
		return 0
	}
	n := m.Headnode
	for {
		node := &m.Nodes[n]
		c := node.Children[1]
		if node.Plane.Distance(p) > 0 {
			c = node.Children[0]
		}
		if c < 0 {
			return ChildLeaf(c)
		}
		n = c
	}
}

// Submodel returns brush submodel i (1-based, as named "*i" in the entity lump).
func (m *Model) Submodel(i int) *Model {
	if i < 1 || i > len(m.Submodels) {
		return nil
	}
	return m.Submodels[i-1]
}
