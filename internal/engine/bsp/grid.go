package bsp

import (
	"fmt"
	stdmath "math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/rtquake/pkg/math"
)

// GridOptions describes a synthetic level: a corridor of cubic cells laid out
// along +X, each cell one leaf, separated by one-sided divider walls.
type GridOptions struct {
	Cells       int     // leaves along +X
	CellSize    float32 // edge length of each cell
	VisRadius   int     // cells visible on each side of a cell, negative for all
	Textures    int     // distinct wall textures
	WaterCell   int     // cell whose floor is a water surface, -1 for none
	SkyCell     int     // cell with sky contents and a sky ceiling, -1 for none
	Doors       int     // brush submodels, one per cell starting at cell 0
	Teleport    bool    // the last door is a teleport trigger
	NoLightData bool    // leave the level without lightmap samples
	NoVisData   bool    // leave the level without a PVS
}

// DefaultGridOptions returns a small level used by tests and tools.
func DefaultGridOptions() GridOptions {
	return GridOptions{
		Cells:     40,
		CellSize:  128,
		VisRadius: 3,
		Textures:  4,
		WaterCell: -1,
		SkyCell:   -1,
	}
}

const (
	gridPlaneFloor = iota
	gridPlaneCeiling
	gridPlaneWallNear
	gridPlaneWallFar
	gridPlaneDividers
)

// gridFlickerStyle is the light style of the lights placed in every fourth cell.
const gridFlickerStyle = 3

type gridBuilder struct {
	opts    GridOptions
	m       *Model
	texWall []int
	texSky  int
	texWtr  int
	texTele int
}

// NewGridLevel builds a complete world model from opts: node tree, leaves,
// RLE-compressed PVS, surfaces with texinfo and extents, light samples,
// brush submodels and an entity lump.
func NewGridLevel(opts GridOptions) *Model {
	if opts.Cells < 1 {
		opts.Cells = 1
	}
	if opts.CellSize <= 0 {
		opts.CellSize = 128
	}
	if opts.Textures < 1 {
		opts.Textures = 1
	}
	if opts.Doors > opts.Cells {
		opts.Doors = opts.Cells
	}

	b := &gridBuilder{opts: opts, m: &Model{Name: "maps/grid.bsp"}}
	b.buildTextures()
	b.buildPlanes()

	m := b.m
	m.NumLeafs = opts.Cells
	m.Leafs = make([]Leaf, opts.Cells+1)
	m.Leafs[0] = Leaf{Contents: ContentsSolid}

	// world surfaces are laid out node by node so each node owns a
	// contiguous surface range
	m.Headnode = b.buildRange(0, opts.Cells)
	m.FirstModelSurface = 0
	m.NumModelSurfaces = len(m.Surfaces)

	b.buildMarkSurfaces()
	doors := b.buildDoorSurfaces()
	for i := range m.Surfaces {
		m.Surfaces[i].TexInfo = &m.TexInfos[i]
	}
	b.buildLightData()
	if !opts.NoVisData {
		b.buildVis()
	}
	b.buildEntities()

	size := opts.CellSize
	m.Mins = mgl32.Vec3{0, 0, 0}
	m.Maxs = mgl32.Vec3{float32(opts.Cells) * size, size, size}

	// submodels share the finished arrays
	for d, r := range doors {
		sub := *m
		sub.Name = fmt.Sprintf("*%d", d+1)
		sub.Headnode = -1
		sub.FirstModelSurface = r[0]
		sub.NumModelSurfaces = r[1]
		sub.Mins, sub.Maxs = b.doorBounds(d)
		sub.Submodels = nil
		m.Submodels = append(m.Submodels, &sub)
	}
	return m
}

func (b *gridBuilder) buildTextures() {
	m := b.m
	for i := 0; i < b.opts.Textures; i++ {
		b.texWall = append(b.texWall, len(m.Textures))
		m.Textures = append(m.Textures, newTexture(fmt.Sprintf("wall%d", i), 64, 64))
	}
	b.texSky = len(m.Textures)
	m.Textures = append(m.Textures, newTexture("sky1", 256, 128))
	b.texWtr = len(m.Textures)
	water := newTexture("*water0", 64, 64)
	water.Warp = true
	m.Textures = append(m.Textures, water)
	b.texTele = len(m.Textures)
	tele := newTexture("*teleport", 64, 64)
	tele.Warp = true
	m.Textures = append(m.Textures, tele)
}

func (b *gridBuilder) isTeleport(d int) bool {
	return b.opts.Teleport && d == b.opts.Doors-1
}

func newTexture(name string, w, h int) *Texture {
	return &Texture{
		Name:           name,
		Width:          w,
		Height:         h,
		AnimNext:       -1,
		AlternateAnims: -1,
	}
}

func (b *gridBuilder) buildPlanes() {
	size := b.opts.CellSize
	n := gridPlaneDividers + (b.opts.Cells - 1) + 6*b.opts.Doors
	// surfaces and nodes keep pointers into this slice, so it is sized once
	planes := make([]math.Plane, 0, n)
	planes = append(planes,
		math.NewPlane(mgl32.Vec3{0, 0, 1}, 0),
		math.NewPlane(mgl32.Vec3{0, 0, 1}, size),
		math.NewPlane(mgl32.Vec3{0, 1, 0}, 0),
		math.NewPlane(mgl32.Vec3{0, 1, 0}, size),
	)
	for k := 1; k < b.opts.Cells; k++ {
		planes = append(planes, math.NewPlane(mgl32.Vec3{1, 0, 0}, float32(k)*size))
	}
	for d := 0; d < b.opts.Doors; d++ {
		lo, hi := b.doorBounds(d)
		for axis := 0; axis < 3; axis++ {
			var n mgl32.Vec3
			n[axis] = 1
			planes = append(planes, math.NewPlane(n, hi[axis]), math.NewPlane(n, lo[axis]))
		}
	}
	b.m.Planes = planes
}

func (b *gridBuilder) dividerPlane(k int) *math.Plane {
	return &b.m.Planes[gridPlaneDividers+k-1]
}

func (b *gridBuilder) doorBounds(d int) (lo, hi mgl32.Vec3) {
	size := b.opts.CellSize
	cx := (float32(d) + 0.5) * size
	q := size / 8
	return mgl32.Vec3{cx - q, size/2 - q, 0}, mgl32.Vec3{cx + q, size/2 + q, 2 * q}
}

// buildRange builds the subtree for cells [lo, hi) and returns its child code.
func (b *gridBuilder) buildRange(lo, hi int) int {
	if hi-lo == 1 {
		return b.buildCell(lo)
	}
	mid := (lo + hi) / 2
	size := b.opts.CellSize
	m := b.m

	idx := len(m.Nodes)
	m.Nodes = append(m.Nodes, Node{Plane: b.dividerPlane(mid), FirstSurface: len(m.Surfaces), NumSurfaces: 1})
	x := float32(mid) * size
	b.addQuad([4]mgl32.Vec3{
		{x, 0, 0}, {x, size, 0}, {x, size, size}, {x, 0, size},
	}, b.dividerPlane(mid), false, b.texWall[mid%len(b.texWall)], 0)

	front := b.buildRange(mid, hi)
	back := b.buildRange(lo, mid)
	m.Nodes[idx].Children = [2]int{front, back}
	return idx
}

// buildCell emits the four nodes bounding cell i and its leaf. Every node
// carries the one surface lying on its plane.
func (b *gridBuilder) buildCell(i int) int {
	m := b.m
	size := b.opts.CellSize
	x0, x1 := float32(i)*size, float32(i+1)*size
	leaf := i + 1
	solid := LeafChild(0)

	contents := ContentsEmpty
	if i == b.opts.SkyCell {
		contents = ContentsSky
	}
	m.Leafs[leaf] = Leaf{
		Contents: contents,
		Mins:     mgl32.Vec3{x0, 0, 0},
		Maxs:     mgl32.Vec3{x1, size, size},
	}

	wall := b.texWall[i%len(b.texWall)]
	ceilNode := b.addNode(gridPlaneCeiling)
	ceilTex, ceilFlags := wall, 0
	if i == b.opts.SkyCell {
		ceilTex, ceilFlags = b.texSky, SurfDrawSky|SurfDrawTiled
	}
	b.addQuad([4]mgl32.Vec3{
		{x0, 0, size}, {x0, size, size}, {x1, size, size}, {x1, 0, size},
	}, &m.Planes[gridPlaneCeiling], true, ceilTex, ceilFlags)

	floorNode := b.addNode(gridPlaneFloor)
	floorTex, floorFlags := wall, 0
	if i == b.opts.WaterCell {
		floorTex, floorFlags = b.texWtr, SurfDrawTurb|SurfDrawTiled|SurfDrawWater
	}
	b.addQuad([4]mgl32.Vec3{
		{x0, 0, 0}, {x1, 0, 0}, {x1, size, 0}, {x0, size, 0},
	}, &m.Planes[gridPlaneFloor], false, floorTex, floorFlags)

	nearNode := b.addNode(gridPlaneWallNear)
	b.addQuad([4]mgl32.Vec3{
		{x0, 0, 0}, {x0, 0, size}, {x1, 0, size}, {x1, 0, 0},
	}, &m.Planes[gridPlaneWallNear], false, wall, 0)

	farNode := b.addNode(gridPlaneWallFar)
	b.addQuad([4]mgl32.Vec3{
		{x0, size, 0}, {x1, size, 0}, {x1, size, size}, {x0, size, size},
	}, &m.Planes[gridPlaneWallFar], true, wall, 0)

	m.Nodes[ceilNode].Children = [2]int{solid, floorNode}
	m.Nodes[floorNode].Children = [2]int{nearNode, solid}
	m.Nodes[nearNode].Children = [2]int{farNode, solid}
	m.Nodes[farNode].Children = [2]int{solid, LeafChild(leaf)}
	return ceilNode
}

func (b *gridBuilder) addNode(plane int) int {
	m := b.m
	m.Nodes = append(m.Nodes, Node{Plane: &m.Planes[plane], FirstSurface: len(m.Surfaces), NumSurfaces: 1})
	return len(m.Nodes) - 1
}

// addQuad appends a surface with its own texinfo and four brush vertices.
func (b *gridBuilder) addQuad(corners [4]mgl32.Vec3, plane *math.Plane, back bool, tex, flags int) int {
	m := b.m
	ti := TexInfo{Texture: tex}
	switch {
	case plane.Normal[2] != 0:
		ti.Vecs = [2][4]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	case plane.Normal[1] != 0:
		ti.Vecs = [2][4]float32{{1, 0, 0, 0}, {0, 0, -1, 0}}
	default:
		ti.Vecs = [2][4]float32{{0, 1, 0, 0}, {0, 0, -1, 0}}
	}
	m.TexInfos = append(m.TexInfos, ti)

	if back {
		flags |= SurfPlaneBack
	}
	s := Surface{
		Plane:     plane,
		Flags:     flags,
		FirstVert: len(m.Vertices),
		NumVerts:  len(corners),
		Lightmap:  -1,
		Styles:    [MaxLightmaps]uint8{0, StyleNone, StyleNone, StyleNone},
	}

	var mins, maxs [2]float32
	mins = [2]float32{stdmath.MaxFloat32, stdmath.MaxFloat32}
	maxs = [2]float32{-stdmath.MaxFloat32, -stdmath.MaxFloat32}
	for _, c := range corners {
		for axis := 0; axis < 2; axis++ {
			v := ti.TexCoord(c, axis)
			mins[axis] = min(mins[axis], v)
			maxs[axis] = max(maxs[axis], v)
		}
	}
	for axis := 0; axis < 2; axis++ {
		bmin := int(stdmath.Floor(float64(mins[axis]) / 16))
		bmax := int(stdmath.Ceil(float64(maxs[axis]) / 16))
		s.TextureMins[axis] = bmin * 16
		s.Extents[axis] = (bmax - bmin) * 16
	}

	texture := m.Textures[tex]
	for _, c := range corners {
		var st [2]float32
		if flags&SurfDrawTurb != 0 {
			st = [2]float32{ti.TexCoord(c, 0) - ti.Vecs[0][3], ti.TexCoord(c, 1) - ti.Vecs[1][3]}
			st[0] /= 128
			st[1] /= 128
		} else {
			st = [2]float32{ti.TexCoord(c, 0) / float32(texture.Width), ti.TexCoord(c, 1) / float32(texture.Height)}
		}
		m.Vertices = append(m.Vertices, Vertex{Pos: c, ST: st})
	}

	m.Surfaces = append(m.Surfaces, s)
	return len(m.Surfaces) - 1
}

// buildMarkSurfaces links every cell to its own faces plus the dividers on
// either side, so each divider is referenced by two leaves.
func (b *gridBuilder) buildMarkSurfaces() {
	m := b.m
	perLeaf := make([][]int, len(m.Leafs))
	for ni := range m.Nodes {
		node := &m.Nodes[ni]
		for si := node.FirstSurface; si < node.FirstSurface+node.NumSurfaces; si++ {
			for _, leaf := range b.leavesTouching(node, si) {
				perLeaf[leaf] = append(perLeaf[leaf], si)
			}
		}
	}
	for leaf := 1; leaf < len(m.Leafs); leaf++ {
		start := len(m.MarkSurfaces)
		m.MarkSurfaces = append(m.MarkSurfaces, perLeaf[leaf]...)
		m.Leafs[leaf].MarkSurfaces = m.MarkSurfaces[start:len(m.MarkSurfaces):len(m.MarkSurfaces)]
	}
}

func (b *gridBuilder) leavesTouching(node *Node, si int) []int {
	size := b.opts.CellSize
	first := b.m.Vertices[b.m.Surfaces[si].FirstVert].Pos
	if node.Plane.Type == math.PlaneX {
		k := int(node.Plane.Dist/size + 0.5)
		return []int{k, k + 1} // cells k-1 and k
	}
	cell := int(first[0] / size)
	return []int{cell + 1}
}

// buildDoorSurfaces emits a box of six outward-facing quads per door and
// returns the (first, count) surface range of each.
func (b *gridBuilder) buildDoorSurfaces() [][2]int {
	m := b.m
	var ranges [][2]int
	for d := 0; d < b.opts.Doors; d++ {
		lo, hi := b.doorBounds(d)
		first := len(m.Surfaces)
		base := gridPlaneDividers + (b.opts.Cells - 1) + 6*d
		tex, flags := b.texWall[d%len(b.texWall)], 0
		if b.isTeleport(d) {
			tex, flags = b.texTele, SurfDrawTurb|SurfDrawTiled|SurfDrawTele
		}
		for axis := 0; axis < 3; axis++ {
			u, v := (axis+1)%3, (axis+2)%3
			for side := 0; side < 2; side++ {
				c := hi[axis]
				if side == 1 {
					c = lo[axis]
				}
				var q [4]mgl32.Vec3
				for k, uv := range [4][2]float32{{lo[u], lo[v]}, {hi[u], lo[v]}, {hi[u], hi[v]}, {lo[u], hi[v]}} {
					q[k][axis] = c
					q[k][u] = uv[0]
					q[k][v] = uv[1]
				}
				if side == 1 {
					q[1], q[3] = q[3], q[1]
				}
				b.addQuad(q, &m.Planes[base+axis*2+side], side == 1, tex, flags)
			}
		}
		ranges = append(ranges, [2]int{first, len(m.Surfaces) - first})
	}
	return ranges
}

// buildLightData allocates light samples for every lit surface and points
// each surface at its block. Samples form a gradient so styles are visible.
func (b *gridBuilder) buildLightData() {
	m := b.m
	if b.opts.NoLightData {
		return
	}
	total := 0
	for i := range m.Surfaces {
		s := &m.Surfaces[i]
		if s.Flags&SurfDrawTiled != 0 {
			continue
		}
		smax, tmax := s.LightmapSize()
		total += smax * tmax * 3 * MaxLightmaps
	}
	m.LightData = make([]byte, total)
	off := 0
	for i := range m.Surfaces {
		s := &m.Surfaces[i]
		if s.Flags&SurfDrawTiled != 0 {
			continue
		}
		smax, tmax := s.LightmapSize()
		n := smax * tmax * 3 * MaxLightmaps
		s.Samples = m.LightData[off : off+n : off+n]
		for k := range s.Samples {
			s.Samples[k] = byte(64 + (k*7+i*13)%128)
		}
		off += n
	}

	// surfaces of every fourth cell also follow the flickering style 3
	for cell := 2; cell < b.opts.Cells; cell += 4 {
		for _, si := range m.Leafs[cell+1].MarkSurfaces {
			if m.Surfaces[si].Flags&SurfDrawTiled == 0 {
				m.Surfaces[si].Styles[1] = gridFlickerStyle
			}
		}
	}
}

func (b *gridBuilder) buildVis() {
	m := b.m
	vis := m.NewVisBits()
	for leaf := 1; leaf <= m.NumLeafs; leaf++ {
		vis.Reset()
		for other := 1; other <= m.NumLeafs; other++ {
			d := other - leaf
			if d < 0 {
				d = -d
			}
			if b.opts.VisRadius < 0 || d <= b.opts.VisRadius {
				vis.Set(other - 1)
			}
		}
		row := CompressVis(vis, m.NumLeafs)
		start := len(m.VisData)
		m.VisData = append(m.VisData, row...)
		m.Leafs[leaf].CompressedVis = m.VisData[start:len(m.VisData):len(m.VisData)]
	}
	// rows were sliced while VisData grew; rebind them to the final array
	off := 0
	for leaf := 1; leaf <= m.NumLeafs; leaf++ {
		n := len(m.Leafs[leaf].CompressedVis)
		m.Leafs[leaf].CompressedVis = m.VisData[off : off+n : off+n]
		off += n
	}
}

func (b *gridBuilder) buildEntities() {
	var sb strings.Builder
	size := b.opts.CellSize
	sb.WriteString("{\n\"classname\" \"worldspawn\"\n\"message\" \"grid\"\n}\n")
	fmt.Fprintf(&sb, "{\n\"classname\" \"info_player_start\"\n\"origin\" \"%g %g %g\"\n}\n", size/2, size/2, size/2)
	for i := 0; i < b.opts.Cells; i += 2 {
		cx := (float32(i) + 0.5) * size
		fmt.Fprintf(&sb, "{\n\"classname\" \"light\"\n\"origin\" \"%g %g %g\"\n\"light\" \"200\"\n", cx, size/2, size-16)
		if i%4 == 2 {
			fmt.Fprintf(&sb, "\"style\" \"%d\"\n", gridFlickerStyle)
		}
		sb.WriteString("}\n")
	}
	for d := 0; d < b.opts.Doors; d++ {
		if b.isTeleport(d) {
			fmt.Fprintf(&sb, "{\n\"classname\" \"trigger_teleport\"\n\"target\" \"t1\"\n\"model\" \"*%d\"\n}\n", d+1)
			cx := (float32(b.opts.Cells) - 0.5) * size
			fmt.Fprintf(&sb, "{\n\"classname\" \"info_teleport_destination\"\n\"targetname\" \"t1\"\n\"origin\" \"%g %g %g\"\n\"angle\" \"90\"\n}\n", cx, size/2, size/2)
			continue
		}
		fmt.Fprintf(&sb, "{\n\"classname\" \"func_door\"\n\"model\" \"*%d\"\n}\n", d+1)
	}
	b.m.Entities = sb.String()
}
