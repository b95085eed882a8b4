// Package vis decides which world surfaces are drawn each frame. The Oracle
// selects the leaf visibility source for the viewer; a Marker then walks the
// visible leaves, culls their surfaces and links the survivors into the
// world texture chains.
package vis

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
	"github.com/Faultbox/rtquake/pkg/math"
)

// Options are the per-frame culling toggles.
type Options struct {
	PVS          bool // PVS, frustum and backface culling
	OldSkyLeaf   bool // mark the surfaces of sky leaves too
	GPULightmaps bool // only flag pages during marking, rebuild in UpdateLightmaps
	Parallel     bool // marking runs as split tasks, lightmaps rebuild in UpdateLightmaps
}

// Source is where the leaf visibility of a frame came from.
type Source int

const (
	SourceNoVis Source = iota
	SourceFatPVS
	SourceLeafPVS
)

func (s Source) String() string {
	switch s {
	case SourceFatPVS:
		return "fat"
	case SourceLeafPVS:
		return "leaf"
	default:
		return "novis"
	}
}

// View is the viewer position and frustum of a frame.
type View struct {
	Origin  mgl32.Vec3
	Frustum math.Frustum
}

// EfragSink receives the transient entities linked into visible leaves.
// Calls come from a single task per frame.
type EfragSink interface {
	StoreEfrags(leaf int, efrags []int)
}

// Hooks are the collaborators the marking side effects report to. Any of
// them may be nil.
type Hooks struct {
	Lightmaps *lightmap.Manager
	Light     *lightmap.Frame
	Stats     *renderer.Stats
	Efrags    EfragSink
}

// Oracle holds the visibility state of the world for the current frame.
type Oracle struct {
	world *bsp.Model
	hooks Hooks

	// LeafVis has bit i set when Leafs[i+1] may be visible.
	LeafVis bsp.Bits
	// SurfVis has bit i set when Surfaces[i] is drawn this frame.
	SurfVis bsp.Bits

	scratch bsp.Bits
	planes  []lanePlane

	opts     Options
	view     View
	viewLeaf int
	source   Source
	visFrame int
	deferred bool

	log *zap.Logger
}

// lanePlane is a surface plane flipped to face the surface's front side.
type lanePlane struct {
	normal mgl32.Vec3
	dist   float32
}

// NewOracle prepares visibility state for world.
func NewOracle(world *bsp.Model, hooks Hooks) *Oracle {
	o := &Oracle{
		world:   world,
		hooks:   hooks,
		LeafVis: world.NewVisBits(),
		SurfVis: bsp.NewBits(len(world.Surfaces)),
		scratch: world.NewVisBits(),
		planes:  make([]lanePlane, len(world.Surfaces)),
		log:     logger.Named("vis"),
	}
	for i := range world.Surfaces {
		s := &world.Surfaces[i]
		p := lanePlane{normal: s.Plane.Normal, dist: s.Plane.Dist}
		if s.Flags&bsp.SurfPlaneBack != 0 {
			p.normal = p.normal.Mul(-1)
			p.dist = -p.dist
		}
		o.planes[i] = p
	}
	for _, t := range world.Textures {
		if t != nil && len(t.Chains) <= int(bsp.ChainWorld) {
			world.AllocChains(bsp.NumChains(1))
			break
		}
	}
	return o
}

// World returns the model the oracle marks.
func (o *Oracle) World() *bsp.Model { return o.world }

// ViewLeaf returns the leaf containing the viewer.
func (o *Oracle) ViewLeaf() int { return o.viewLeaf }

// Source returns the visibility source picked by the last Prepare.
func (o *Oracle) Source() Source { return o.source }

// VisFrame returns the marking pass counter.
func (o *Oracle) VisFrame() int { return o.visFrame }

// Options returns the toggles of the current frame.
func (o *Oracle) Options() Options { return o.opts }

// Prepare starts a frame: it picks the leaf visibility source for the
// viewer, clears the bits past the last leaf, advances the marking pass
// and empties the world chains and the surface mask.
func (o *Oracle) Prepare(view View, opts Options) {
	w := o.world
	o.view = view
	o.opts = opts
	o.viewLeaf = w.PointInLeaf(view.Origin)
	leaf := &w.Leafs[o.viewLeaf]

	nearWaterPortal := false
	for _, si := range leaf.MarkSurfaces {
		if w.Surfaces[si].Flags&bsp.SurfDrawTurb != 0 {
			nearWaterPortal = true
		}
	}

	switch {
	case !opts.PVS || leaf.Contents == bsp.ContentsSolid || leaf.Contents == bsp.ContentsSky:
		o.source = SourceNoVis
		w.NoVisPVS(o.LeafVis)
	case nearWaterPortal:
		o.source = SourceFatPVS
		w.FatPVS(view.Origin, o.LeafVis, o.scratch)
	default:
		o.source = SourceLeafPVS
		w.LeafPVS(o.viewLeaf, o.LeafVis)
	}
	o.LeafVis.MaskTail(w.NumLeafs)

	o.visFrame++
	o.deferred = opts.GPULightmaps || opts.Parallel
	w.ClearChains(bsp.ChainWorld)
	o.SurfVis.Reset()
}

// cullLeaf reports whether leaf i+1 is outside the frustum.
func (o *Oracle) cullLeaf(i int) bool {
	leaf := &o.world.Leafs[i+1]
	return o.view.Frustum.CullBox(leaf.Mins, leaf.Maxs)
}

// marksLeafSurfaces reports whether the surfaces of leaf are marked.
func (o *Oracle) marksLeafSurfaces(leaf *bsp.Leaf) bool {
	return o.opts.OldSkyLeaf || leaf.Contents != bsp.ContentsSky
}

// FacesAway reports whether surface i points away from the viewer.
// A viewer exactly on the plane sees the surface.
func (o *Oracle) FacesAway(i int) bool {
	p := &o.planes[i]
	return p.normal.Dot(o.view.Origin)-p.dist < 0
}

// touchSurface runs the per-surface side effects of a visible surface.
// rebuild selects an immediate lightmap rebuild over flagging the page.
func (o *Oracle) touchSurface(i int, rebuild bool) {
	w := o.world
	surf := &w.Surfaces[i]
	if lm := o.hooks.Lightmaps; lm != nil {
		if rebuild && o.hooks.Light != nil {
			lm.RenderDynamicLightmaps(surf, o.hooks.Light)
		} else {
			lm.MarkModified(surf)
		}
	}
	if t := w.SurfaceTexture(i); t.Warp {
		t.UpdateWarp.Store(true)
	}
}

func (o *Oracle) storeEfrags(i int) {
	leaf := &o.world.Leafs[i+1]
	if len(leaf.Efrags) == 0 || o.hooks.Efrags == nil {
		return
	}
	o.hooks.Efrags.StoreEfrags(i+1, leaf.Efrags)
}

func (o *Oracle) addBrushPolys(n int) {
	if o.hooks.Stats != nil {
		o.hooks.Stats.BrushPolys.Add(int64(n))
	}
}

// UpdateLightmaps rebuilds the lightmaps of the visible surfaces when the
// marking pass only flagged their pages. It runs after surface culling.
func (o *Oracle) UpdateLightmaps() int {
	if !o.deferred || o.hooks.Lightmaps == nil || o.hooks.Light == nil {
		return 0
	}
	n := 0
	o.SurfVis.ForEach(func(i int) {
		if o.hooks.Lightmaps.RenderDynamicLightmaps(&o.world.Surfaces[i], o.hooks.Light) {
			n++
		}
	})
	if n > 0 {
		o.log.Debug("deferred lightmap rebuild", zap.Int("surfaces", n))
	}
	return n
}

// Marker marks the visible surfaces of a prepared frame and builds the
// world chains in one synchronous pass.
type Marker interface {
	Mark()
}
