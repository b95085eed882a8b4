package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/batch"
	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/model"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
	"github.com/Faultbox/rtquake/pkg/math"
)

// backfaceEpsilon keeps surfaces nearly edge-on to the viewer.
const backfaceEpsilon = 0.01

func (s *Scene) drawWorld(i int) error {
	if !s.cfg.DrawWorld || i >= len(s.ranges) {
		return nil
	}
	l := s.level
	r := s.ranges[i]
	return l.world[i].DrawTextureChains(l.World, nil, bsp.ChainWorld, r[0], r[1], s.frame.Time)
}

// drawSkyAndWater draws the world's liquids. Sky surfaces are left to the
// backend.
func (s *Scene) drawSkyAndWater() error {
	if !s.cfg.DrawWorld {
		return nil
	}
	l := s.level
	return l.water.DrawTextureChainsWater(l.World, nil, bsp.ChainWorld)
}

// drawEntities draws the opaque entities of slice i of the visible list.
func (s *Scene) drawEntities(i int) error {
	if !s.cfg.DrawEntities {
		return nil
	}
	n := len(s.visEdicts)
	contexts := max(s.cfg.EntityContexts, 1)
	per := (n + contexts - 1) / contexts
	start, end := min(i*per, n), min((i+1)*per, n)

	d := entityDrawer{s: s, chain: bsp.ChainModel(i), batcher: s.level.entities[i]}
	for _, e := range s.visEdicts[start:end] {
		if e.ent.translucent() {
			continue
		}
		if err := d.draw(e.ent, e.id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scene) drawAlphaEntities() error {
	if !s.cfg.DrawEntities {
		return nil
	}
	d := entityDrawer{s: s, chain: bsp.ChainAlphaModel, batcher: s.level.alpha}
	for _, e := range s.visEdicts {
		if !e.ent.translucent() {
			continue
		}
		if err := d.draw(e.ent, e.id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scene) drawViewModel() error {
	e := s.frame.ViewModel
	if e == nil || e.Model == nil || !s.cfg.DrawEntities {
		return nil
	}
	if e.Model.Kind() == model.KindBrush {
		logger.WarnOnce("scene.viewmodel.brush", "brush view models are not drawn",
			zap.String("model", e.Model.Name()))
		return nil
	}
	d := entityDrawer{s: s, batcher: s.level.view, noCull: true}
	return d.draw(e, renderer.EntityViewModel)
}

// particleScale grows particles with distance so they stay visible.
func particleScale(depth float32) float32 {
	if depth < 20 {
		return 1
	}
	return 1 + depth*0.004
}

// drawParticles uploads every particle as one blended triangle.
func (s *Scene) drawParticles() error {
	ps := s.frame.Particles
	if len(ps) == 0 {
		return nil
	}
	verts := s.scratch.Vertices(3 * len(ps))
	indices := s.scratch.Indices(3 * len(ps))
	up := s.up.Mul(1.5)
	right := s.right.Mul(1.5)

	for i := range ps {
		p := &ps[i]
		scale := particleScale(p.Origin.Sub(s.frame.Origin).Dot(s.forward))
		base := 3 * i
		verts[base] = renderer.Vertex{Position: p.Origin, Color: p.Color}
		verts[base+1] = renderer.Vertex{Position: p.Origin.Add(up.Mul(scale)), TexCoord: [2]float32{1, 0}, Color: p.Color}
		verts[base+2] = renderer.Vertex{Position: p.Origin.Add(right.Mul(scale)), TexCoord: [2]float32{0, 1}, Color: p.Color}
		indices[base] = uint32(base)
		indices[base+1] = uint32(base + 1)
		indices[base+2] = uint32(base + 2)
	}

	err := s.backend.UploadRasterizedGeometry(&renderer.RasterizedInfo{
		Vertices:  verts,
		Indices:   indices,
		Transform: renderer.IdentityTransform,
		Color:     [4]float32{1, 1, 1, 1},
		Diffuse:   s.particle,
		State:     renderer.StateDepthTest | renderer.StateBlend,
		BlendSrc:  renderer.BlendSrcAlpha,
		BlendDst:  renderer.BlendOneMinusSrcAlpha,
	})
	if err != nil {
		return fmt.Errorf("particles: %w", err)
	}
	s.stats.Particles.Add(int64(len(ps)))
	s.stats.RasterUploads.Add(1)
	return nil
}

// entityDrawer draws entities of one draw task. Brush models chain their
// surfaces into the task's own chain.
type entityDrawer struct {
	s       *Scene
	chain   bsp.Chain
	batcher *batch.Batcher
	noCull  bool

	ent *Entity
	id  uint32
}

func (d *entityDrawer) draw(e *Entity, id uint32) error {
	if e.Model == nil {
		return nil
	}
	d.ent, d.id = e, id
	return model.Dispatch(e.Model, d)
}

// culled reports whether the entity's bounds lie outside the frustum.
// Rotated entities are tested with a box around their bounding sphere.
func (d *entityDrawer) culled(b model.Bounds) bool {
	if d.noCull || !d.s.cfg.PVS {
		return false
	}
	e := d.ent
	var mins, maxs mgl32.Vec3
	if e.Angles != (mgl32.Vec3{}) {
		r := max(b.Min.Len(), b.Max.Len())
		ext := mgl32.Vec3{r, r, r}
		mins, maxs = e.Origin.Sub(ext), e.Origin.Add(ext)
	} else {
		mins, maxs = e.Origin.Add(b.Min), e.Origin.Add(b.Max)
	}
	return d.s.view.Frustum.CullBox(mins, maxs)
}

func (d *entityDrawer) transform() renderer.Transform {
	return renderer.TransformFromMat4(math.RotateForEntity(d.ent.Origin, d.ent.Angles))
}

func (d *entityDrawer) instance() *model.Instance {
	return &model.Instance{
		ID:        d.id,
		Frame:     d.ent.Frame,
		Transform: d.transform(),
		Alpha:     d.ent.Alpha,
	}
}

func (d *entityDrawer) VisitAlias(m *model.Alias) error {
	if d.culled(m.Bounds()) {
		return nil
	}
	return m.Upload(d.s.backend, d.instance(), d.s.scratch, &d.s.stats)
}

func (d *entityDrawer) VisitSprite(m *model.Sprite) error {
	s := d.s
	return m.Upload(s.backend, d.instance(), d.ent.Origin, s.right, s.up, s.scratch, &s.stats)
}

// facesViewer reports whether a surface faces org, keeping surfaces within
// backfaceEpsilon of edge-on.
func facesViewer(surf *bsp.Surface, org mgl32.Vec3) bool {
	dot := surf.Plane.Distance(org)
	back := surf.Flags&bsp.SurfPlaneBack != 0
	return (back && dot < -backfaceEpsilon) || (!back && dot > backfaceEpsilon)
}

// VisitBrush chains the surfaces of a brush entity that face the viewer,
// updates their lightmaps and batches them.
func (d *entityDrawer) VisitBrush(m *model.Brush) error {
	s := d.s
	e := d.ent
	bm := m.BSP
	if d.culled(m.Bounds()) {
		return nil
	}

	mu := s.level.brushLock(bm)
	mu.Lock()
	defer mu.Unlock()

	org := math.ModelSpaceOrigin(s.frame.Origin, e.Origin, e.Angles)
	if bm.FirstModelSurface != 0 {
		lighting.MarkModelLights(bm, s.light.DLights, s.frame.Time, s.frameCount)
	}

	bm.ClearChains(d.chain)
	n := 0
	for i := bm.FirstModelSurface; i < bm.FirstModelSurface+bm.NumModelSurfaces; i++ {
		surf := &bm.Surfaces[i]
		if s.cfg.PVS && !facesViewer(surf, org) {
			continue
		}
		bm.ChainSurface(i, d.chain)
		s.lightmaps.RenderDynamicLightmaps(surf, &s.light)
		n++
	}
	s.stats.BrushPolys.Add(int64(n))

	ent := batch.Entity{ID: d.id, Transform: d.transform(), Alpha: e.Alpha, Frame: e.Frame}
	if err := d.batcher.DrawTextureChains(bm, &ent, d.chain, 0, len(bm.Textures), s.frame.Time); err != nil {
		return err
	}
	return d.batcher.DrawTextureChainsWater(bm, &ent, d.chain)
}
