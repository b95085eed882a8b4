package batch

import (
	"fmt"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
)

// Batch buffer capacities.
const (
	MaxBatchVertices = 4096
	MaxBatchIndices  = 3 * MaxBatchVertices
)

// Options are the draw toggles shared by every batcher of a frame.
type Options struct {
	Fullbright   bool // drop lightmaps
	LightmapOnly bool // drop diffuse textures
	Roughness    float32
	Metallicity  float32
	Grey         renderer.MaterialID // stands in for missing textures

	// StaticSubmitted drops static world batches; the backend already
	// holds them for the current scene.
	StaticSubmitted bool

	Alpha AlphaOptions
}

// SurfState is the draw state a surface is batched with.
type SurfState struct {
	Entity    uint32
	Model     *bsp.Model
	Surf      int
	Transform renderer.Transform
	Diffuse   renderer.MaterialID
	Lightmap  renderer.MaterialID
	AlphaTest bool
	Alpha     float32
	Warp      bool
	Water     bool
	Teleport  bool
}

// Target is what a batcher draws into and reads shared level data from.
type Target struct {
	Backend   renderer.Backend
	World     *bsp.Model
	Vertices  []renderer.Vertex // flat brush vertices from BrushVertices
	Lightmaps *lightmap.Manager
	Teleports *Teleports // may be nil
	Stats     *renderer.Stats
}

// Batcher accumulates surfaces into bounded buffers and uploads them.
// A Batcher belongs to one draw task at a time.
type Batcher struct {
	backend   renderer.Backend
	world     *bsp.Model
	brush     []renderer.Vertex
	lightmaps *lightmap.Manager
	teleports *Teleports
	stats     *renderer.Stats
	opts      Options

	verts      []renderer.Vertex
	indices    []uint32
	maxVerts   int
	maxIndices int

	last   SurfState // state of the most recently batched surface
	passes int
}

// NewBatcher creates a batcher with the default capacities.
func NewBatcher(t Target, opts Options) *Batcher {
	return &Batcher{
		backend:    t.Backend,
		world:      t.World,
		brush:      t.Vertices,
		lightmaps:  t.Lightmaps,
		teleports:  t.Teleports,
		stats:      t.Stats,
		opts:       opts,
		verts:      make([]renderer.Vertex, 0, MaxBatchVertices),
		indices:    make([]uint32, 0, MaxBatchIndices),
		maxVerts:   MaxBatchVertices,
		maxIndices: MaxBatchIndices,
	}
}

// SetCapacity changes the batch limits and drops the current batch.
func (b *Batcher) SetCapacity(verts, indices int) {
	b.maxVerts = verts
	b.maxIndices = indices
	b.verts = make([]renderer.Vertex, 0, verts)
	b.indices = make([]uint32, 0, indices)
}

// SetOptions replaces the draw toggles.
func (b *Batcher) SetOptions(opts Options) { b.opts = opts }

// Options returns the draw toggles.
func (b *Batcher) Options() Options { return b.opts }

// Clear drops the pending batch.
func (b *Batcher) Clear() {
	b.verts = b.verts[:0]
	b.indices = b.indices[:0]
}

// BatchSurface appends a surface to the pending batch. When the surface
// does not fit, the pending batch is flushed first with the state of its
// own surfaces.
func (b *Batcher) BatchSurface(s *SurfState) error {
	surf := &s.Model.Surfaces[s.Surf]
	nv := surf.NumVerts
	ni := NumFanIndices(nv)

	if len(b.indices)+ni > b.maxIndices || len(b.verts)+nv > b.maxVerts {
		if err := b.Flush(); err != nil {
			return err
		}
	}

	b.indices = FanIndices(b.indices, uint32(len(b.verts)), nv)
	b.verts = append(b.verts, b.brush[surf.FirstVert:surf.FirstVert+nv]...)
	b.last = *s
	return nil
}

// Flush uploads the pending batch. It is a no-op when the batch is empty.
// The batch is dropped even when the upload fails.
func (b *Batcher) Flush() error {
	if len(b.verts) == 0 || len(b.indices) == 0 {
		return nil
	}
	defer b.Clear()

	s := &b.last
	diffuse, lightmap := s.Diffuse, s.Lightmap
	if b.opts.LightmapOnly || s.Teleport {
		diffuse = renderer.NoMaterial
	}
	if b.opts.Fullbright {
		lightmap = renderer.NoMaterial
	}
	if diffuse == renderer.NoMaterial {
		diffuse = b.opts.Grey
	}

	alpha := min(max(s.Alpha, 0), 1)
	static := s.Model == b.world && !s.Warp
	rasterize := alpha < 1 && !s.Warp

	var err error
	switch {
	case rasterize:
		info := renderer.RasterizedInfo{
			Vertices:  b.verts,
			Indices:   b.indices,
			Transform: s.Transform,
			Color:     [4]float32{1, 1, 1, alpha},
			Diffuse:   diffuse,
			Lightmap:  lightmap,
			State:     renderer.StateDepthTest | renderer.StateBlend,
			BlendSrc:  renderer.BlendSrcAlpha,
			BlendDst:  renderer.BlendOneMinusSrcAlpha,
		}
		if s.AlphaTest {
			info.State |= renderer.StateAlphaTest
		}
		err = b.backend.UploadRasterizedGeometry(&info)
		b.count(func(st *renderer.Stats) { st.RasterUploads.Add(1) })
	case static && b.opts.StaticSubmitted:
		// kept by the backend since the scene started
	default:
		info := renderer.GeometryInfo{
			UniqueID:    renderer.BrushSurfaceID(s.Surf, s.Entity),
			Type:        renderer.GeometryDynamic,
			PassThrough: renderer.PassOpaque,
			Vertices:    b.verts,
			Indices:     b.indices,
			Transform:   s.Transform,
			Diffuse:     diffuse,
			Lightmap:    lightmap,
			Roughness:   b.opts.Roughness,
			Metallicity: b.opts.Metallicity,
			PortalIndex: renderer.NoPortal,
		}
		if static {
			info.Type = renderer.GeometryStatic
		}
		switch {
		case s.Water:
			info.PassThrough = renderer.PassWater
		case s.Teleport:
			info.PassThrough = renderer.PassPortal
		}
		if s.Teleport && b.teleports != nil {
			if idx, ok := b.teleports.Nearest(b.verts, &s.Transform); ok {
				info.PortalIndex = idx
			}
		}
		err = b.backend.UploadGeometry(&info)
		b.count(func(st *renderer.Stats) {
			if static {
				st.StaticUploads.Add(1)
			} else {
				st.DynamicUploads.Add(1)
			}
		})
	}

	b.passes++
	if err != nil {
		return fmt.Errorf("batch ending at surface %d: %w", s.Surf, err)
	}
	return nil
}

func (b *Batcher) count(fn func(*renderer.Stats)) {
	if b.stats != nil {
		fn(b.stats)
	}
}
