package batch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/engine/texture"
	"github.com/Faultbox/rtquake/pkg/formats"
)

type fixture struct {
	world     *bsp.Model
	rec       *renderer.Recorder
	lightmaps *lightmap.Manager
	stats     *renderer.Stats
	textures  *texture.Manager
	target    Target
}

func newFixture(t *testing.T, opts bsp.GridOptions, cfg lightmap.Config) *fixture {
	t.Helper()
	m := bsp.NewGridLevel(opts)
	m.AllocChains(bsp.NumChains(2))

	lm := lightmap.NewManager(cfg)
	f := &lightmap.Frame{Styles: lighting.NewStyles(), DLights: &lighting.DLights{}, Dynamic: true}
	require.NoError(t, lm.BuildLightmaps([]*bsp.Model{m}, f))

	textures := texture.NewManager()
	textures.RegisterModel(m)

	fx := &fixture{
		world:     m,
		rec:       renderer.NewRecorder(),
		lightmaps: lm,
		stats:     &renderer.Stats{},
		textures:  textures,
	}
	fx.target = Target{
		Backend:   fx.rec,
		World:     m,
		Vertices:  BrushVertices(m),
		Lightmaps: lm,
		Stats:     fx.stats,
	}
	return fx
}

func (fx *fixture) batcher() *Batcher {
	return NewBatcher(fx.target, Options{
		Grey:  fx.textures.Grey().Material,
		Alpha: DefaultAlphaOptions(),
	})
}

// chainTexture links every world surface using texture tex into chain c.
func chainTexture(m *bsp.Model, tex int, c bsp.Chain) []int {
	var out []int
	for i := m.FirstModelSurface; i < m.FirstModelSurface+m.NumModelSurfaces; i++ {
		if m.Surfaces[i].TexInfo.Texture == tex {
			m.ChainSurface(i, c)
			out = append(out, i)
		}
	}
	return out
}

// chainModel links every surface of a brush model into chain c.
func chainModel(m *bsp.Model, c bsp.Chain) {
	for i := m.FirstModelSurface; i < m.FirstModelSurface+m.NumModelSurfaces; i++ {
		m.ChainSurface(i, c)
	}
}

func TestFanIndices(t *testing.T) {
	tests := []struct {
		verts int
		want  []uint32
	}{
		{0, nil},
		{2, nil},
		{3, []uint32{12, 11, 10}},
		{5, []uint32{12, 11, 10, 13, 12, 10, 14, 13, 10}},
	}
	for _, tt := range tests {
		got := FanIndices(nil, 10, tt.verts)
		assert.Equal(t, tt.want, got, "%d vertices", tt.verts)
		assert.Len(t, got, NumFanIndices(tt.verts))
	}
	assert.Equal(t, 0, NumFanIndices(1))
}

func TestBrushVertices(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	verts := fx.target.Vertices
	require.Len(t, verts, len(fx.world.Vertices))
	for i, v := range verts {
		assert.Equal(t, fx.world.Vertices[i].Pos, v.Position)
		assert.Equal(t, fx.world.Vertices[i].LightST, v.LightCoord)
		assert.Equal(t, uint32(0xFFFFFFFF), v.Color)
	}
}

func TestCapacityFlushUsesPreviousState(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	b := fx.batcher()
	b.SetCapacity(8, 100)

	surfs := chainTexture(fx.world, 0, bsp.ChainWorld)
	require.GreaterOrEqual(t, len(surfs), 3)

	for _, si := range surfs[:3] {
		s := SurfState{
			Entity:    renderer.EntityWorld,
			Model:     fx.world,
			Surf:      si,
			Transform: renderer.IdentityTransform,
			Alpha:     1,
		}
		require.NoError(t, b.BatchSurface(&s))
	}

	static := fx.rec.Static()
	require.Len(t, static, 1, "one flush when the third quad overflows")
	g, ok := static[renderer.BrushSurfaceID(surfs[1], renderer.EntityWorld)]
	require.True(t, ok, "flushed with the second surface's state")
	assert.Len(t, g.Vertices, 8)
	assert.Len(t, g.Indices, 12)
	assert.Equal(t, fx.textures.Grey().Material, g.Diffuse, "missing diffuse falls back to grey")

	verts, indices := len(b.verts), len(b.indices)
	assert.Equal(t, 4, verts, "pending batch holds only the new surface")
	assert.Equal(t, 6, indices)
	assert.Equal(t, 1, b.passes)
}

func TestFlushEmptyIsNoop(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	b := fx.batcher()
	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.passes)
	assert.Empty(t, fx.rec.Static())
}

func TestDrawTextureChainsLightmapBreak(t *testing.T) {
	// small pages so one texture's surfaces spread over several
	cfg := lightmap.Config{Width: 32, Height: 32, ShelfHeight: 16, MaxPages: 1000}
	fx := newFixture(t, bsp.DefaultGridOptions(), cfg)
	b := fx.batcher()

	surfs := chainTexture(fx.world, 0, bsp.ChainWorld)
	runs := 0
	for k, si := range surfs {
		if k == 0 || fx.world.Surfaces[si].Lightmap != fx.world.Surfaces[surfs[k-1]].Lightmap {
			runs++
		}
	}
	require.Greater(t, runs, 1)

	require.NoError(t, b.DrawTextureChains(fx.world, nil, bsp.ChainWorld, 0, len(fx.world.Textures), 0))
	static := fx.rec.Static()
	assert.Len(t, static, runs)
	for _, g := range static {
		assert.Equal(t, renderer.GeometryStatic, g.Type)
		assert.Equal(t, fx.world.Textures[0].Material, g.Diffuse)
		assert.NotEqual(t, renderer.NoMaterial, g.Lightmap)
	}
	assert.Equal(t, int64(runs), fx.stats.BrushPasses.Load())
}

func TestDrawTextureChainsOneBatchPerTexture(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	b := fx.batcher()
	for tex := 0; tex < 4; tex++ {
		chainTexture(fx.world, tex, bsp.ChainWorld)
	}
	require.NoError(t, b.DrawTextureChains(fx.world, nil, bsp.ChainWorld, 0, len(fx.world.Textures), 0))
	assert.Len(t, fx.rec.Static(), 4)
	assert.Empty(t, fx.rec.Dynamic())
	assert.Empty(t, fx.rec.Rasterized())
}

func TestDrawTextureChainsSkipsLiquids(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.WaterCell = 2
	fx := newFixture(t, opts, lightmap.DefaultConfig())
	b := fx.batcher()

	water := -1
	for i, tex := range fx.world.Textures {
		if tex.Name == "*water0" {
			water = i
		}
	}
	require.NotEqual(t, -1, water)
	chainTexture(fx.world, water, bsp.ChainWorld)

	require.NoError(t, b.DrawTextureChains(fx.world, nil, bsp.ChainWorld, 0, len(fx.world.Textures), 0))
	assert.Empty(t, fx.rec.Static())

	require.NoError(t, b.DrawTextureChainsWater(fx.world, nil, bsp.ChainWorld))
	dyn := fx.rec.Dynamic()
	require.Len(t, dyn, 1, "warped surfaces are never static")
	assert.Equal(t, renderer.PassWater, dyn[0].PassThrough)
}

func TestDrawTextureChainsStaticSubmitted(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	b := fx.batcher()
	opts := b.Options()
	opts.StaticSubmitted = true
	b.SetOptions(opts)

	chainTexture(fx.world, 0, bsp.ChainWorld)
	require.NoError(t, b.DrawTextureChains(fx.world, nil, bsp.ChainWorld, 0, len(fx.world.Textures), 0))
	assert.Empty(t, fx.rec.Static())
	assert.Equal(t, 1, b.passes)
}

func TestBrushEntityUploads(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.Doors = 1
	fx := newFixture(t, opts, lightmap.DefaultConfig())
	door := fx.world.Submodel(1)
	require.NotNil(t, door)
	chainModel(door, bsp.ChainModel(0))

	b := fx.batcher()
	ent := &Entity{ID: 7, Transform: renderer.IdentityTransform}
	require.NoError(t, b.DrawTextureChains(door, ent, bsp.ChainModel(0), 0, len(door.Textures), 0))

	dyn := fx.rec.Dynamic()
	require.Len(t, dyn, 1)
	assert.Equal(t, renderer.GeometryDynamic, dyn[0].Type)
	assert.Equal(t, renderer.PassOpaque, dyn[0].PassThrough)
	last := door.FirstModelSurface + door.NumModelSurfaces - 1
	assert.Equal(t, renderer.BrushSurfaceID(last, 7), dyn[0].UniqueID)
	assert.Len(t, dyn[0].Vertices, 24)

	ent.Alpha = 0.5
	require.NoError(t, b.DrawTextureChains(door, ent, bsp.ChainModel(0), 0, len(door.Textures), 0))
	raster := fx.rec.Rasterized()
	require.Len(t, raster, 1)
	assert.Equal(t, float32(0.5), raster[0].Color[3])
	assert.NotZero(t, raster[0].State&renderer.StateBlend)
	assert.NotZero(t, raster[0].State&renderer.StateDepthTest)
	assert.Equal(t, renderer.BlendSrcAlpha, raster[0].BlendSrc)
	assert.Equal(t, renderer.BlendOneMinusSrcAlpha, raster[0].BlendDst)
	assert.Equal(t, int64(2), fx.stats.BrushPasses.Load())
}

func TestFullbrightAndLightmapOnly(t *testing.T) {
	fx := newFixture(t, bsp.DefaultGridOptions(), lightmap.DefaultConfig())
	chainTexture(fx.world, 0, bsp.ChainWorld)

	b := fx.batcher()
	opts := b.Options()
	opts.Fullbright = true
	opts.LightmapOnly = true
	b.SetOptions(opts)
	require.NoError(t, b.DrawTextureChains(fx.world, nil, bsp.ChainWorld, 0, 1, 0))

	for _, g := range fx.rec.Static() {
		assert.Equal(t, renderer.NoMaterial, g.Lightmap)
		assert.Equal(t, fx.textures.Grey().Material, g.Diffuse)
	}
}

func teleportLevel(t *testing.T) *fixture {
	t.Helper()
	opts := bsp.DefaultGridOptions()
	opts.Doors = 2
	opts.Teleport = true
	fx := newFixture(t, opts, lightmap.DefaultConfig())
	ents, err := formats.ParseEntities(fx.world.Entities)
	require.NoError(t, err)
	fx.target.Teleports = ParseTeleports(ents, fx.world)
	return fx
}

func TestParseTeleportsFromLevel(t *testing.T) {
	fx := teleportLevel(t)
	tp := fx.target.Teleports
	require.Equal(t, 1, tp.Len())
	assert.Equal(t, mgl32.Vec3{192, 64, 16}, tp.List[0].In)
	assert.Equal(t, mgl32.Vec3{5056, 64, 64}, tp.List[0].Out)
	assert.Equal(t, float32(90), tp.List[0].OutYaw)

	require.NoError(t, tp.Upload(fx.rec))
	portals := fx.rec.Portals()
	require.Len(t, portals, 1)
	assert.Equal(t, mgl32.Vec3{5056, 64, 128}, portals[0].Out)
	assert.InDelta(t, 0, portals[0].OutDirection[0], 1e-5)
	assert.InDelta(t, 1, portals[0].OutDirection[1], 1e-5)
	assert.InDelta(t, 1, portals[0].OutUp[2], 1e-5)
}

func TestParseTeleportsCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < MaxPortals+8; i++ {
		fmt.Fprintf(&sb, "{\n\"classname\" \"trigger_teleport\"\n\"target\" \"t%d\"\n}\n", i)
		fmt.Fprintf(&sb, "{\n\"classname\" \"info_teleport_destination\"\n\"targetname\" \"t%d\"\n\"origin\" \"%d 0 0\"\n}\n", i, i)
	}
	// a trigger without destination is dropped
	sb.WriteString("{\n\"classname\" \"trigger_teleport\"\n\"target\" \"nowhere\"\n}\n")

	ents, err := formats.ParseEntities(sb.String())
	require.NoError(t, err)
	tp := ParseTeleports(ents, nil)
	assert.Equal(t, MaxPortals, tp.Len())
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, tp.List[3].Out)
}

func TestTeleportNearest(t *testing.T) {
	tp := &Teleports{List: []Teleport{
		{In: mgl32.Vec3{0, 0, 0}},
		{In: mgl32.Vec3{100, 0, 0}},
	}}
	verts := []renderer.Vertex{
		{Position: mgl32.Vec3{90, -5, 0}},
		{Position: mgl32.Vec3{110, 5, 0}},
	}
	idx, ok := tp.Nearest(verts, &renderer.IdentityTransform)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	shift := renderer.IdentityTransform
	shift[0][3] = -95
	idx, _ = tp.Nearest(verts, &shift)
	assert.Equal(t, 0, idx)

	_, ok = (&Teleports{}).Nearest(verts, &renderer.IdentityTransform)
	assert.False(t, ok)
}

func TestWaterAlpha(t *testing.T) {
	o := Options{Alpha: AlphaOptions{Water: 0.6, Lava: 1, Slime: 0}}
	tests := []struct {
		name         string
		flags        int
		entAlpha     float32
		lightmapOnly bool
		want         float32
	}{
		{"water", bsp.SurfDrawTurb | bsp.SurfDrawWater, 0, false, 0.6},
		{"lava", bsp.SurfDrawTurb | bsp.SurfDrawLava, 0, false, 1},
		{"slime falls back", bsp.SurfDrawTurb | bsp.SurfDrawSlime, 0, false, 0.6},
		{"tele falls back", bsp.SurfDrawTurb | bsp.SurfDrawTele, 0, false, 0.6},
		{"entity alpha wins", bsp.SurfDrawTurb | bsp.SurfDrawLava, 0.25, false, 0.25},
		{"lightmap only is opaque", bsp.SurfDrawTurb | bsp.SurfDrawWater, 0, true, 1},
		{"lightmap only ignores entity alpha", bsp.SurfDrawTurb | bsp.SurfDrawWater, 0.25, true, 1},
	}
	for _, tt := range tests {
		opts := o
		opts.LightmapOnly = tt.lightmapOnly
		assert.Equal(t, tt.want, WaterAlpha(tt.flags, tt.entAlpha, &opts), tt.name)
	}
}

func TestWaterBatchBreaksOnAlpha(t *testing.T) {
	fx := teleportLevel(t)
	tele := fx.world.Submodel(2)
	require.NotNil(t, tele)
	chainModel(tele, bsp.ChainModel(0))

	// one face of the teleport box turns into lava
	lava := tele.FirstModelSurface + 2
	tele.Surfaces[lava].Flags |= bsp.SurfDrawLava

	b := fx.batcher()
	opts := b.Options()
	opts.Alpha = AlphaOptions{Water: 1, Lava: 0.5}
	b.SetOptions(opts)

	ent := &Entity{ID: 3, Transform: renderer.IdentityTransform}
	require.NoError(t, b.DrawTextureChainsWater(tele, ent, bsp.ChainModel(0)))

	dyn := fx.rec.Dynamic()
	require.Len(t, dyn, 3, "batches before, at and after the lava face")
	assert.Len(t, dyn[0].Vertices, 8)
	assert.Len(t, dyn[1].Vertices, 4)
	assert.Len(t, dyn[2].Vertices, 12)
	for _, g := range dyn {
		assert.Equal(t, renderer.PassPortal, g.PassThrough)
		assert.Equal(t, 0, g.PortalIndex)
		assert.Equal(t, fx.textures.Grey().Material, g.Diffuse, "teleports carry no diffuse")
	}
	assert.Empty(t, fx.rec.Rasterized(), "warped surfaces are never rasterized")

	texIdx := tele.Surfaces[tele.FirstModelSurface].TexInfo.Texture
	assert.True(t, tele.Textures[texIdx].UpdateWarp.Load())

	fx.rec.BeginFrame()
	opts.Alpha.Lava = 1
	b.SetOptions(opts)
	require.NoError(t, b.DrawTextureChainsWater(tele, ent, bsp.ChainModel(0)))
	assert.Len(t, fx.rec.Dynamic(), 1)
}

func TestWorldRanges(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.WaterCell = 1
	fx := newFixture(t, opts, lightmap.DefaultConfig())
	m := fx.world

	counts := make([]int, len(m.Textures))
	for tex := range m.Textures {
		counts[tex] = len(chainTexture(m, tex, bsp.ChainWorld))
	}

	single := WorldRanges(m, 1)
	assert.Equal(t, [][2]int{{0, len(m.Textures)}}, single)

	ranges := WorldRanges(m, 2)
	require.Len(t, ranges, 2)
	assert.Equal(t, 0, ranges[0][0])
	assert.Equal(t, ranges[0][1], ranges[1][0], "ranges are contiguous")

	total := 0
	for tex := 0; tex < 4; tex++ {
		total += counts[tex]
	}
	sums := make([]int, len(ranges))
	for k, r := range ranges {
		for tex := r[0]; tex < r[1]; tex++ {
			if tex < 4 {
				sums[k] += counts[tex]
			}
		}
	}
	assert.GreaterOrEqual(t, sums[0], (total+1)/2, "first range closes once it reaches its share")
	assert.Equal(t, total, sums[0]+sums[1], "every wall surface lands in one range")

	// more ranges than textures leaves the tail empty
	many := WorldRanges(m, 16)
	for _, r := range many[4:] {
		assert.Equal(t, r[0], r[1])
	}
}
