package vis

import (
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/pkg/math"
)

type efragRecorder struct {
	leaves []int
}

func (r *efragRecorder) StoreEfrags(leaf int, efrags []int) {
	r.leaves = append(r.leaves, leaf)
}

func viewAt(origin mgl32.Vec3, pitch, yaw float32) View {
	f, r, u := math.AngleVectors(mgl32.Vec3{pitch, yaw, 0})
	return View{Origin: origin, Frustum: math.NewFrustum(origin, f, r, u, 90, 73.74)}
}

func cellCenter(opts bsp.GridOptions, cell int) mgl32.Vec3 {
	s := opts.CellSize
	return mgl32.Vec3{(float32(cell) + 0.5) * s, s / 2, s / 2}
}

// chainSets returns the sorted world chain of every texture.
func chainSets(m *bsp.Model) [][]int {
	out := make([][]int, len(m.Textures))
	for i, t := range m.Textures {
		if t.ChainLen(bsp.ChainWorld) == 0 {
			continue
		}
		c := slices.Clone(t.Chains[bsp.ChainWorld])
		slices.Sort(c)
		out[i] = c
	}
	return out
}

func runStaged(m *BatchMarker) {
	var wg sync.WaitGroup
	for i := 0; i < m.LeafBatches(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.MarkLeafs(i)
		}(i)
	}
	wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.StoreEfrags()
	}()
	for i := 0; i < m.SurfaceBatches(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.CullSurfaces(i)
		}(i)
	}
	wg.Wait()
	m.ChainSurfaces()
}

type markResult struct {
	surfVis bsp.Bits
	chains  [][]int
	efrags  []int
	polys   int64
}

// subsetOf reports whether every bit of a is also set in b.
func subsetOf(a, b bsp.Bits) bool {
	for i, w := range a {
		var bw uint32
		if i < len(b) {
			bw = b[i]
		}
		if w&^bw != 0 {
			return false
		}
	}
	return true
}

func markWith(o *Oracle, view View, opts Options, run func()) markResult {
	rec := &efragRecorder{}
	stats := &renderer.Stats{}
	o.hooks.Efrags = rec
	o.hooks.Stats = stats

	o.Prepare(view, opts)
	run()
	return markResult{
		surfVis: slices.Clone(o.SurfVis),
		chains:  chainSets(o.World()),
		efrags:  rec.leaves,
		polys:   stats.BrushPolys.Load(),
	}
}

func gridWithEfrags(opts bsp.GridOptions) *bsp.Model {
	m := bsp.NewGridLevel(opts)
	m.Leafs[3].Efrags = []int{1}
	m.Leafs[8].Efrags = []int{2, 3}
	m.Leafs[9].Efrags = []int{4}
	m.Leafs[33].Efrags = []int{5}
	return m
}

func TestPrepareSolidLeafUsesNoVis(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(mgl32.Vec3{64, 64, -50}, 0, 0), Options{PVS: true})
	assert.Equal(t, 0, o.ViewLeaf())
	assert.Equal(t, SourceNoVis, o.Source())
	assert.Equal(t, m.NumLeafs, o.LeafVis.Count())
}

func TestPrepareSkyLeafUsesNoVis(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.SkyCell = 6
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(cellCenter(opts, 6), 0, 0), Options{PVS: true})
	assert.Equal(t, SourceNoVis, o.Source())
	assert.Equal(t, m.NumLeafs, o.LeafVis.Count())
}

func TestPrepareLeafPVS(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(cellCenter(opts, 10), 0, 0), Options{PVS: true})
	assert.Equal(t, 11, o.ViewLeaf())
	assert.Equal(t, SourceLeafPVS, o.Source())
	assert.Equal(t, 2*opts.VisRadius+1, o.LeafVis.Count())
	for cell := 10 - opts.VisRadius; cell <= 10+opts.VisRadius; cell++ {
		assert.True(t, o.LeafVis.Test(cell), "cell %d", cell)
	}
}

func TestPrepareDisabledPVS(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(cellCenter(opts, 10), 0, 0), Options{})
	assert.Equal(t, SourceNoVis, o.Source())
	assert.Equal(t, m.NumLeafs, o.LeafVis.Count())
}

func TestPrepareNearWaterUsesFatPVS(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.WaterCell = 10
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	// just past the divider so the fat radius reaches the next cell
	origin := mgl32.Vec3{10*opts.CellSize + 4, 64, 64}
	o.Prepare(viewAt(origin, 0, 0), Options{PVS: true})
	require.Equal(t, SourceFatPVS, o.Source())

	plain := m.NewVisBits()
	m.LeafPVS(o.ViewLeaf(), plain)
	assert.True(t, subsetOf(plain, o.LeafVis))
	assert.Greater(t, o.LeafVis.Count(), plain.Count())
}

func TestPrepareMasksTail(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.Cells = 37
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(mgl32.Vec3{64, 64, -50}, 0, 0), Options{PVS: true})
	assert.Equal(t, uint32(1<<5-1), o.LeafVis[1])
}

func TestPrepareAdvancesVisFrame(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	o := NewOracle(bsp.NewGridLevel(opts), Hooks{})
	view := viewAt(cellCenter(opts, 3), 0, 0)

	o.Prepare(view, Options{PVS: true})
	first := o.VisFrame()
	o.Prepare(view, Options{PVS: true})
	assert.Equal(t, first+1, o.VisFrame())
}

func TestScalarMarkCullsBackfaces(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	o.Prepare(viewAt(cellCenter(opts, 5), 0, 0), Options{PVS: true})
	NewScalarMarker(o).Mark()

	for i := range m.Surfaces[:m.NumModelSurfaces] {
		if o.SurfVis.Test(i) {
			assert.False(t, o.FacesAway(i), "surface %d", i)
		}
	}
	require.Positive(t, o.SurfVis.Count())

	total := 0
	for _, tex := range m.Textures {
		total += tex.ChainLen(bsp.ChainWorld)
	}
	assert.Equal(t, o.SurfVis.Count(), total, "each surface is chained once")
}

func TestMarkersAgree(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.SkyCell = 7
	opts.WaterCell = 12
	m := gridWithEfrags(opts)
	o := NewOracle(m, Hooks{})
	scalar := NewScalarMarker(o)
	batch := NewBatchMarker(o)

	rng := rand.New(rand.NewSource(7))
	size := opts.CellSize
	for n := 0; n < 60; n++ {
		origin := mgl32.Vec3{
			rng.Float32() * float32(opts.Cells) * size,
			8 + rng.Float32()*(size-16),
			8 + rng.Float32()*(size-16),
		}
		view := viewAt(origin, rng.Float32()*60-30, rng.Float32()*360)

		for _, vo := range []Options{
			{PVS: true},
			{PVS: true, OldSkyLeaf: true},
			{PVS: false},
		} {
			want := markWith(o, view, vo, scalar.Mark)
			gotSerial := markWith(o, view, vo, batch.Mark)
			vo.Parallel = true
			gotStaged := markWith(o, view, vo, func() { runStaged(batch) })

			for _, got := range []markResult{gotSerial, gotStaged} {
				require.True(t, want.surfVis.Equal(got.surfVis), "surface mask at %v %+v", origin, vo)
				require.Equal(t, want.chains, got.chains, "chains at %v %+v", origin, vo)
				require.Equal(t, want.efrags, got.efrags, "efrags at %v %+v", origin, vo)
				require.Equal(t, want.polys, got.polys)
			}
		}
	}
}

func TestMarkSkyLeaf(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.SkyCell = 5
	m := bsp.NewGridLevel(opts)
	m.Leafs[6].Efrags = []int{9}
	o := NewOracle(m, Hooks{})
	view := viewAt(cellCenter(opts, 4), 0, 0)

	skipped := markWith(o, view, Options{PVS: true}, NewScalarMarker(o).Mark)
	marked := markWith(o, view, Options{PVS: true, OldSkyLeaf: true}, NewScalarMarker(o).Mark)

	assert.Less(t, skipped.surfVis.Count(), marked.surfVis.Count())
	assert.True(t, subsetOf(skipped.surfVis, marked.surfVis))
	assert.Contains(t, skipped.efrags, 6, "sky leaves still store efrags")
}

func TestMarkEmptyVisibility(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	empty := []byte{0, byte(m.VisRowBytes())}
	for leaf := 1; leaf <= m.NumLeafs; leaf++ {
		m.Leafs[leaf].CompressedVis = empty
	}
	o := NewOracle(m, Hooks{})
	view := viewAt(cellCenter(opts, 5), 0, 0)

	for _, run := range []func(){NewScalarMarker(o).Mark, NewBatchMarker(o).Mark} {
		res := markWith(o, view, Options{PVS: true}, run)
		assert.Zero(t, res.surfVis.Count())
		assert.Zero(t, res.polys)
		for _, c := range res.chains {
			assert.Empty(t, c)
		}
	}
}

func TestChainsStableAcrossFrames(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})
	view := viewAt(cellCenter(opts, 20), 10, 45)

	for _, marker := range []Marker{NewScalarMarker(o), NewBatchMarker(o)} {
		first := markWith(o, view, Options{PVS: true}, marker.Mark)
		second := markWith(o, view, Options{PVS: true}, marker.Mark)
		assert.True(t, first.surfVis.Equal(second.surfVis))
		assert.Equal(t, first.chains, second.chains)
	}
}

func TestMarkSetsUpdateWarp(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	opts.WaterCell = 5
	m := bsp.NewGridLevel(opts)
	o := NewOracle(m, Hooks{})

	var water *bsp.Texture
	for _, tex := range m.Textures {
		if tex.Warp && tex.Name == "*water0" {
			water = tex
		}
	}
	require.NotNil(t, water)

	o.Prepare(viewAt(cellCenter(opts, 5), 0, 0), Options{PVS: true})
	NewBatchMarker(o).Mark()
	assert.True(t, water.UpdateWarp.Load())
}

func TestMarkRebuildsChangedLightmaps(t *testing.T) {
	opts := bsp.DefaultGridOptions()
	m := bsp.NewGridLevel(opts)
	light := &lightmap.Frame{Count: 1, Styles: lighting.NewStyles(), DLights: &lighting.DLights{}, Dynamic: true}
	light.Styles.Values[3] = 200
	mgr := lightmap.NewManager(lightmap.DefaultConfig())
	require.NoError(t, mgr.BuildLightmaps([]*bsp.Model{m}, light))

	o := NewOracle(m, Hooks{Lightmaps: mgr, Light: light})
	// cell 2 carries the flickering style
	view := viewAt(cellCenter(opts, 1), 0, 0)

	light.Count = 2
	light.Styles.Values[3] = 100
	o.Prepare(view, Options{PVS: true, GPULightmaps: true})
	NewScalarMarker(o).Mark()
	for _, p := range mgr.Atlas().Pages() {
		assert.Equal(t, lightmap.Rect{L: 1024, T: 1024}, p.DirtyRect(), "gpu mode only flags pages")
	}

	rebuilt := o.UpdateLightmaps()
	want := 0
	o.SurfVis.ForEach(func(i int) {
		if m.Surfaces[i].Styles[1] == 3 {
			want++
		}
	})
	require.Positive(t, want)
	assert.Equal(t, want, rebuilt)
	assert.Zero(t, o.UpdateLightmaps(), "nothing left to rebuild")

	light.Count = 3
	light.Styles.Values[3] = 50
	o.Prepare(view, Options{PVS: true})
	NewScalarMarker(o).Mark()
	assert.Zero(t, o.UpdateLightmaps(), "cpu mode rebuilds while marking")
	for i := range m.Surfaces {
		s := &m.Surfaces[i]
		if o.SurfVis.Test(i) && s.Styles[1] == 3 {
			assert.Equal(t, 50, s.CachedLight[1])
		}
	}
}
