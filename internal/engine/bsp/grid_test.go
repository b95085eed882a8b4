package bsp

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPointInLeaf(t *testing.T) {
	opts := DefaultGridOptions()
	m := NewGridLevel(opts)
	size := opts.CellSize

	for cell := 0; cell < opts.Cells; cell++ {
		p := mgl32.Vec3{(float32(cell) + 0.5) * size, size / 2, size / 2}
		assert.Equal(t, cell+1, m.PointInLeaf(p), "cell %d", cell)
	}
	assert.Equal(t, 0, m.PointInLeaf(mgl32.Vec3{size / 2, size / 2, -10}))
	assert.Equal(t, 0, m.PointInLeaf(mgl32.Vec3{size / 2, size + 10, size / 2}))
}

func TestGridSingleCell(t *testing.T) {
	opts := DefaultGridOptions()
	opts.Cells = 1
	m := NewGridLevel(opts)
	assert.Equal(t, 1, m.PointInLeaf(mgl32.Vec3{10, 10, 10}))
	assert.Len(t, m.Leafs[1].MarkSurfaces, 4)
}

func TestGridMarkSurfaces(t *testing.T) {
	opts := DefaultGridOptions()
	m := NewGridLevel(opts)

	refs := make(map[int]int)
	for leaf := 1; leaf <= m.NumLeafs; leaf++ {
		for _, s := range m.Leafs[leaf].MarkSurfaces {
			refs[s]++
		}
	}
	shared := 0
	for _, n := range refs {
		if n == 2 {
			shared++
		}
	}
	assert.Equal(t, opts.Cells-1, shared, "every divider is referenced by both neighbours")
	assert.Len(t, m.Leafs[1].MarkSurfaces, 5)
	assert.Len(t, m.Leafs[5].MarkSurfaces, 6)
}

func TestGridSurfaces(t *testing.T) {
	opts := DefaultGridOptions()
	opts.Doors = 2
	opts.WaterCell = 2
	opts.SkyCell = 4
	m := NewGridLevel(opts)

	assert.Equal(t, 4*opts.Cells+opts.Cells-1, m.NumModelSurfaces)
	assert.Len(t, m.Surfaces, m.NumModelSurfaces+12)
	assert.Len(t, m.Vertices, 4*len(m.Surfaces))

	for i := range m.Surfaces {
		s := &m.Surfaces[i]
		require.NotNil(t, s.TexInfo)
		if s.Flags&SurfDrawTiled != 0 {
			assert.Nil(t, s.Samples)
			continue
		}
		smax, tmax := s.LightmapSize()
		assert.Equal(t, smax*tmax*3*MaxLightmaps, len(s.Samples))
		if i < m.NumModelSurfaces {
			assert.Equal(t, opts.CellSize/16+1, float32(smax))
		}
	}

	require.Len(t, m.Submodels, 2)
	door := m.Submodel(1)
	require.NotNil(t, door)
	assert.Equal(t, "*1", door.Name)
	assert.Equal(t, 6, door.NumModelSurfaces)
	assert.Equal(t, -1, door.Headnode)
	assert.Same(t, &m.Surfaces[0], &door.Surfaces[0])
	assert.Nil(t, m.Submodel(3))

	assert.Equal(t, ContentsSky, m.Leafs[5].Contents)
	water := 0
	for _, s := range m.Leafs[3].MarkSurfaces {
		if m.Surfaces[s].Flags&SurfDrawTurb != 0 {
			water++
			assert.True(t, m.SurfaceTexture(s).Warp)
		}
	}
	assert.Equal(t, 1, water)
	assert.Contains(t, m.Entities, "func_door")
}

func TestGridNoLightData(t *testing.T) {
	opts := DefaultGridOptions()
	opts.NoLightData = true
	opts.NoVisData = true
	m := NewGridLevel(opts)
	assert.Nil(t, m.LightData)
	for leaf := 1; leaf <= m.NumLeafs; leaf++ {
		assert.Nil(t, m.Leafs[leaf].CompressedVis)
	}
}

func TestChains(t *testing.T) {
	m := NewGridLevel(DefaultGridOptions())
	m.AllocChains(NumChains(2))

	m.ChainSurface(0, ChainWorld)
	m.ChainSurface(1, ChainModel(1))
	tex := m.SurfaceTexture(0)
	assert.Equal(t, 1, tex.ChainLen(ChainWorld))

	m.ClearChains(ChainWorld)
	assert.Equal(t, 0, tex.ChainLen(ChainWorld))
	assert.Equal(t, 1, m.SurfaceTexture(1).ChainLen(ChainModel(1)))
}

func TestGridTeleport(t *testing.T) {
	opts := DefaultGridOptions()
	opts.Doors = 2
	opts.Teleport = true
	m := NewGridLevel(opts)

	tele := m.Submodel(2)
	require.NotNil(t, tele)
	for i := tele.FirstModelSurface; i < tele.FirstModelSurface+tele.NumModelSurfaces; i++ {
		assert.NotZero(t, m.Surfaces[i].Flags&SurfDrawTele)
		assert.Equal(t, "*teleport", m.SurfaceTexture(i).Name)
	}
	door := m.Submodel(1)
	assert.Zero(t, m.Surfaces[door.FirstModelSurface].Flags&SurfDrawTele)

	assert.Contains(t, m.Entities, "\"trigger_teleport\"")
	assert.Contains(t, m.Entities, "\"info_teleport_destination\"")
	assert.Contains(t, m.Entities, "\"*2\"")
}
