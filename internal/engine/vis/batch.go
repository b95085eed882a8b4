package vis

import (
	"math/bits"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
)

// laneWidth is the number of leaves or surfaces handled per batch.
const laneWidth = 32

// BatchMarker processes leaves and surfaces 32 at a time using the words of
// the visibility masks. Mark runs the whole pass; the split stages let a
// task graph run it as MarkLeafs -> {CullSurfaces, StoreEfrags} ->
// ChainSurfaces with one task instance per batch.
type BatchMarker struct {
	*Oracle
}

// NewBatchMarker returns a marker running on o.
func NewBatchMarker(o *Oracle) *BatchMarker {
	return &BatchMarker{Oracle: o}
}

// LeafBatches returns the number of MarkLeafs instances per frame.
func (m *BatchMarker) LeafBatches() int {
	return (m.world.NumLeafs + laneWidth - 1) / laneWidth
}

// SurfaceBatches returns the number of CullSurfaces instances per frame.
func (m *BatchMarker) SurfaceBatches() int {
	return (len(m.world.Surfaces) + laneWidth - 1) / laneWidth
}

// leafMask returns the lanes of leaf word i that survive frustum culling.
func (m *BatchMarker) leafMask(i int, mask uint32) uint32 {
	if !m.opts.PVS {
		return mask
	}
	for it := mask; it != 0; {
		j := bits.TrailingZeros32(it)
		it &^= 1 << j
		if m.cullLeaf(i*laneWidth + j) {
			mask &^= 1 << j
		}
	}
	return mask
}

// frontMask returns the lanes of surface word i whose surfaces face the viewer.
func (m *BatchMarker) frontMask(i int) uint32 {
	if !m.opts.PVS {
		return ^uint32(0)
	}
	var mask uint32
	first := i * laneWidth
	n := min(laneWidth, len(m.planes)-first)
	for j := 0; j < n; j++ {
		if !m.FacesAway(first + j) {
			mask |= 1 << j
		}
	}
	return mask
}

// orLeafSurfaces sets the surface bits of leaf.
func (m *BatchMarker) orLeafSurfaces(leaf *bsp.Leaf, atomic bool) {
	if !m.marksLeafSurfaces(leaf) {
		return
	}
	for _, si := range leaf.MarkSurfaces {
		if atomic {
			m.SurfVis.OrAtomic(si)
		} else {
			m.SurfVis.Set(si)
		}
	}
}

// Mark runs the batched pass on the calling goroutine.
func (m *BatchMarker) Mark() {
	w := m.world
	for i := range m.LeafVis {
		mask := m.LeafVis[i]
		if mask == 0 {
			continue
		}
		mask = m.leafMask(i, mask)
		for mask != 0 {
			j := bits.TrailingZeros32(mask)
			mask &^= 1 << j
			m.orLeafSurfaces(&w.Leafs[1+i*laneWidth+j], false)
			m.storeEfrags(i*laneWidth + j)
		}
	}

	polys := 0
	for i := range m.SurfVis {
		mask := m.SurfVis[i]
		if mask == 0 {
			continue
		}
		mask &= m.frontMask(i)
		m.SurfVis[i] = mask
		for mask != 0 {
			j := bits.TrailingZeros32(mask)
			mask &^= 1 << j
			si := i*laneWidth + j
			polys++
			w.ChainSurface(si, bsp.ChainWorld)
			m.touchSurface(si, !m.deferred)
		}
	}
	m.addBrushPolys(polys)
}

// MarkLeafs marks the surfaces of leaf batch i. Batches may run
// concurrently: each owns its leaf word, surface bits are set atomically.
// Lanes without efrags are dropped from the leaf word afterwards so
// StoreEfrags only visits leaves that carry some.
func (m *BatchMarker) MarkLeafs(i int) {
	mask := m.LeafVis[i]
	if mask == 0 {
		return
	}
	mask = m.leafMask(i, mask)
	m.LeafVis[i] = mask

	for it := mask; it != 0; {
		j := bits.TrailingZeros32(it)
		it &^= 1 << j
		leaf := &m.world.Leafs[1+i*laneWidth+j]
		m.orLeafSurfaces(leaf, true)
		if len(leaf.Efrags) == 0 {
			m.LeafVis[i] &^= 1 << j
		}
	}
}

// CullSurfaces drops the back-facing surfaces of surface batch i and flags
// the lightmap pages and warp textures of the rest. Batches may run
// concurrently.
func (m *BatchMarker) CullSurfaces(i int) {
	mask := m.SurfVis[i]
	if mask == 0 {
		return
	}
	mask &= m.frontMask(i)
	m.SurfVis[i] = mask

	for mask != 0 {
		j := bits.TrailingZeros32(mask)
		mask &^= 1 << j
		m.touchSurface(i*laneWidth+j, false)
	}
}

// StoreEfrags hands the efrags of the leaves kept by MarkLeafs to the sink.
// It may run concurrently with CullSurfaces.
func (m *BatchMarker) StoreEfrags() {
	m.LeafVis.ForEach(m.storeEfrags)
}

// ChainSurfaces links every surface left in the mask into the world chains
// in index order. It is the single writer of the chains.
func (m *BatchMarker) ChainSurfaces() {
	w := m.world
	polys := 0
	m.SurfVis.ForEach(func(si int) {
		polys++
		w.ChainSurface(si, bsp.ChainWorld)
	})
	m.addBrushPolys(polys)
}
