package vis

import "github.com/Faultbox/rtquake/internal/engine/bsp"

// ScalarMarker walks leaves and their surfaces one at a time.
type ScalarMarker struct {
	*Oracle
}

// NewScalarMarker returns a marker running on o.
func NewScalarMarker(o *Oracle) *ScalarMarker {
	return &ScalarMarker{Oracle: o}
}

// Mark culls and chains the surfaces of every visible leaf. Surfaces shared
// between leaves are considered once per pass.
func (m *ScalarMarker) Mark() {
	w := m.world
	pvs := m.opts.PVS
	polys := 0

	for i := 0; i < w.NumLeafs; i++ {
		leaf := &w.Leafs[i+1]
		if pvs {
			if !m.LeafVis.Test(i) {
				continue
			}
			if m.cullLeaf(i) {
				continue
			}
		}

		if m.marksLeafSurfaces(leaf) {
			for _, si := range leaf.MarkSurfaces {
				surf := &w.Surfaces[si]
				if surf.VisFrame == m.visFrame {
					continue
				}
				surf.VisFrame = m.visFrame

				if pvs && m.FacesAway(si) {
					continue
				}

				polys++
				m.SurfVis.Set(si)
				w.ChainSurface(si, bsp.ChainWorld)
				m.touchSurface(si, !m.deferred)
			}
		}

		m.storeEfrags(i)
	}

	m.addBrushPolys(polys)
}
