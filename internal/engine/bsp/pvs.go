package bsp

import (
	"github.com/go-gl/mathgl/mgl32"
)

// fatPVSRadius is how far around the viewer leaves are merged into the fat PVS.
const fatPVSRadius = 8

// VisRowBytes returns the size of one uncompressed PVS row.
func (m *Model) VisRowBytes() int {
	return (m.NumLeafs + 7) >> 3
}

// NewVisBits returns a leaf bit set sized for the model.
func (m *Model) NewVisBits() Bits {
	return NewBits(m.NumLeafs)
}

// DecompressVis expands a run-length encoded PVS row into out. A nil row
// means the level has no vis data and every leaf is visible. Bit i refers
// to Leafs[i+1].
func (m *Model) DecompressVis(in []byte, out Bits) {
	row := m.VisRowBytes()
	if in == nil {
		out.Reset()
		for k := 0; k < row; k++ {
			out.setByte(k, 0xff)
		}
		return
	}

	out.Reset()
	o := 0
	for o < row && len(in) > 0 {
		if in[0] != 0 {
			out.setByte(o, in[0])
			o++
			in = in[1:]
			continue
		}
		if len(in) < 2 {
			break
		}
		// zero bytes are already cleared
		o += int(in[1])
		in = in[2:]
	}
}

// LeafPVS writes the PVS of leaf into out. The solid leaf has no PVS and
// sees everything.
func (m *Model) LeafPVS(leaf int, out Bits) {
	if leaf == 0 {
		m.NoVisPVS(out)
		return
	}
	m.DecompressVis(m.Leafs[leaf].CompressedVis, out)
}

// NoVisPVS marks every leaf visible.
func (m *Model) NoVisPVS(out Bits) {
	out.Fill()
}

// FatPVS writes the union of the PVS of every non-solid leaf within a small
// radius of org into out. scratch must be sized like out.
func (m *Model) FatPVS(org mgl32.Vec3, out, scratch Bits) {
	out.Reset()
	if m.Headnode < 0 {
		return
	}
	m.addToFatPVS(org, m.Headnode, out, scratch)
}

func (m *Model) addToFatPVS(org mgl32.Vec3, child int, out, scratch Bits) {
	for {
		if child < 0 {
			leaf := ChildLeaf(child)
			if m.Leafs[leaf].Contents != ContentsSolid {
				m.LeafPVS(leaf, scratch)
				for i := range out {
					out[i] |= scratch[i]
				}
			}
			return
		}

		node := &m.Nodes[child]
		d := node.Plane.Normal.Dot(org) - node.Plane.Dist
		switch {
		case d > fatPVSRadius:
			child = node.Children[0]
		case d < -fatPVSRadius:
			child = node.Children[1]
		default:
			// go down both
			m.addToFatPVS(org, node.Children[0], out, scratch)
			child = node.Children[1]
		}
	}
}

// CompressVis run-length encodes the first numLeafs bits of vis.
func CompressVis(vis Bits, numLeafs int) []byte {
	row := (numLeafs + 7) >> 3
	out := make([]byte, 0, row)
	for j := 0; j < row; j++ {
		b := vis.byteAt(j)
		out = append(out, b)
		if b != 0 {
			continue
		}
		rep := 1
		for j++; j < row; j++ {
			if vis.byteAt(j) != 0 || rep == 255 {
				break
			}
			rep++
		}
		out = append(out, byte(rep))
		j--
	}
	return out
}
