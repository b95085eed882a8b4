package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/rtquake/internal/engine/renderer"
)

// SpriteFrame is one image of a sprite with its extents around the origin.
type SpriteFrame struct {
	Width, Height int
	Up, Down      float32
	Left, Right   float32
	Material      renderer.MaterialID
}

// Sprite is a camera-facing textured quad.
type Sprite struct {
	ModelName string
	Frames    []SpriteFrame
}

func (s *Sprite) Kind() Kind   { return KindSprite }
func (s *Sprite) Name() string { return s.ModelName }

func (s *Sprite) Bounds() Bounds {
	var r float32
	for _, f := range s.Frames {
		r = max(r, -f.Down, f.Up, -f.Left, f.Right)
	}
	return Bounds{Min: mgl32.Vec3{-r, -r, -r}, Max: mgl32.Vec3{r, r, r}}
}

var spriteIndices = [6]uint32{2, 1, 0, 3, 2, 0}

// Quad returns the corners of a frame placed at origin and spanned by the
// view's right and up vectors, in fan order.
func (f *SpriteFrame) Quad(origin, right, up mgl32.Vec3) [4]renderer.Vertex {
	corner := func(v, h float32) mgl32.Vec3 {
		return origin.Add(up.Mul(v)).Add(right.Mul(h))
	}
	return [4]renderer.Vertex{
		{Position: corner(f.Down, f.Left), TexCoord: [2]float32{0, 1}, Color: 0xFFFFFFFF},
		{Position: corner(f.Up, f.Left), TexCoord: [2]float32{0, 0}, Color: 0xFFFFFFFF},
		{Position: corner(f.Up, f.Right), TexCoord: [2]float32{1, 0}, Color: 0xFFFFFFFF},
		{Position: corner(f.Down, f.Right), TexCoord: [2]float32{1, 1}, Color: 0xFFFFFFFF},
	}
}

// Upload rasterizes one sprite instance in world space facing the view.
// Out-of-range frames fall back to frame 0.
func (s *Sprite) Upload(b renderer.Backend, in *Instance, origin, right, up mgl32.Vec3, scratch *renderer.Scratch, stats *renderer.Stats) error {
	if len(s.Frames) == 0 {
		return nil
	}
	frame := in.Frame
	if frame < 0 || frame >= len(s.Frames) {
		frame = 0
	}
	f := &s.Frames[frame]

	quad := f.Quad(origin, right, up)
	verts := scratch.Vertices(len(quad))
	copy(verts, quad[:])
	indices := scratch.Indices(len(spriteIndices))
	copy(indices, spriteIndices[:])

	info := renderer.RasterizedInfo{
		Vertices:  verts,
		Indices:   indices,
		Transform: renderer.IdentityTransform,
		Color:     [4]float32{1, 1, 1, in.alpha()},
		Diffuse:   f.Material,
		State:     renderer.StateDepthTest | renderer.StateAlphaTest,
	}
	if info.Color[3] < 1 {
		info.State |= renderer.StateBlend
		info.BlendSrc = renderer.BlendSrcAlpha
		info.BlendDst = renderer.BlendOneMinusSrcAlpha
	} else {
		info.State |= renderer.StateDepthWrite
	}
	if err := b.UploadRasterizedGeometry(&info); err != nil {
		return fmt.Errorf("sprite %s: %w", s.ModelName, err)
	}
	if stats != nil {
		stats.SpritePasses.Add(1)
	}
	return nil
}
