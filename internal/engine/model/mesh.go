package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
)

// AliasFrame is one pose of an alias model.
type AliasFrame struct {
	Name     string
	Vertices []mgl32.Vec3 // one position per mesh vertex
	Bounds   Bounds
}

// Alias is a vertex-animated mesh. Poses are drawn as stored.
type Alias struct {
	ModelName string
	Frames    []AliasFrame
	TexCoords [][2]float32 // shared by every frame
	Triangles [][3]uint32
	Skin      renderer.MaterialID
}

func (a *Alias) Kind() Kind   { return KindAlias }
func (a *Alias) Name() string { return a.ModelName }

// Bounds returns the union of every frame's bounds.
func (a *Alias) Bounds() Bounds {
	if len(a.Frames) == 0 {
		return Bounds{}
	}
	b := a.Frames[0].Bounds
	for _, f := range a.Frames[1:] {
		for k := 0; k < 3; k++ {
			b.Min[k] = min(b.Min[k], f.Bounds.Min[k])
			b.Max[k] = max(b.Max[k], f.Bounds.Max[k])
		}
	}
	return b
}

// FrameIndex returns frame, or 0 with a warning when it is out of range.
func (a *Alias) FrameIndex(frame int) int {
	if frame >= 0 && frame < len(a.Frames) {
		return frame
	}
	logger.WarnOnce("model.frame."+a.ModelName, "no such alias frame",
		zap.String("model", a.ModelName), zap.Int("frame", frame))
	return 0
}

// BuildFrame fills verts and indices with the triangle list of a pose.
// verts must hold len(TexCoords) entries and indices 3*len(Triangles).
func (a *Alias) BuildFrame(frame int, verts []renderer.Vertex, indices []uint32) {
	pose := a.Frames[a.FrameIndex(frame)].Vertices
	for i, p := range pose {
		verts[i] = renderer.Vertex{Position: p, TexCoord: a.TexCoords[i], Color: 0xFFFFFFFF}
	}
	for i, tri := range a.Triangles {
		copy(indices[3*i:], tri[:])
	}
}

// Upload sends one instance of the model to the backend, rasterized when
// the instance is translucent.
func (a *Alias) Upload(b renderer.Backend, in *Instance, scratch *renderer.Scratch, stats *renderer.Stats) error {
	if len(a.Frames) == 0 || len(a.Triangles) == 0 {
		return nil
	}
	verts := scratch.Vertices(len(a.TexCoords))
	indices := scratch.Indices(3 * len(a.Triangles))
	a.BuildFrame(in.Frame, verts, indices)

	var err error
	if alpha := in.alpha(); alpha < 1 {
		err = b.UploadRasterizedGeometry(&renderer.RasterizedInfo{
			Vertices:  verts,
			Indices:   indices,
			Transform: in.Transform,
			Color:     [4]float32{1, 1, 1, alpha},
			Diffuse:   a.Skin,
			State:     renderer.StateDepthTest | renderer.StateBlend,
			BlendSrc:  renderer.BlendSrcAlpha,
			BlendDst:  renderer.BlendOneMinusSrcAlpha,
		})
	} else {
		err = b.UploadGeometry(&renderer.GeometryInfo{
			UniqueID:    renderer.AliasID(in.ID),
			Type:        renderer.GeometryDynamic,
			PassThrough: renderer.PassOpaque,
			Vertices:    verts,
			Indices:     indices,
			Transform:   in.Transform,
			Diffuse:     a.Skin,
			PortalIndex: renderer.NoPortal,
		})
	}
	if err != nil {
		return fmt.Errorf("alias %s: %w", a.ModelName, err)
	}
	if stats != nil {
		stats.AliasPolys.Add(int64(len(a.Triangles)))
		stats.AliasPasses.Add(1)
	}
	return nil
}
