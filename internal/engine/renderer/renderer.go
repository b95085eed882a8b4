// Package renderer defines the sink that receives world geometry, materials
// and lights from the frame, along with the unique-ID scheme the sink uses
// to cache static geometry between frames.
package renderer

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ErrUploadFailed is returned by a backend that rejected an upload.
var ErrUploadFailed = errors.New("renderer: upload failed")

// MaterialID references a texture registered with the backend.
type MaterialID = uuid.UUID

// NoMaterial is the empty material reference.
var NoMaterial = uuid.Nil

// Vertex is the packed vertex layout accepted by the backend.
type Vertex struct {
	Position   mgl32.Vec3
	TexCoord   [2]float32
	LightCoord [2]float32
	Color      uint32 // packed RGBA8
}

// Transform is a row-major 3x4 affine matrix.
type Transform [3][4]float32

// IdentityTransform leaves geometry in world space.
var IdentityTransform = Transform{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
}

// TransformFromMat4 drops the projective row of a column-major mgl32 matrix.
func TransformFromMat4(m mgl32.Mat4) Transform {
	var t Transform
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			t[row][col] = m.At(row, col)
		}
	}
	return t
}

// Apply transforms point p.
func (t *Transform) Apply(p mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for row := 0; row < 3; row++ {
		out[row] = t[row][0]*p[0] + t[row][1]*p[1] + t[row][2]*p[2] + t[row][3]
	}
	return out
}

// GeometryType selects how long the backend keeps geometry.
type GeometryType int

const (
	// GeometryStatic is kept until the next StartNewScene.
	GeometryStatic GeometryType = iota
	// GeometryDynamic lives for one frame.
	GeometryDynamic
)

// PassThrough selects how rays interact with a piece of geometry.
type PassThrough int

const (
	PassOpaque PassThrough = iota
	PassWater
	PassPortal
)

// NoPortal marks geometry that is not a teleport surface.
const NoPortal = -1

// GeometryInfo describes a ray-traced geometry upload.
type GeometryInfo struct {
	UniqueID    uint64
	Type        GeometryType
	PassThrough PassThrough
	Vertices    []Vertex
	Indices     []uint32
	Transform   Transform
	Diffuse     MaterialID
	Lightmap    MaterialID
	Roughness   float32
	Metallicity float32
	PortalIndex int
}

// RasterState is a set of fixed-function flags for rasterized geometry.
type RasterState uint32

const (
	StateDepthTest RasterState = 1 << iota
	StateDepthWrite
	StateAlphaTest
	StateBlend
)

// BlendFactor is a blend equation operand.
type BlendFactor int

const (
	BlendOne BlendFactor = iota
	BlendZero
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
)

// RasterizedInfo describes a forward-blended geometry upload.
type RasterizedInfo struct {
	Vertices  []Vertex
	Indices   []uint32
	Transform Transform
	Color     [4]float32
	Diffuse   MaterialID
	Lightmap  MaterialID
	State     RasterState
	BlendSrc  BlendFactor
	BlendDst  BlendFactor
}

// Light is a point light.
type Light struct {
	UniqueID uint64
	Position mgl32.Vec3
	Color    mgl32.Vec3
	Radius   float32
	Style    int
}

// Portal links a teleport entrance to its destination.
type Portal struct {
	Index        int
	In           mgl32.Vec3
	Out          mgl32.Vec3
	OutDirection mgl32.Vec3
	OutUp        mgl32.Vec3
}

// MaterialUpdate replaces a sub-rectangle of a material's texels.
type MaterialUpdate struct {
	Material MaterialID
	Data     []byte // RGBA8, Width*Height*4 bytes
	Width    int
	Height   int
	X, Y     int
	W, H     int
}

// Backend is the hybrid ray-tracing renderer the frame feeds. Every call
// reports success through its error; implementations must be safe for
// concurrent use by frame tasks and copy any slice they keep, since
// callers reuse their buffers once a call returns.
type Backend interface {
	StartNewScene() error
	SubmitStaticGeometries() error
	UploadGeometry(info *GeometryInfo) error
	UploadRasterizedGeometry(info *RasterizedInfo) error
	UploadLight(l *Light) error
	UploadPortal(p *Portal) error
	UpdateMaterial(u *MaterialUpdate) error
}
