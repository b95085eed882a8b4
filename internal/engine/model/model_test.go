package model

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
)

func triangleModel() *Alias {
	return &Alias{
		ModelName: "progs/tri.mdl",
		Frames: []AliasFrame{
			{Name: "stand", Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				Bounds: Bounds{Max: mgl32.Vec3{1, 1, 0}}},
			{Name: "jump", Vertices: []mgl32.Vec3{{0, 0, 2}, {1, 0, 2}, {0, 1, 2}},
				Bounds: Bounds{Min: mgl32.Vec3{0, 0, 2}, Max: mgl32.Vec3{1, 1, 2}}},
		},
		TexCoords: [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Triangles: [][3]uint32{{0, 1, 2}},
		Skin:      uuid.New(),
	}
}

type kindRecorder struct {
	kinds []Kind
}

func (r *kindRecorder) VisitAlias(m *Alias) error   { r.kinds = append(r.kinds, m.Kind()); return nil }
func (r *kindRecorder) VisitBrush(m *Brush) error   { r.kinds = append(r.kinds, m.Kind()); return nil }
func (r *kindRecorder) VisitSprite(m *Sprite) error { r.kinds = append(r.kinds, m.Kind()); return nil }

func TestDispatch(t *testing.T) {
	world := bsp.NewGridLevel(bsp.DefaultGridOptions())
	models := []Model{triangleModel(), &Brush{BSP: world}, &Sprite{ModelName: "s_light.spr"}}

	var r kindRecorder
	for _, m := range models {
		require.NoError(t, Dispatch(m, &r))
	}
	assert.Equal(t, []Kind{KindAlias, KindBrush, KindSprite}, r.kinds)
	assert.Equal(t, "sprite", KindSprite.String())
	assert.Equal(t, world.Maxs, models[1].Bounds().Max)
}

func TestAliasFrameClamp(t *testing.T) {
	a := triangleModel()
	assert.Equal(t, 1, a.FrameIndex(1))
	assert.Equal(t, 0, a.FrameIndex(2))
	assert.Equal(t, 0, a.FrameIndex(-1))

	b := a.Bounds()
	assert.Equal(t, mgl32.Vec3{1, 1, 2}, b.Max)
}

func TestAliasUpload(t *testing.T) {
	a := triangleModel()
	rec := renderer.NewRecorder()
	scratch := renderer.NewScratch(16, 16)
	stats := &renderer.Stats{}

	in := &Instance{ID: 9, Frame: 1, Transform: renderer.IdentityTransform}
	require.NoError(t, a.Upload(rec, in, scratch, stats))

	dyn := rec.Dynamic()
	require.Len(t, dyn, 1)
	assert.Equal(t, renderer.AliasID(9), dyn[0].UniqueID)
	assert.Equal(t, []uint32{0, 1, 2}, dyn[0].Indices)
	assert.Equal(t, mgl32.Vec3{1, 0, 2}, dyn[0].Vertices[1].Position)
	assert.Equal(t, a.Skin, dyn[0].Diffuse)

	in.Alpha = 0.5
	in.Frame = 7
	require.NoError(t, a.Upload(rec, in, scratch, stats))
	raster := rec.Rasterized()
	require.Len(t, raster, 1)
	assert.Equal(t, float32(0.5), raster[0].Color[3])
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, raster[0].Vertices[1].Position, "bad frame draws frame 0")

	assert.Equal(t, int64(2), stats.AliasPasses.Load())
	assert.Equal(t, int64(2), stats.AliasPolys.Load())
}

func TestSpriteQuad(t *testing.T) {
	f := SpriteFrame{Up: 8, Down: -8, Left: -4, Right: 4}
	origin := mgl32.Vec3{10, 0, 0}
	q := f.Quad(origin, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1})

	assert.Equal(t, mgl32.Vec3{10, -4, -8}, q[0].Position)
	assert.Equal(t, mgl32.Vec3{10, -4, 8}, q[1].Position)
	assert.Equal(t, mgl32.Vec3{10, 4, 8}, q[2].Position)
	assert.Equal(t, mgl32.Vec3{10, 4, -8}, q[3].Position)
}

func TestSpriteUpload(t *testing.T) {
	s := &Sprite{ModelName: "s_explod.spr", Frames: []SpriteFrame{
		{Width: 16, Height: 16, Up: 8, Down: -8, Left: -8, Right: 8, Material: uuid.New()},
	}}
	rec := renderer.NewRecorder()
	stats := &renderer.Stats{}
	in := &Instance{ID: 4, Frame: 3}

	err := s.Upload(rec, in, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, renderer.NewScratch(8, 8), stats)
	require.NoError(t, err)

	raster := rec.Rasterized()
	require.Len(t, raster, 1)
	assert.Equal(t, []uint32{2, 1, 0, 3, 2, 0}, raster[0].Indices)
	assert.Equal(t, s.Frames[0].Material, raster[0].Diffuse)
	assert.NotZero(t, raster[0].State&renderer.StateAlphaTest)
	assert.NotZero(t, raster[0].State&renderer.StateDepthWrite)
	assert.Equal(t, int64(1), stats.SpritePasses.Load())

	assert.Equal(t, mgl32.Vec3{8, 8, 8}, s.Bounds().Max)
}
