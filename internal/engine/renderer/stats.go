package renderer

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Stats counts the work done in one frame. Counters are written by
// concurrent frame tasks.
type Stats struct {
	BrushPolys       atomic.Int64
	BrushPasses      atomic.Int64
	AliasPolys       atomic.Int64
	AliasPasses      atomic.Int64
	SpritePasses     atomic.Int64
	Particles        atomic.Int64
	DynamicLightmaps atomic.Int64
	StaticUploads    atomic.Int64
	DynamicUploads   atomic.Int64
	RasterUploads    atomic.Int64
	WarpTextures     atomic.Int64
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.BrushPolys.Store(0)
	s.BrushPasses.Store(0)
	s.AliasPolys.Store(0)
	s.AliasPasses.Store(0)
	s.SpritePasses.Store(0)
	s.Particles.Store(0)
	s.DynamicLightmaps.Store(0)
	s.StaticUploads.Store(0)
	s.DynamicUploads.Store(0)
	s.RasterUploads.Store(0)
	s.WarpTextures.Store(0)
}

// Fields returns the counters as log fields.
func (s *Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("wpoly", s.BrushPolys.Load()),
		zap.Int64("wpass", s.BrushPasses.Load()),
		zap.Int64("epoly", s.AliasPolys.Load()),
		zap.Int64("epass", s.AliasPasses.Load()),
		zap.Int64("sprites", s.SpritePasses.Load()),
		zap.Int64("particles", s.Particles.Load()),
		zap.Int64("lightmaps", s.DynamicLightmaps.Load()),
		zap.Int64("static", s.StaticUploads.Load()),
		zap.Int64("dynamic", s.DynamicUploads.Load()),
		zap.Int64("raster", s.RasterUploads.Load()),
		zap.Int64("warp", s.WarpTextures.Load()),
	}
}
