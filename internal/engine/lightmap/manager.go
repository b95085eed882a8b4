package lightmap

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
)

// legacyLimit is the old budget of 128x128 lightmap textures.
const legacyLimit = 64

// Frame is the lighting state a rebuild reads. It is written before the
// frame's tasks start and read-only while they run.
type Frame struct {
	Count   int // frame number compared against surface dlight frames
	Styles  *lighting.Styles
	DLights *lighting.DLights
	Dynamic bool // rebuild lightmaps whose lighting changed
}

// Manager owns the atlas and rebuilds surface lightmaps.
type Manager struct {
	atlas        *Atlas
	hasLightData bool

	blocks sync.Pool // *[]uint32 accumulation buffers

	uploadMu sync.Mutex
	log      *zap.Logger
}

// NewManager creates a manager with an empty atlas.
func NewManager(cfg Config) *Manager {
	return &Manager{
		atlas: NewAtlas(cfg),
		blocks: sync.Pool{New: func() any {
			b := make([]uint32, MaxExtent*MaxExtent*3)
			return &b
		}},
		log: logger.Named("lightmap"),
	}
}

// Atlas returns the manager's atlas.
func (m *Manager) Atlas() *Atlas { return m.atlas }

func (m *Manager) block(n int) *[]uint32 {
	b := m.blocks.Get().(*[]uint32)
	if cap(*b) < n {
		*b = make([]uint32, n)
	}
	*b = (*b)[:n]
	return b
}

// BuildLightmaps allocates and fills the lightmap of every lit surface of
// the given models and assigns lightmap coordinates to their vertices.
// Submodels ("*N") share their world's surfaces and are skipped.
func (m *Manager) BuildLightmaps(models []*bsp.Model, f *Frame) error {
	m.atlas.Reset()
	cfg := m.atlas.cfg
	m.hasLightData = len(models) > 0 && models[0].LightData != nil

	for _, model := range models {
		if model == nil || strings.HasPrefix(model.Name, "*") {
			continue
		}
		for i := range model.Surfaces {
			surf := &model.Surfaces[i]
			if surf.Flags&bsp.SurfDrawTiled != 0 {
				surf.Lightmap = -1
				continue
			}
			smax, tmax := surf.LightmapSize()
			page, x, y, err := m.atlas.AllocBlock(smax, tmax)
			if err != nil {
				return fmt.Errorf("surface %d of %s: %w", i, model.Name, err)
			}
			surf.Lightmap, surf.LightS, surf.LightT = page, x, y

			p := m.atlas.pages[page]
			off := (y*cfg.Width + x) * BytesPerTexel
			m.BuildLightMap(surf, f, p.Data[off:], cfg.Width*BytesPerTexel)
			m.setLightCoords(model, surf)
		}
	}

	for _, p := range m.atlas.pages {
		p.modified.Store(false)
		p.Rect = Rect{L: cfg.Width, T: cfg.Height}
	}

	n := len(m.atlas.pages)
	if old := n * (cfg.Width / 128) * (cfg.Height / 128); old > legacyLimit {
		m.log.Warn("lightmaps exceed legacy limit", zap.Int("legacy_textures", old), zap.Int("limit", legacyLimit))
	}
	m.log.Info("built lightmaps", zap.Int("pages", n))
	return nil
}

func (m *Manager) setLightCoords(model *bsp.Model, surf *bsp.Surface) {
	cfg := m.atlas.cfg
	ti := surf.TexInfo
	for v := surf.FirstVert; v < surf.FirstVert+surf.NumVerts; v++ {
		vert := &model.Vertices[v]
		s := ti.TexCoord(vert.Pos, 0) - float32(surf.TextureMins[0]) + float32(surf.LightS*16) + 8
		t := ti.TexCoord(vert.Pos, 1) - float32(surf.TextureMins[1]) + float32(surf.LightT*16) + 8
		vert.LightST = [2]float32{s / float32(cfg.Width*16), t / float32(cfg.Height*16)}
	}
}

// BuildLightMap combines the surface's style layers and dynamic lights
// into RGBA8 texels written to dest, rows stride bytes apart.
func (m *Manager) BuildLightMap(surf *bsp.Surface, f *Frame, dest []byte, stride int) {
	surf.CachedDlight = surf.DLightFrame == f.Count

	smax, tmax := surf.LightmapSize()
	size := smax * tmax
	bp := m.block(size * 3)
	defer m.blocks.Put(bp)
	bl := *bp

	if m.hasLightData {
		clear(bl)
		samples := surf.Samples
		for maps := 0; maps < bsp.MaxLightmaps && surf.Styles[maps] != bsp.StyleNone; maps++ {
			if len(samples) < size*3 {
				break
			}
			scale := f.Styles.Values[surf.Styles[maps]]
			surf.CachedLight[maps] = scale
			accumulate(bl, samples[:size*3], uint32(scale))
			samples = samples[size*3:]
		}
		if surf.DLightFrame == f.Count && f.DLights != nil {
			addDynamicLights(surf, f.DLights, bl)
		}
	} else {
		for i := range bl {
			bl[i] = 0xFFFFFFFF
		}
	}

	store(dest, bl, smax, tmax, stride)
}

// accumulate adds samples scaled by an 8.8 factor.
func accumulate(bl []uint32, samples []byte, scale uint32) {
	for i, s := range samples {
		bl[i] += uint32(s) * scale
	}
}

// store drops the 8 fraction bits, saturates and writes opaque RGBA8.
func store(dest []byte, bl []uint32, width, height, stride int) {
	for t := 0; t < height; t++ {
		row := dest[t*stride : t*stride+width*BytesPerTexel]
		src := bl[t*width*3:]
		for s := 0; s < width; s++ {
			row[s*4+0] = byte(min(src[s*3+0]>>8, 255))
			row[s*4+1] = byte(min(src[s*3+1]>>8, 255))
			row[s*4+2] = byte(min(src[s*3+2]>>8, 255))
			row[s*4+3] = 255
		}
	}
}

// addDynamicLights splats every light flagged on the surface.
func addDynamicLights(surf *bsp.Surface, lights *lighting.DLights, bl []uint32) {
	smax, tmax := surf.LightmapSize()
	ti := surf.TexInfo
	plane := surf.Plane

	for lnum := range lights {
		if surf.DLightBits[lnum>>5]&(1<<(lnum&31)) == 0 {
			continue
		}
		l := &lights[lnum]

		dist := l.Origin.Dot(plane.Normal) - plane.Dist
		rad := l.Radius - abs(dist)
		minlight := l.MinLight
		if rad < minlight {
			continue
		}
		minlight = rad - minlight

		impact := l.Origin.Sub(plane.Normal.Mul(dist))
		local0 := ti.TexCoord(impact, 0) - float32(surf.TextureMins[0])
		local1 := ti.TexCoord(impact, 1) - float32(surf.TextureMins[1])

		cred := l.Color[0] * 256
		cgreen := l.Color[1] * 256
		cblue := l.Color[2] * 256

		i := 0
		for t := 0; t < tmax; t++ {
			td := int(local1 - float32(t*16))
			if td < 0 {
				td = -td
			}
			for s := 0; s < smax; s++ {
				sd := int(local0 - float32(s*16))
				if sd < 0 {
					sd = -sd
				}
				var d float32
				if sd > td {
					d = float32(sd + td>>1)
				} else {
					d = float32(td + sd>>1)
				}
				if d < minlight {
					brightness := rad - d
					bl[i+0] += uint32(int32(brightness * cred))
					bl[i+1] += uint32(int32(brightness * cgreen))
					bl[i+2] += uint32(int32(brightness * cblue))
				}
				i += 3
			}
		}
	}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// needsRebuild reports whether the surface's lighting changed since its
// lightmap was last built.
func needsRebuild(surf *bsp.Surface, f *Frame) bool {
	for maps := 0; maps < bsp.MaxLightmaps && surf.Styles[maps] != bsp.StyleNone; maps++ {
		if f.Styles.Values[surf.Styles[maps]] != surf.CachedLight[maps] {
			return true
		}
	}
	return surf.DLightFrame == f.Count || surf.CachedDlight
}

// RenderDynamicLightmaps rebuilds the surface's lightmap in its page when
// a style value changed or a dynamic light touches it now or did last
// time. It reports whether the lightmap was rebuilt. Surfaces on the same
// page may be rebuilt concurrently; the surface's light cache is only read
// and written under the page lock.
func (m *Manager) RenderDynamicLightmaps(surf *bsp.Surface, f *Frame) bool {
	if surf.Flags&bsp.SurfDrawTiled != 0 || surf.Lightmap < 0 || !f.Dynamic {
		return false
	}

	cfg := m.atlas.cfg
	p := m.atlas.pages[surf.Lightmap]

	p.mu.Lock()
	defer p.mu.Unlock()
	if !needsRebuild(surf, f) {
		return false
	}
	smax, tmax := surf.LightmapSize()
	p.modified.Store(true)
	p.grow(surf.LightS, surf.LightT, smax, tmax)
	off := (surf.LightT*cfg.Width + surf.LightS) * BytesPerTexel
	m.BuildLightMap(surf, f, p.Data[off:], cfg.Width*BytesPerTexel)
	return true
}

// PageMaterial returns the material handle of atlas page i, or NoMaterial
// when the page does not exist.
func (m *Manager) PageMaterial(i int) renderer.MaterialID {
	if i < 0 || i >= len(m.atlas.pages) {
		return renderer.NoMaterial
	}
	return m.atlas.pages[i].Material
}

// MarkModified flags the surface's page without rebuilding it.
func (m *Manager) MarkModified(surf *bsp.Surface) {
	if surf.Lightmap < 0 {
		return
	}
	m.atlas.pages[surf.Lightmap].SetModified()
}

// Upload sends every modified page to the backend. A page keeps its flag
// and dirty rect when its upload fails. Uploads are serialized.
func (m *Manager) Upload(b renderer.Backend, stats *renderer.Stats) error {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()

	cfg := m.atlas.cfg
	for i, p := range m.atlas.pages {
		if !p.modified.Load() {
			continue
		}
		if err := m.uploadPage(b, p, cfg); err != nil {
			return fmt.Errorf("lightmap page %d: %w", i, err)
		}
		if stats != nil {
			stats.DynamicLightmaps.Add(1)
		}
	}
	return nil
}

func (m *Manager) uploadPage(b renderer.Backend, p *Page, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u := renderer.MaterialUpdate{
		Material: p.Material,
		Data:     p.Data,
		Width:    cfg.Width,
		Height:   cfg.Height,
		X:        p.Rect.L,
		Y:        p.Rect.T,
		W:        p.Rect.W,
		H:        p.Rect.H,
	}
	if u.W == 0 || u.H == 0 {
		u.X, u.Y, u.W, u.H = 0, 0, cfg.Width, cfg.Height
	}
	if err := b.UpdateMaterial(&u); err != nil {
		return err
	}
	p.modified.Store(false)
	p.Rect = Rect{L: cfg.Width, T: cfg.Height}
	return nil
}
