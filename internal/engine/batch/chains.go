package batch

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/engine/texture"
)

// AlphaOptions are the liquid opacities. Zero lava, slime and teleport
// values fall back to Water.
type AlphaOptions struct {
	Water    float32
	Lava     float32
	Slime    float32
	Teleport float32
}

// DefaultAlphaOptions returns opaque liquids.
func DefaultAlphaOptions() AlphaOptions {
	return AlphaOptions{Water: 1}
}

// WaterAlpha returns the opacity of a liquid surface with the given flags
// drawn by an entity with alpha entAlpha (0 for the default). Liquids are
// opaque when only lightmaps are drawn.
func WaterAlpha(flags int, entAlpha float32, opts *Options) float32 {
	if opts.LightmapOnly {
		return 1
	}
	if entAlpha > 0 {
		return entAlpha
	}
	o := opts.Alpha
	pick := func(v float32) float32 {
		if v > 0 {
			return v
		}
		return o.Water
	}
	switch {
	case flags&bsp.SurfDrawLava != 0:
		return pick(o.Lava)
	case flags&bsp.SurfDrawTele != 0:
		return pick(o.Teleport)
	case flags&bsp.SurfDrawSlime != 0:
		return pick(o.Slime)
	}
	return o.Water
}

// Entity is the instance a chain is drawn for. A nil *Entity is the world.
type Entity struct {
	ID        uint32
	Transform renderer.Transform
	Alpha     float32 // 0 for the default
	Frame     int
}

var worldEntity = Entity{ID: renderer.EntityWorld, Transform: renderer.IdentityTransform}

// alphaDelta is the smallest opacity change that breaks a liquid batch.
const alphaDelta = 0.001

const skipMultitexture = bsp.SurfDrawTurb | bsp.SurfDrawTiled | bsp.SurfNoTexture

func (b *Batcher) lightmapFor(surf *bsp.Surface) renderer.MaterialID {
	if b.lightmaps != nil && surf.Lightmap >= 0 {
		if id := b.lightmaps.PageMaterial(surf.Lightmap); id != renderer.NoMaterial {
			return id
		}
	}
	return b.opts.Grey
}

func (b *Batcher) addPasses(start int) {
	b.count(func(st *renderer.Stats) { st.BrushPasses.Add(int64(b.passes - start)) })
}

// DrawTextureChains batches the lit, non-liquid surfaces of chain c for
// textures [texStart, texEnd) of model. A texture is skipped when the first
// surface of its chain is a liquid, sky or untextured surface. t is the
// client time used for texture animation.
func (b *Batcher) DrawTextureChains(model *bsp.Model, ent *Entity, c bsp.Chain, texStart, texEnd int, t float64) error {
	if ent == nil {
		ent = &worldEntity
	}
	alpha := float32(1)
	if ent.Alpha > 0 {
		alpha = ent.Alpha
	}
	start := b.passes
	defer b.addPasses(start)

	texEnd = min(texEnd, len(model.Textures))
	for i := texStart; i < texEnd; i++ {
		tex := model.Textures[i]
		if tex == nil || tex.ChainLen(c) == 0 {
			continue
		}
		chain := tex.Chains[c]
		first := &model.Surfaces[chain[0]]
		if first.Flags&skipMultitexture != 0 {
			continue
		}

		b.Clear()
		frame, err := texture.Animate(model, i, ent.Frame, t)
		if err != nil {
			return err
		}
		state := SurfState{
			Entity:    ent.ID,
			Model:     model,
			Transform: ent.Transform,
			Diffuse:   model.Textures[frame].Material,
			AlphaTest: first.Flags&bsp.SurfDrawFence != 0,
			Alpha:     alpha,
		}
		lastLightmap := renderer.NoMaterial
		for k, si := range chain {
			state.Surf = si
			state.Lightmap = b.lightmapFor(&model.Surfaces[si])
			if k > 0 && state.Lightmap != lastLightmap {
				if err := b.Flush(); err != nil {
					return err
				}
			}
			if err := b.BatchSurface(&state); err != nil {
				return err
			}
			lastLightmap = state.Lightmap
		}
		if err := b.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// DrawTextureChainsWater batches the liquid surfaces of chain c. Batches
// break when the lightmap or the opacity changes.
func (b *Batcher) DrawTextureChainsWater(model *bsp.Model, ent *Entity, c bsp.Chain) error {
	if ent == nil {
		ent = &worldEntity
	}
	start := b.passes
	defer b.addPasses(start)

	for _, tex := range model.Textures {
		if tex == nil || tex.ChainLen(c) == 0 {
			continue
		}
		chain := tex.Chains[c]
		if model.Surfaces[chain[0]].Flags&bsp.SurfDrawTurb == 0 {
			continue
		}

		b.Clear()
		if model != b.world {
			// submodel liquids are not marked by the world pass
			tex.UpdateWarp.Store(true)
		}
		var last SurfState
		for k, si := range chain {
			surf := &model.Surfaces[si]
			state := SurfState{
				Entity:    ent.ID,
				Model:     model,
				Surf:      si,
				Transform: ent.Transform,
				Diffuse:   tex.Material,
				Lightmap:  b.lightmapFor(surf),
				Alpha:     WaterAlpha(surf.Flags, ent.Alpha, &b.opts),
				Warp:      true,
				Water:     surf.Flags&bsp.SurfDrawWater != 0,
				Teleport:  surf.Flags&bsp.SurfDrawTele != 0,
			}
			if k > 0 && (state.Lightmap != last.Lightmap || math32.Abs(state.Alpha-last.Alpha) >= alphaDelta) {
				if err := b.Flush(); err != nil {
					return err
				}
			}
			if err := b.BatchSurface(&state); err != nil {
				return err
			}
			last = state
		}
		if err := b.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WorldRanges splits the world's textures into n contiguous ranges holding
// roughly equal numbers of chained surfaces, one per world draw task. Only
// textures drawn by DrawTextureChains count. Ranges past the last assigned
// texture are empty. With n <= 1 the single range covers every texture.
func WorldRanges(world *bsp.Model, n int) [][2]int {
	numTextures := len(world.Textures)
	if n <= 1 {
		return [][2]int{{0, numTextures}}
	}
	ranges := make([][2]int, n)

	counted := func(tex *bsp.Texture) bool {
		if tex == nil || tex.ChainLen(bsp.ChainWorld) == 0 {
			return false
		}
		first := tex.Chains[bsp.ChainWorld][0]
		return world.Surfaces[first].Flags&skipMultitexture == 0
	}

	total := 0
	for _, tex := range world.Textures {
		if counted(tex) {
			total += tex.ChainLen(bsp.ChainWorld)
		}
	}
	perRange := (total + n - 1) / n

	cur, assigned := 0, 0
	for i, tex := range world.Textures {
		if !counted(tex) {
			continue
		}
		ranges[cur][1] = i + 1
		assigned += tex.ChainLen(bsp.ChainWorld)
		if assigned >= perRange {
			cur++
			if cur == n {
				break
			}
			ranges[cur][0] = i + 1
			assigned = 0
		}
	}
	for r := range ranges {
		ranges[r][1] = max(ranges[r][1], ranges[r][0])
	}
	return ranges
}
