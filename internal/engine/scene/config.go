package scene

import (
	"github.com/Faultbox/rtquake/internal/config"
	"github.com/Faultbox/rtquake/internal/engine/batch"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
)

// ConfigFrom maps the loaded settings onto a scene configuration.
func ConfigFrom(c *config.Config) Config {
	r, t, lm := &c.Render, &c.Tasks, &c.Lightmap
	return Config{
		PVS:          r.PVSCulling,
		ParallelMark: r.ParallelMark,
		OldSkyLeaf:   r.OldSkyLeaf,
		Dynamic:      r.Dynamic,
		GPULightmaps: r.GPULightmapUpdate,
		FlatStyles:   r.FlatLightStyles,
		LerpStyles:   r.LerpLightStyles,
		DrawWorld:    r.DrawWorld,
		DrawEntities: r.DrawEntities,
		Fullbright:   r.Fullbright,
		LightmapOnly: r.LightmapOnly,
		Roughness:    r.BrushRoughness,
		Metallicity:  r.BrushMetallicity,
		Alpha: batch.AlphaOptions{
			Water:    r.WaterAlpha,
			Lava:     r.LavaAlpha,
			Slime:    r.SlimeAlpha,
			Teleport: r.TeleAlpha,
		},

		Tasks:          t.Enabled,
		SIMD:           t.SIMD,
		Workers:        t.Workers,
		MaxTasks:       t.MaxTasks,
		WorldContexts:  t.WorldContexts,
		EntityContexts: t.EntityContexts,

		Lightmap: lightmap.Config{
			Width:       lm.BlockWidth,
			Height:      lm.BlockHeight,
			ShelfHeight: lm.ShelfHeight,
			MaxPages:    lm.MaxPages,
		},
		StaticLights: lighting.DefaultStaticLightOptions(),
	}
}
