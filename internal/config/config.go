// Package config handles renderer configuration loading and management.
package config

// Config holds all renderer settings.
type Config struct {
	Render   RenderConfig   `yaml:"render"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Lightmap LightmapConfig `yaml:"lightmap"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RenderConfig holds the world renderer toggles.
type RenderConfig struct {
	PVSCulling        bool    `yaml:"pvs_culling"`         // PVS + frustum + backface culling
	ParallelMark      bool    `yaml:"parallel_mark"`       // split marking into leaf/cull/chain tasks
	OldSkyLeaf        bool    `yaml:"old_sky_leaf"`        // mark surfaces of sky leaves too
	Dynamic           bool    `yaml:"dynamic"`             // dynamic lightmap updates
	GPULightmapUpdate bool    `yaml:"gpu_lightmap_update"` // defer lightmap rebuilds to the update task
	FlatLightStyles   int     `yaml:"flat_light_styles"`   // 0 animated, 1 average, 2 peak
	LerpLightStyles   int     `yaml:"lerp_light_styles"`   // 0 off, 1 small steps, 2 always
	DrawWorld         bool    `yaml:"draw_world"`
	Fullbright        bool    `yaml:"fullbright"`
	LightmapOnly      bool    `yaml:"lightmap_only"`
	DrawEntities      bool    `yaml:"draw_entities"`
	BrushRoughness    float32 `yaml:"brush_roughness"`
	BrushMetallicity  float32 `yaml:"brush_metallicity"`
	WaterAlpha        float32 `yaml:"water_alpha"`
	LavaAlpha         float32 `yaml:"lava_alpha"`
	SlimeAlpha        float32 `yaml:"slime_alpha"`
	TeleAlpha         float32 `yaml:"tele_alpha"`
}

// TasksConfig holds frame scheduling settings.
type TasksConfig struct {
	Enabled        bool `yaml:"enabled"`
	SIMD           bool `yaml:"simd"` // lane-batched marker available
	Workers        int  `yaml:"workers"`
	MaxTasks       int  `yaml:"max_tasks"`
	WorldContexts  int  `yaml:"world_contexts"`
	EntityContexts int  `yaml:"entity_contexts"`
}

// LightmapConfig holds lightmap atlas dimensions.
type LightmapConfig struct {
	BlockWidth  int `yaml:"block_width"`
	BlockHeight int `yaml:"block_height"`
	ShelfHeight int `yaml:"shelf_height"`
	MaxPages    int `yaml:"max_pages"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			PVSCulling:        true,
			ParallelMark:      true,
			OldSkyLeaf:        false,
			Dynamic:           true,
			GPULightmapUpdate: false,
			FlatLightStyles:   0,
			LerpLightStyles:   1,
			DrawWorld:         true,
			DrawEntities:      true,
			BrushRoughness:    1.0,
			BrushMetallicity:  0.0,
			WaterAlpha:        1.0,
			LavaAlpha:         0,
			SlimeAlpha:        0,
			TeleAlpha:         0,
		},
		Tasks: TasksConfig{
			Enabled:        true,
			SIMD:           true,
			Workers:        0, // 0 means runtime.NumCPU
			MaxTasks:       256,
			WorldContexts:  2,
			EntityContexts: 2,
		},
		Lightmap: LightmapConfig{
			BlockWidth:  1024,
			BlockHeight: 1024,
			ShelfHeight: 256,
			MaxPages:    256,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
