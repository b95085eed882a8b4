// Package scene drives a frame of the hybrid renderer. It owns the level
// state, builds the per-frame task graph and runs it serially or on the
// task executor.
package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/batch"
	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/model"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/engine/task"
	"github.com/Faultbox/rtquake/internal/engine/texture"
	"github.com/Faultbox/rtquake/internal/engine/vis"
	"github.com/Faultbox/rtquake/internal/logger"
	"github.com/Faultbox/rtquake/pkg/formats"
)

// ErrNoLevel is returned when a frame is rendered before a level is loaded.
var ErrNoLevel = errors.New("scene: no level loaded")

// staticIDBase offsets the ids of static entities from the frame entities.
const staticIDBase = 1 << 24

// Config contains the renderer toggles and scheduling settings.
type Config struct {
	PVS          bool // PVS, frustum and backface culling
	ParallelMark bool // split marking into leaf, cull and chain tasks
	OldSkyLeaf   bool
	Dynamic      bool // dynamic lightmap updates
	GPULightmaps bool // defer world lightmap rebuilds to the update task
	FlatStyles   int
	LerpStyles   int
	DrawWorld    bool
	DrawEntities bool

	Fullbright   bool
	LightmapOnly bool
	Roughness    float32
	Metallicity  float32
	Alpha        batch.AlphaOptions

	Tasks          bool
	SIMD           bool // use the lane-batched marker
	Workers        int
	MaxTasks       int
	WorldContexts  int
	EntityContexts int

	Lightmap     lightmap.Config
	StaticLights lighting.StaticLightOptions
}

// DefaultConfig returns the default renderer configuration.
func DefaultConfig() Config {
	return Config{
		PVS:            true,
		ParallelMark:   true,
		Dynamic:        true,
		LerpStyles:     1,
		DrawWorld:      true,
		DrawEntities:   true,
		Roughness:      1,
		Alpha:          batch.DefaultAlphaOptions(),
		Tasks:          true,
		SIMD:           true,
		MaxTasks:       256,
		WorldContexts:  2,
		EntityContexts: 2,
		Lightmap:       lightmap.DefaultConfig(),
		StaticLights:   lighting.DefaultStaticLightOptions(),
	}
}

func (c *Config) parallelMark() bool {
	return c.Tasks && c.SIMD && c.ParallelMark
}

func (c *Config) worldContexts() int {
	if !c.Tasks {
		return 1
	}
	return max(c.WorldContexts, 1)
}

// Entity is a model instance placed in the world.
type Entity struct {
	Model  model.Model
	Origin mgl32.Vec3
	Angles mgl32.Vec3
	Frame  int
	Alpha  float32 // 0 for opaque
}

func (e *Entity) translucent() bool {
	return e.Alpha > 0 && e.Alpha < 1
}

// Particle is a single billboarded point.
type Particle struct {
	Origin mgl32.Vec3
	Color  uint32 // packed RGBA8
}

// Frame is the client state a view is rendered from. The slices are read by
// the frame's tasks and must not change until the frame finished.
type Frame struct {
	Time       float64
	Origin     mgl32.Vec3
	Angles     mgl32.Vec3
	FovX, FovY float32
	Entities   []Entity
	ViewModel  *Entity
	Particles  []Particle
	DLights    *lighting.DLights
}

type visEdict struct {
	ent *Entity
	id  uint32
}

// Level is the state of a loaded world.
type Level struct {
	World     *bsp.Model
	Statics   []Entity
	Teleports *batch.Teleports
	Lights    []lighting.StaticLight

	oracle *vis.Oracle
	scalar *vis.ScalarMarker
	lanes  *vis.BatchMarker

	vertices []renderer.Vertex

	submit   *batch.Batcher
	world    []*batch.Batcher
	entities []*batch.Batcher
	water    *batch.Batcher
	alpha    *batch.Batcher
	view     *batch.Batcher

	staticSeen []int // frame a static entity was last listed in

	// Entities sharing a brush model share its surfaces' dynamic light
	// marks and lightmap caches, so their draws are serialized.
	brushLocks map[*bsp.Model]*sync.Mutex
	otherBrush sync.Mutex
}

// brushLock returns the lock serializing draws of brush model m.
func (l *Level) brushLock(m *bsp.Model) *sync.Mutex {
	if mu, ok := l.brushLocks[m]; ok {
		return mu
	}
	return &l.otherBrush
}

// Scene renders frames of one level at a time.
type Scene struct {
	cfg     Config
	backend renderer.Backend
	exec    *task.Executor
	log     *zap.Logger

	textures  *texture.Manager
	lightmaps *lightmap.Manager
	styles    *lighting.Styles
	stats     renderer.Stats
	scratch   *renderer.Scratch
	particle  renderer.MaterialID

	level *Level

	// Written by RenderView and the setup task, read-only afterwards.
	frame      Frame
	light      lightmap.Frame
	view       vis.View
	forward    mgl32.Vec3
	right      mgl32.Vec3
	up         mgl32.Vec3
	frameCount int
	noLights   lighting.DLights

	visEdicts []visEdict
	ranges    [][2]int

	requireStaticSubmit bool
	pending             *task.Run
}

// New creates a scene drawing into b.
func New(cfg Config, b renderer.Backend) *Scene {
	s := &Scene{
		cfg:       cfg,
		backend:   b,
		exec:      task.NewExecutor(cfg.Workers),
		log:       logger.Named("scene"),
		textures:  texture.NewManager(),
		lightmaps: lightmap.NewManager(cfg.Lightmap),
		styles:    lighting.NewStyles(),
		scratch:   renderer.NewScratch(batch.MaxBatchVertices, batch.MaxBatchIndices),
	}
	s.styles.SetAll(lighting.QuakeStyles)
	s.particle = s.textures.Load("particle", 64, 64).Material
	return s
}

// Stats returns the counters of the last finished frame.
func (s *Scene) Stats() *renderer.Stats { return &s.stats }

// Level returns the loaded level, or nil.
func (s *Scene) Level() *Level { return s.level }

// Textures returns the texture manager.
func (s *Scene) Textures() *texture.Manager { return s.textures }

// Lightmaps returns the lightmap manager.
func (s *Scene) Lightmaps() *lightmap.Manager { return s.lightmaps }

// LoadLevel makes world the current level. Statics are entities linked
// into the leaves containing their origins; they are drawn whenever one
// of those leaves is visible. A previous frame is finished first.
func (s *Scene) LoadLevel(world *bsp.Model, statics []Entity) error {
	if err := s.Finish(); err != nil {
		s.log.Warn("previous frame failed", zap.Error(err))
	}

	if s.level != nil {
		s.textures.ReleaseModel(s.level.World)
	}
	logger.ResetOnce()
	s.textures.RegisterModel(world)
	world.AllocChains(bsp.NumChains(max(s.cfg.EntityContexts, 1)))

	s.light = lightmap.Frame{Styles: s.styles, Dynamic: s.cfg.Dynamic}
	if err := s.lightmaps.BuildLightmaps([]*bsp.Model{world}, &s.light); err != nil {
		return fmt.Errorf("level %s: %w", world.Name, err)
	}

	ents, err := formats.ParseEntities(world.Entities)
	if err != nil {
		s.log.Warn("entity lump is malformed, using the entities before the error",
			zap.String("level", world.Name), zap.Error(err))
	}

	l := &Level{
		World:      world,
		Statics:    statics,
		Teleports:  batch.ParseTeleports(ents, world),
		Lights:     lighting.ParseStaticLights(ents, s.cfg.StaticLights),
		vertices:   batch.BrushVertices(world),
		staticSeen: make([]int, len(statics)),
		brushLocks: make(map[*bsp.Model]*sync.Mutex, len(world.Submodels)),
	}
	for _, sub := range world.Submodels {
		l.brushLocks[sub] = &sync.Mutex{}
	}
	for i := range l.staticSeen {
		l.staticSeen[i] = -1
	}

	l.oracle = vis.NewOracle(world, vis.Hooks{
		Lightmaps: s.lightmaps,
		Light:     &s.light,
		Stats:     &s.stats,
		Efrags:    efragSink{s},
	})
	l.scalar = vis.NewScalarMarker(l.oracle)
	l.lanes = vis.NewBatchMarker(l.oracle)

	target := batch.Target{
		Backend:   s.backend,
		World:     world,
		Vertices:  l.vertices,
		Lightmaps: s.lightmaps,
		Teleports: l.Teleports,
		Stats:     &s.stats,
	}
	opts := s.batchOptions()
	l.submit = batch.NewBatcher(target, opts)
	opts.StaticSubmitted = true
	newBatchers := func(n int) []*batch.Batcher {
		bs := make([]*batch.Batcher, n)
		for i := range bs {
			bs[i] = batch.NewBatcher(target, opts)
		}
		return bs
	}
	l.world = newBatchers(max(s.cfg.WorldContexts, 1))
	l.entities = newBatchers(max(s.cfg.EntityContexts, 1))
	l.water = batch.NewBatcher(target, opts)
	l.alpha = batch.NewBatcher(target, opts)
	l.view = batch.NewBatcher(target, opts)

	linkStatics(world, statics)

	s.level = l
	s.requireStaticSubmit = true
	hits, misses := s.textures.Stats()
	s.log.Info("level loaded",
		zap.String("level", world.Name),
		zap.Int("surfaces", len(world.Surfaces)),
		zap.Int("leafs", world.NumLeafs),
		zap.Int("lightmap_pages", len(s.lightmaps.Atlas().Pages())),
		zap.Int("teleports", l.Teleports.Len()),
		zap.Int("static_lights", len(l.Lights)),
		zap.Int("statics", len(statics)),
		zap.Int("textures", s.textures.Active()),
		zap.Int("texture_hits", hits),
		zap.Int("texture_misses", misses))
	return nil
}

func (s *Scene) batchOptions() batch.Options {
	return batch.Options{
		Fullbright:   s.cfg.Fullbright,
		LightmapOnly: s.cfg.LightmapOnly,
		Roughness:    s.cfg.Roughness,
		Metallicity:  s.cfg.Metallicity,
		Grey:         s.textures.Grey().Material,
		Alpha:        s.cfg.Alpha,
	}
}

// linkStatics stores each static entity in the leaf holding its origin.
// Entities outside every leaf are never drawn.
func linkStatics(world *bsp.Model, statics []Entity) {
	for i := range world.Leafs {
		world.Leafs[i].Efrags = world.Leafs[i].Efrags[:0]
	}
	for i := range statics {
		leaf := world.PointInLeaf(statics[i].Origin)
		if leaf == 0 {
			continue
		}
		world.Leafs[leaf].Efrags = append(world.Leafs[leaf].Efrags, i)
	}
}

// efragSink lists the static entities of visible leaves. A static linked
// into several visible leaves is listed once.
type efragSink struct{ s *Scene }

func (e efragSink) StoreEfrags(_ int, efrags []int) {
	s := e.s
	l := s.level
	for _, i := range efrags {
		if i < 0 || i >= len(l.Statics) || l.staticSeen[i] == s.frameCount {
			continue
		}
		l.staticSeen[i] = s.frameCount
		s.visEdicts = append(s.visEdicts, visEdict{ent: &l.Statics[i], id: uint32(staticIDBase + i)})
	}
}

// IsFatal reports whether err leaves the renderer unable to continue.
// Backend upload failures are not fatal.
func IsFatal(err error) bool {
	return errors.Is(err, lightmap.ErrAtlasFull) ||
		errors.Is(err, lightmap.ErrBlockTooLarge) ||
		errors.Is(err, task.ErrPoolExhausted) ||
		errors.Is(err, task.ErrCycle) ||
		errors.Is(err, texture.ErrBrokenAnimCycle)
}
