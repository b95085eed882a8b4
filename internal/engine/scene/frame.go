package scene

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/batch"
	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/lightmap"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/engine/task"
	"github.com/Faultbox/rtquake/internal/engine/vis"
	"github.com/Faultbox/rtquake/pkg/math"
)

// RenderView renders one frame. The previous frame is joined first. With
// tasks enabled the frame runs in the background and RenderView returns
// once it is submitted; call Finish to wait for it. Without tasks the
// frame runs to completion in the graph's insertion order.
func (s *Scene) RenderView(ctx context.Context, f *Frame) error {
	if s.level == nil {
		return ErrNoLevel
	}
	if err := s.Finish(); err != nil {
		return err
	}
	s.frame = *f

	g := s.buildGraph()
	if !s.cfg.Tasks {
		return g.RunSerial()
	}
	run, err := s.exec.Submit(ctx, g)
	if err != nil {
		return err
	}
	s.pending = run
	return nil
}

// Finish waits for the frame in flight, if any, and returns its error.
func (s *Scene) Finish() error {
	if s.pending == nil {
		return nil
	}
	err := s.pending.Wait()
	s.pending = nil
	return err
}

// Graph task names.
const (
	TaskSetup           = "view_setup"
	TaskPrepare         = "mark_prepare"
	TaskMark            = "mark_surfaces"
	TaskMarkLeafs       = "mark_leafs"
	TaskStoreEfrags     = "store_efrags"
	TaskCullSurfaces    = "cull_surfaces"
	TaskChainSurfaces   = "chain_surfaces"
	TaskDrawWorld       = "draw_world"
	TaskSkyAndWater     = "draw_sky_and_water"
	TaskDrawEntities    = "draw_entities"
	TaskAlphaEntities   = "draw_alpha_entities"
	TaskParticles       = "draw_particles"
	TaskViewModel       = "draw_view_model"
	TaskUpdateLightmaps = "update_lightmaps"
	TaskDone            = "draw_done"
)

// buildGraph wires the frame's tasks. They are added in the order the
// serial path runs them.
func (s *Scene) buildGraph() *task.Graph {
	l := s.level
	g := task.NewGraph(s.cfg.MaxTasks)

	setup := g.Add(TaskSetup, func(int) error { return s.setupView() })
	prepare := g.Add(TaskPrepare, func(int) error {
		l.oracle.Prepare(s.view, s.visOptions())
		return nil
	})
	g.Depend(setup, prepare)

	var store, cull, chain task.ID
	if s.cfg.parallelMark() {
		leafs := g.AddIndexed(TaskMarkLeafs, l.lanes.LeafBatches(), func(i int) error {
			l.lanes.MarkLeafs(i)
			return nil
		})
		store = g.Add(TaskStoreEfrags, func(int) error {
			l.lanes.StoreEfrags()
			return nil
		})
		cull = g.AddIndexed(TaskCullSurfaces, l.lanes.SurfaceBatches(), func(i int) error {
			l.lanes.CullSurfaces(i)
			return nil
		})
		chain = g.Add(TaskChainSurfaces, func(int) error {
			l.lanes.ChainSurfaces()
			s.ranges = batch.WorldRanges(l.World, s.cfg.worldContexts())
			return nil
		})
		g.Depend(prepare, leafs)
		g.Depend(leafs, store)
		g.Depend(leafs, cull)
		g.Depend(cull, chain)
	} else {
		// one pass stores efrags, culls and chains
		mark := g.Add(TaskMark, func(int) error {
			var m vis.Marker = l.scalar
			if s.cfg.SIMD {
				m = l.lanes
			}
			m.Mark()
			s.ranges = batch.WorldRanges(l.World, s.cfg.worldContexts())
			return nil
		})
		g.Depend(prepare, mark)
		store, cull, chain = mark, mark, mark
	}

	world := g.AddIndexed(TaskDrawWorld, s.cfg.worldContexts(), s.drawWorld)
	g.Depend(chain, world)

	water := g.Add(TaskSkyAndWater, func(int) error { return s.drawSkyAndWater() })
	g.Depend(chain, water)
	g.Depend(store, water)

	entities := g.AddIndexed(TaskDrawEntities, max(s.cfg.EntityContexts, 1), s.drawEntities)
	g.Depend(store, entities)

	alpha := g.Add(TaskAlphaEntities, func(int) error { return s.drawAlphaEntities() })
	g.Depend(store, alpha)

	particles := g.Add(TaskParticles, func(int) error { return s.drawParticles() })
	g.Depend(setup, particles)

	viewModel := g.Add(TaskViewModel, func(int) error { return s.drawViewModel() })
	g.Depend(setup, viewModel)

	update := g.Add(TaskUpdateLightmaps, func(int) error {
		l.oracle.UpdateLightmaps()
		return nil
	})
	g.Depend(cull, update)

	done := g.Add(TaskDone, func(int) error { return s.frameDone() })
	for _, id := range []task.ID{world, water, entities, alpha, particles, viewModel, update} {
		g.Depend(id, done)
	}
	return g
}

func (s *Scene) visOptions() vis.Options {
	return vis.Options{
		PVS:          s.cfg.PVS,
		OldSkyLeaf:   s.cfg.OldSkyLeaf,
		GPULightmaps: s.cfg.GPULightmaps,
		Parallel:     s.cfg.parallelMark(),
	}
}

// setupView prepares the per-frame state every later task reads: light
// styles, the lightmap frame, the view frustum, dynamic light marks and
// the backend's lights and portals.
func (s *Scene) setupView() error {
	l := s.level
	f := &s.frame

	s.stats.Reset()
	s.scratch.Reset()
	s.frameCount++

	dlights := f.DLights
	if dlights == nil {
		dlights = &s.noLights
	}
	s.styles.Animate(f.Time, lighting.AnimateOptions{
		Flat:      s.cfg.FlatStyles,
		Lerp:      s.cfg.LerpStyles,
		GPUUpdate: s.cfg.GPULightmaps,
	})
	s.light = lightmap.Frame{
		Count:   s.frameCount,
		Styles:  s.styles,
		DLights: dlights,
		Dynamic: s.cfg.Dynamic,
	}

	s.forward, s.right, s.up = math.AngleVectors(f.Angles)
	s.view = vis.View{
		Origin:  f.Origin,
		Frustum: math.NewFrustum(f.Origin, s.forward, s.right, s.up, f.FovX, f.FovY),
	}
	lighting.PushDlights(l.World, dlights, f.Time, s.frameCount)

	if s.requireStaticSubmit {
		if err := s.submitStatic(); err != nil {
			return err
		}
	}

	if err := lighting.UploadStaticLights(s.backend, l.Lights, s.styles, s.cfg.StaticLights); err != nil {
		return fmt.Errorf("static lights: %w", err)
	}
	for i := range dlights {
		d := &dlights[i]
		if !d.Alive(f.Time) {
			continue
		}
		err := s.backend.UploadLight(&renderer.Light{
			UniqueID: renderer.CustomID(uint32(i)),
			Position: d.Origin,
			Color:    d.Color,
			Radius:   d.Radius,
		})
		if err != nil {
			return fmt.Errorf("dynamic light %d: %w", i, err)
		}
	}
	if err := l.Teleports.Upload(s.backend); err != nil {
		return err
	}

	s.visEdicts = s.visEdicts[:0]
	for i := range f.Entities {
		s.visEdicts = append(s.visEdicts, visEdict{ent: &f.Entities[i], id: uint32(i)})
	}
	return nil
}

// submitStatic starts a new backend scene holding every opaque world
// surface. It runs once per level.
func (s *Scene) submitStatic() error {
	l := s.level
	w := l.World

	if err := s.backend.StartNewScene(); err != nil {
		return fmt.Errorf("start scene: %w", err)
	}
	w.ClearChains(bsp.ChainWorld)
	for i := w.FirstModelSurface; i < w.FirstModelSurface+w.NumModelSurfaces; i++ {
		w.ChainSurface(i, bsp.ChainWorld)
	}
	defer w.ClearChains(bsp.ChainWorld)

	if err := l.submit.DrawTextureChains(w, nil, bsp.ChainWorld, 0, len(w.Textures), s.frame.Time); err != nil {
		return fmt.Errorf("static world: %w", err)
	}
	if err := s.backend.SubmitStaticGeometries(); err != nil {
		return fmt.Errorf("submit static: %w", err)
	}
	s.requireStaticSubmit = false
	s.log.Debug("static world submitted", zap.String("level", w.Name))
	return nil
}

// frameDone uploads the lightmap pages changed this frame and resets the
// warp flags of the liquids drawn.
func (s *Scene) frameDone() error {
	l := s.level
	for _, tex := range l.World.Textures {
		if tex != nil && tex.UpdateWarp.Swap(false) {
			s.stats.WarpTextures.Add(1)
		}
	}
	if err := s.lightmaps.Upload(s.backend, &s.stats); err != nil {
		return err
	}
	s.log.Debug("frame done", append(s.stats.Fields(),
		zap.Int("frame", s.frameCount),
		zap.Stringer("pvs", l.oracle.Source()),
		zap.Int("visframe", l.oracle.VisFrame()))...)
	return nil
}
