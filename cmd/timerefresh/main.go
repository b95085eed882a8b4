// Package main renders a fixed 360 degree turn of a synthetic level and
// reports the frame rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/config"
	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/lighting"
	"github.com/Faultbox/rtquake/internal/engine/model"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/engine/scene"
	"github.com/Faultbox/rtquake/internal/logger"
)

var (
	flagFrames = flag.Int("frames", 128, "Frames to render")
	flagCells  = flag.Int("cells", 64, "Cells of the synthetic level")
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== rtquake timerefresh ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	opts := bsp.DefaultGridOptions()
	opts.Cells = *flagCells
	opts.Doors = 4
	opts.Teleport = true
	opts.WaterCell = 2
	opts.SkyCell = 6
	world := bsp.NewGridLevel(opts)

	rec := renderer.NewRecorder()
	s := scene.New(scene.ConfigFrom(cfg), rec)
	if err := s.LoadLevel(world, torches(opts)); err != nil {
		logger.Fatal("failed to load level", zap.Error(err))
	}

	frame := &scene.Frame{
		Origin:   mgl32.Vec3{opts.CellSize / 2, opts.CellSize / 2, opts.CellSize / 2},
		FovX:     90,
		FovY:     73.74,
		Entities: doors(world),
		DLights:  &lighting.DLights{},
	}
	frame.DLights[0] = lighting.DLight{
		Origin: frame.Origin,
		Radius: 250,
		Color:  mgl32.Vec3{1, 0.8, 0.6},
		Die:    1e9,
	}

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < *flagFrames; i++ {
		frame.Angles = mgl32.Vec3{0, float32(i) / float32(*flagFrames) * 360, 0}
		frame.Time = time.Since(start).Seconds()

		err := s.RenderView(ctx, frame)
		if err == nil {
			err = s.Finish()
		}
		if err != nil {
			if scene.IsFatal(err) {
				logger.Fatal("frame failed", zap.Int("frame", i), zap.Error(err))
			}
			logger.Warn("frame failed", zap.Int("frame", i), zap.Error(err))
		}
		rec.BeginFrame()
	}
	elapsed := time.Since(start).Seconds()

	logger.Info("timerefresh done",
		zap.Int("frames", *flagFrames),
		zap.Float64("seconds", elapsed),
		zap.Float64("fps", float64(*flagFrames)/elapsed))
	up := rec.Uploads()
	logger.Info("geometry uploads",
		zap.Int("brush", up[renderer.TagBrush]),
		zap.Int("alias", up[renderer.TagAlias]),
		zap.Int("custom", up[renderer.TagCustom]))
	fmt.Printf("%f seconds (%f fps)\n", elapsed, float64(*flagFrames)/elapsed)
}

// doors places every brush submodel of the level as an entity.
func doors(world *bsp.Model) []scene.Entity {
	ents := make([]scene.Entity, 0, len(world.Submodels))
	for _, sub := range world.Submodels {
		ents = append(ents, scene.Entity{Model: &model.Brush{BSP: sub}})
	}
	return ents
}

// torches puts a flame sprite in every other cell.
func torches(opts bsp.GridOptions) []scene.Entity {
	flame := &model.Sprite{ModelName: "progs/flame.spr", Frames: []model.SpriteFrame{
		{Width: 16, Height: 32, Up: 16, Down: -16, Left: -8, Right: 8},
	}}
	var ents []scene.Entity
	for i := 0; i < opts.Cells; i += 2 {
		ents = append(ents, scene.Entity{
			Model:  flame,
			Origin: mgl32.Vec3{(float32(i) + 0.5) * opts.CellSize, 16, opts.CellSize / 2},
		})
	}
	return ents
}
