package batch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
	"github.com/Faultbox/rtquake/pkg/formats"
	"github.com/Faultbox/rtquake/pkg/math"
)

// MaxPortals is the number of teleports the backend accepts.
const MaxPortals = 62

// portalEyeHeight raises the exit view above the destination origin.
const portalEyeHeight = 64

// Teleport is one trigger_teleport linked to its destination.
type Teleport struct {
	In     mgl32.Vec3 // centre of the trigger volume
	Out    mgl32.Vec3
	OutYaw float32
}

// Teleports is the portal list of a level. It is built at level load and
// read-only afterwards.
type Teleports struct {
	List []Teleport
}

// ParseTeleports links every trigger_teleport to the first
// info_teleport_destination whose targetname matches its target. Triggers
// without a destination are dropped.
func ParseTeleports(ents []formats.Entity, world *bsp.Model) *Teleports {
	tp := &Teleports{}
	for i := range ents {
		trig := &ents[i]
		if trig.Classname() != "trigger_teleport" {
			continue
		}
		target, ok := trig.Get("target")
		if !ok {
			continue
		}
		dest := findDestination(ents, target)
		if dest == nil {
			continue
		}

		var t Teleport
		if sub := triggerModel(trig, world); sub != nil {
			t.In = sub.Mins.Add(sub.Maxs).Mul(0.5)
		}
		t.Out, _ = dest.Vec3("origin")
		t.OutYaw, _ = dest.Float("angle")

		if len(tp.List) == MaxPortals {
			logger.WarnOnce("batch.portals", "too many teleports, extra ones are ignored",
				zap.Int("max", MaxPortals))
			break
		}
		tp.List = append(tp.List, t)
	}
	return tp
}

func findDestination(ents []formats.Entity, target string) *formats.Entity {
	for i := range ents {
		e := &ents[i]
		if e.Classname() != "info_teleport_destination" {
			continue
		}
		if name, ok := e.Get("targetname"); ok && name == target {
			return e
		}
	}
	return nil
}

// triggerModel resolves a "*N" model reference to the world's submodel.
func triggerModel(e *formats.Entity, world *bsp.Model) *bsp.Model {
	name, ok := e.Get("model")
	if !ok || world == nil || !strings.HasPrefix(name, "*") {
		return nil
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return nil
	}
	return world.Submodel(n)
}

// Len returns the number of portals.
func (tp *Teleports) Len() int { return len(tp.List) }

// Nearest returns the index of the portal whose entrance is closest to the
// centre of the transformed vertices.
func (tp *Teleports) Nearest(verts []renderer.Vertex, tr *renderer.Transform) (int, bool) {
	if len(tp.List) == 0 || len(verts) == 0 {
		return 0, false
	}
	mins, maxs := verts[0].Position, verts[0].Position
	for _, v := range verts[1:] {
		for k := 0; k < 3; k++ {
			mins[k] = min(mins[k], v.Position[k])
			maxs[k] = max(maxs[k], v.Position[k])
		}
	}
	center := tr.Apply(mins.Add(maxs).Mul(0.5))

	best, bestDist := -1, float32(0)
	for i := range tp.List {
		d := tp.List[i].In.Sub(center)
		if dist := d.Dot(d); best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, true
}

// Upload sends every portal to the backend. The exit view looks along the
// destination yaw from eye height above its origin.
func (tp *Teleports) Upload(b renderer.Backend) error {
	for i := range tp.List {
		t := &tp.List[i]
		forward, _, up := math.AngleVectors(mgl32.Vec3{0, t.OutYaw, 0})
		p := renderer.Portal{
			Index:        i,
			In:           t.In,
			Out:          t.Out.Add(mgl32.Vec3{0, 0, portalEyeHeight}),
			OutDirection: forward,
			OutUp:        up,
		}
		if err := b.UploadPortal(&p); err != nil {
			return fmt.Errorf("portal %d: %w", i, err)
		}
	}
	return nil
}
