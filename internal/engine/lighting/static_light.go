package lighting

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
	"github.com/Faultbox/rtquake/internal/logger"
	"github.com/Faultbox/rtquake/pkg/formats"
)

// unitsPerMeter converts metric distances to world units.
const unitsPerMeter = 39.37

// staticLightIDBase keeps static light IDs clear of other custom objects.
const staticLightIDBase = 0xFFFF

// POIOptions selects which entity classes count as points of interest.
type POIOptions struct {
	Trigger bool
	Func    bool
	Weapon  bool
	Powerup bool
	Armor   bool
	Key     bool
	Health  bool
	Ammo    bool

	Dist      float32 // world units
	DistSuper float32 // world units, for triggers, funcs and keys
}

// StaticLightOptions controls which light entities become backend lights.
type StaticLightOptions struct {
	Normalize             float32 // intensity divisor, below 0.5 disables static lights
	DefaultIntensity      float32
	DefaultModelIntensity float32
	Radius                float32
	Threshold             float32 // minimum intensity, negative accepts none by intensity
	POI                   POIOptions
}

// DefaultStaticLightOptions returns the options used by the tools.
func DefaultStaticLightOptions() StaticLightOptions {
	return StaticLightOptions{
		Normalize:             200,
		DefaultIntensity:      300,
		DefaultModelIntensity: 200,
		Radius:                0.1 * unitsPerMeter,
		Threshold:             250,
		POI: POIOptions{
			Trigger: true, Func: true, Weapon: true, Powerup: true,
			Armor: true, Key: true, Health: true, Ammo: true,
			Dist:      3 * unitsPerMeter,
			DistSuper: 5 * unitsPerMeter,
		},
	}
}

// PointOfInterest is an entity that lights near it should not be culled.
type PointOfInterest struct {
	Origin mgl32.Vec3
	Super  bool // uses the looser distance threshold
}

// StaticLight is a light entity from the entity lump.
type StaticLight struct {
	Origin       mgl32.Vec3
	Intensity    float32
	HasIntensity bool
	WithModel    bool // light_* classes carry a flame or fluoro model
	Offset       bool // raise the light out of its model
	Style        int
	HasStyle     bool
	NearPOI      bool
}

func classifyPOI(classname string, opts *POIOptions) (poi, super bool) {
	if opts.Trigger && (strings.HasPrefix(classname, "trigger") || classname == "info_teleport_destination") {
		return true, true
	}
	if opts.Func && strings.HasPrefix(classname, "func") {
		return true, true
	}
	if opts.Weapon && (classname == "item_weapon" || strings.HasPrefix(classname, "weapon")) {
		return true, false
	}
	if !strings.HasPrefix(classname, "item") {
		return false, false
	}
	switch {
	case opts.Powerup && strings.HasPrefix(classname, "item_artifact"):
		return true, false
	case opts.Armor && strings.HasPrefix(classname, "item_armor"):
		return true, false
	case opts.Key && (classname == "item_sigil" || strings.HasPrefix(classname, "item_key")):
		return true, true
	case opts.Ammo && (classname == "item_cells" || classname == "item_rockets" ||
		classname == "item_shells" || classname == "item_spikes"):
		return true, false
	case opts.Health && classname == "item_health":
		return true, false
	}
	return false, false
}

// ParsePointsOfInterest collects POI entities that have an origin.
func ParsePointsOfInterest(ents []formats.Entity, opts POIOptions) []PointOfInterest {
	var pois []PointOfInterest
	for i := range ents {
		e := &ents[i]
		poi, super := classifyPOI(e.Classname(), &opts)
		if !poi {
			continue
		}
		origin, ok := e.Vec3("origin")
		if !ok {
			continue
		}
		pois = append(pois, PointOfInterest{Origin: origin, Super: super})
	}
	return pois
}

func nearPOI(origin mgl32.Vec3, pois []PointOfInterest, opts *POIOptions) bool {
	near := opts.Dist * opts.Dist
	loose := opts.DistSuper * opts.DistSuper
	for _, p := range pois {
		v := p.Origin.Sub(origin)
		thresh := near
		if p.Super {
			thresh = loose
		}
		if v.Dot(v) < thresh {
			return true
		}
	}
	return false
}

// ParseStaticLights extracts light entities with an origin.
func ParseStaticLights(ents []formats.Entity, opts StaticLightOptions) []StaticLight {
	pois := ParsePointsOfInterest(ents, opts.POI)

	var lights []StaticLight
	for i := range ents {
		e := &ents[i]
		classname := e.Classname()
		if !strings.HasPrefix(classname, "light") {
			continue
		}
		origin, ok := e.Vec3("origin")
		if !ok {
			continue
		}

		l := StaticLight{
			Origin:    origin,
			WithModel: strings.HasPrefix(classname, "light_"),
			Offset:    classname == "light_torch_small_walltorch",
		}
		if v, ok := e.Float("light"); ok && v > 0 {
			l.Intensity, l.HasIntensity = v, true
		}
		if s, ok := e.Int("style"); ok && s >= 0 && s < bsp.MaxLightStyles {
			l.Style, l.HasStyle = s, true
		}
		l.NearPOI = nearPOI(origin, pois, &opts.POI)
		lights = append(lights, l)
	}

	logger.Named("lighting").Debug("parsed static lights",
		zap.Int("lights", len(lights)),
		zap.Int("poi", len(pois)))
	return lights
}

// EffectiveIntensity returns the light's intensity or the class default.
func (l *StaticLight) EffectiveIntensity(opts *StaticLightOptions) float32 {
	switch {
	case l.HasIntensity:
		return l.Intensity
	case l.WithModel:
		return opts.DefaultModelIntensity
	default:
		return opts.DefaultIntensity
	}
}

// Accept reports whether the light is worth a backend light.
func (l *StaticLight) Accept(opts *StaticLightOptions) bool {
	if l.WithModel || (l.HasStyle && l.Style > 0) || l.NearPOI {
		return true
	}
	return opts.Threshold >= 0 && l.EffectiveIntensity(opts) >= opts.Threshold
}

// UploadStaticLights sends every accepted light to the backend, scaled by
// its style's current value.
func UploadStaticLights(b renderer.Backend, lights []StaticLight, styles *Styles, opts StaticLightOptions) error {
	if opts.Normalize < 0.5 {
		return nil
	}
	for i := range lights {
		l := &lights[i]
		if !l.Accept(&opts) {
			continue
		}

		intens := l.EffectiveIntensity(&opts) / opts.Normalize
		if l.HasStyle {
			ls := float32(styles.Values[l.Style]) / StyleNormal
			intens *= mgl32.Clamp(ls, 0, 1)
		}

		info := renderer.Light{
			UniqueID: renderer.CustomID(uint32(staticLightIDBase + i)),
			Position: l.Origin,
			Color:    mgl32.Vec3{1, 1, 1}.Mul(intens),
			Radius:   opts.Radius,
			Style:    l.Style,
		}
		if l.Offset {
			info.Position[2] += 0.75 * unitsPerMeter
		}
		if err := b.UploadLight(&info); err != nil {
			return err
		}
	}
	return nil
}
