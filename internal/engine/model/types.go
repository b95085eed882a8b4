// Package model holds the entity model kinds drawn by the frame: brush
// models from the level, alias meshes and sprites.
package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/engine/renderer"
)

// Kind tags the model variants.
type Kind int

const (
	KindAlias Kind = iota
	KindBrush
	KindSprite
)

func (k Kind) String() string {
	switch k {
	case KindAlias:
		return "alias"
	case KindBrush:
		return "brush"
	case KindSprite:
		return "sprite"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Model is implemented by *Alias, *Brush and *Sprite only.
type Model interface {
	Kind() Kind
	Name() string
	Bounds() Bounds
}

// Bounds is an axis-aligned box in model space.
type Bounds struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Visitor receives a model by kind.
type Visitor interface {
	VisitAlias(m *Alias) error
	VisitBrush(m *Brush) error
	VisitSprite(m *Sprite) error
}

// Dispatch calls the visitor method matching the model's kind.
func Dispatch(m Model, v Visitor) error {
	switch m := m.(type) {
	case *Alias:
		return v.VisitAlias(m)
	case *Brush:
		return v.VisitBrush(m)
	case *Sprite:
		return v.VisitSprite(m)
	}
	return fmt.Errorf("model: unknown model type %T", m)
}

// Brush wraps a world submodel.
type Brush struct {
	BSP *bsp.Model
}

func (b *Brush) Kind() Kind     { return KindBrush }
func (b *Brush) Name() string   { return b.BSP.Name }
func (b *Brush) Bounds() Bounds { return Bounds{Min: b.BSP.Mins, Max: b.BSP.Maxs} }

// Instance is the per-entity state an alias or sprite upload reads.
type Instance struct {
	ID        uint32
	Frame     int
	Transform renderer.Transform
	Alpha     float32 // 0 for opaque
}

func (in *Instance) alpha() float32 {
	if in.Alpha <= 0 {
		return 1
	}
	return min(in.Alpha, 1)
}
