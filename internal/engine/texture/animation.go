package texture

import (
	"errors"
	"fmt"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
)

// ErrBrokenAnimCycle is returned when a texture's animation chain does not
// lead back to a frame covering the current time.
var ErrBrokenAnimCycle = errors.New("texture: broken animation cycle")

// maxAnimSteps bounds the walk along an animation chain.
const maxAnimSteps = 100

// Animate returns the index into m.Textures of the frame of texture base
// shown at time t (seconds). A non-zero entity frame selects the alternate
// animation when there is one.
func Animate(m *bsp.Model, base int, frame int, t float64) (int, error) {
	tex := m.Textures[base]
	if frame != 0 && tex.AlternateAnims >= 0 {
		base = tex.AlternateAnims
		tex = m.Textures[base]
	}
	if tex.AnimTotal == 0 {
		return base, nil
	}

	relative := int(t*10) % tex.AnimTotal
	for count := 0; tex.AnimMin > relative || tex.AnimMax <= relative; {
		if tex.AnimNext < 0 {
			return 0, fmt.Errorf("%w: %s has no next frame", ErrBrokenAnimCycle, tex.Name)
		}
		base = tex.AnimNext
		tex = m.Textures[base]
		if count++; count > maxAnimSteps {
			return 0, fmt.Errorf("%w: %s loops", ErrBrokenAnimCycle, tex.Name)
		}
	}
	return base, nil
}
