// Package lighting animates light styles, marks surfaces touched by dynamic
// lights and extracts static lights from the entity lump.
package lighting

import (
	"github.com/Faultbox/rtquake/internal/engine/bsp"
)

// StyleNormal is the 8.8 value of an unanimated style ('m').
const StyleNormal = 256

// lerpMaxStep is the largest style step that lerp mode 1 smooths over.
const lerpMaxStep = ('m' - 'a') / 2

// QuakeStyles are the standard style patterns set up by the game code.
var QuakeStyles = map[int]string{
	0:  "m",
	1:  "mmnmmommommnonmmonqnmmo",
	2:  "abcdefghijklmnopqrstuvwxyzyxwvutsrqponmlkjihgfedcba",
	3:  "mmmmmaaaaammmmmaaaaaabcdefgabcdefg",
	4:  "mamamamamama",
	5:  "jklmnopqrstuvwxyzyxwvutsrqponmlkj",
	6:  "nmonqnmomnmomomno",
	7:  "mmmaaaabcdefgmmmmaaaammmaamm",
	8:  "mmmaaammmaaammmabcdefaaaammmmabcdefmmmaaaa",
	9:  "aaaaaaaazzzzzzzz",
	10: "mmamammmmammamamaaamammma",
	11: "abcdefghijklmnopqrrqponmlkjihgfedcba",
	63: "a",
}

// AnimateOptions selects how style patterns are sampled.
type AnimateOptions struct {
	Flat      int  // 0 animated, 1 pattern average, 2 pattern peak
	Lerp      int  // 0 off, 1 small steps only, 2 always
	GPUUpdate bool // lerping is only applied when lightmaps update on the GPU
}

type style struct {
	pattern string
	average byte
	peak    byte
}

// Styles holds the light style patterns and their current 8.8 brightness.
// Values is written once per frame before any reader runs.
type Styles struct {
	styles [bsp.MaxLightStyles]style
	Values [bsp.MaxLightStyles]int
}

// NewStyles returns styles with every value at normal brightness.
func NewStyles() *Styles {
	s := &Styles{}
	for i := range s.Values {
		s.Values[i] = StyleNormal
	}
	return s
}

// Set installs pattern for style i. Out of range styles are ignored.
func (s *Styles) Set(i int, pattern string) {
	if i < 0 || i >= bsp.MaxLightStyles {
		return
	}
	st := style{pattern: pattern, peak: 'a'}
	if len(pattern) > 0 {
		total := 0
		for k := 0; k < len(pattern); k++ {
			c := pattern[k]
			total += int(c - 'a')
			st.peak = max(st.peak, c)
		}
		st.average = byte(total/len(pattern)) + 'a'
	}
	s.styles[i] = st
}

// SetAll installs every pattern of the map.
func (s *Styles) SetAll(patterns map[int]string) {
	for i, p := range patterns {
		s.Set(i, p)
	}
}

// Animate recomputes Values for time t in seconds. Patterns advance at 10Hz.
func (s *Styles) Animate(t float64, opts AnimateOptions) {
	f := t * 10
	i := int(f)
	for j := range s.styles {
		st := &s.styles[j]
		if len(st.pattern) == 0 {
			s.Values[j] = StyleNormal
			continue
		}

		var k, n int
		switch opts.Flat {
		case 2:
			k = int(st.peak) - 'a'
			n = k
		case 1:
			k = int(st.average) - 'a'
			n = k
		default:
			k = int(st.pattern[i%len(st.pattern)]) - 'a'
			n = int(st.pattern[(i+1)%len(st.pattern)]) - 'a'
		}

		step := n - k
		if step < 0 {
			step = -step
		}
		if !opts.GPUUpdate || opts.Lerp == 0 || (opts.Lerp < 2 && step >= lerpMaxStep) {
			n = k
		}
		s.Values[j] = int((float64(k) + float64(n-k)*(f-float64(i))) * 22)
	}
}
