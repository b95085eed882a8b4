// Package lightmap packs surface lightmaps into atlas pages, rebuilds them
// from light styles and dynamic lights, and uploads dirty pages.
package lightmap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrAtlasFull is returned when a block does not fit in MaxPages pages.
	ErrAtlasFull = errors.New("lightmap: atlas full")
	// ErrBlockTooLarge is returned for blocks wider than MaxExtent or
	// taller than a shelf.
	ErrBlockTooLarge = errors.New("lightmap: block too large")
)

// BytesPerTexel is the size of an RGBA8 atlas texel.
const BytesPerTexel = 4

// MaxExtent is the widest block in texels.
const MaxExtent = 18

// Config sizes the atlas.
type Config struct {
	Width       int
	Height      int
	ShelfHeight int // must divide Height
	MaxPages    int
}

// DefaultConfig returns 1024x1024 pages with 256 texel shelves.
func DefaultConfig() Config {
	return Config{Width: 1024, Height: 1024, ShelfHeight: 256, MaxPages: 256}
}

// Rect is a dirty region in texels. An empty rect has L = page width,
// T = page height and zero size.
type Rect struct {
	L, T, W, H int
}

// Page is one atlas texture.
type Page struct {
	Name     string
	Material uuid.UUID
	Data     []byte // RGBA8, Width*Height texels

	modified atomic.Bool

	mu   sync.Mutex // guards Rect and writes into Data after load
	Rect Rect
}

// Modified reports whether the page needs an upload.
func (p *Page) Modified() bool { return p.modified.Load() }

// SetModified flags the page for upload.
func (p *Page) SetModified() { p.modified.Store(true) }

// DirtyRect returns the current dirty rectangle.
func (p *Page) DirtyRect() Rect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Rect
}

// grow extends the dirty rectangle to cover a block at (s, t).
// Callers hold p.mu.
func (p *Page) grow(s, t, smax, tmax int) {
	r := &p.Rect
	if t < r.T {
		if r.H != 0 {
			r.H += r.T - t
		}
		r.T = t
	}
	if s < r.L {
		if r.W != 0 {
			r.W += r.L - s
		}
		r.L = s
	}
	if r.W+r.L < s+smax {
		r.W = s - r.L + smax
	}
	if r.H+r.T < t+tmax {
		r.H = t - r.T + tmax
	}
}

// classCursor tracks the open column of one block width.
type classCursor struct {
	column int // -1 when no column is open
	row    int
	page   int
	shelf  int
}

// Atlas is a shelf allocator. Each shelf is split into columns, and each
// column holds blocks of a single width stacked top to bottom. Space is
// never reclaimed until Reset.
type Atlas struct {
	cfg     Config
	shelves int

	pages         []*Page
	used          [][]int // used columns per page per shelf
	lastAllocated int
	classes       [MaxExtent]classCursor
}

// NewAtlas creates an empty atlas.
func NewAtlas(cfg Config) *Atlas {
	a := &Atlas{cfg: cfg, shelves: cfg.Height / cfg.ShelfHeight}
	a.Reset()
	return a
}

// Config returns the atlas dimensions.
func (a *Atlas) Config() Config { return a.cfg }

// Reset drops every page and allocation.
func (a *Atlas) Reset() {
	a.pages = nil
	a.used = nil
	a.lastAllocated = 0
	for i := range a.classes {
		a.classes[i] = classCursor{column: -1}
	}
}

// Pages returns the allocated pages.
func (a *Atlas) Pages() []*Page { return a.pages }

func (a *Atlas) addPage() {
	n := len(a.pages)
	a.pages = append(a.pages, &Page{
		Name:     fmt.Sprintf("lightmap%07d", n),
		Material: uuid.New(),
		Data:     make([]byte, a.cfg.Width*a.cfg.Height*BytesPerTexel),
		Rect:     Rect{L: a.cfg.Width, T: a.cfg.Height},
	})
	a.used = append(a.used, make([]int, a.shelves))
	a.lastAllocated = n
}

// AllocBlock reserves a w by h block and returns its page and position.
func (a *Atlas) AllocBlock(w, h int) (page, x, y int, err error) {
	if w < 1 || h < 1 || w > MaxExtent || w > a.cfg.Width || h > a.cfg.ShelfHeight {
		return 0, 0, 0, fmt.Errorf("%w: %dx%d", ErrBlockTooLarge, w, h)
	}

	sh := a.cfg.ShelfHeight
	c := &a.classes[w-1]
	for texnum := a.lastAllocated; texnum < a.cfg.MaxPages; texnum++ {
		if texnum == len(a.pages) {
			a.addPage()
		}

		if c.column < 0 || c.row+h-c.shelf*sh > sh {
			// open a new column
			for a.used[c.page][c.shelf]+w > a.cfg.Width {
				c.shelf++
				if c.shelf < a.shelves {
					continue
				}
				c.shelf = 0
				c.page++
				if c.page == len(a.pages) {
					break
				}
			}
			if c.page == len(a.pages) {
				continue
			}
			c.column = a.used[c.page][c.shelf]
			a.used[c.page][c.shelf] += w
			c.row = c.shelf * sh
		}

		x, y = c.column, c.row
		c.row += h
		return c.page, x, y, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %d pages", ErrAtlasFull, a.cfg.MaxPages)
}
