package renderer

import "sync"

// Scratch hands out transient per-frame vertex and index storage. Blocks
// stay valid until the next Reset.
type Scratch struct {
	mu      sync.Mutex
	verts   []Vertex
	indices []uint32
}

// NewScratch creates an arena with the given initial capacities.
func NewScratch(verts, indices int) *Scratch {
	return &Scratch{
		verts:   make([]Vertex, 0, verts),
		indices: make([]uint32, 0, indices),
	}
}

// Vertices returns n zeroed vertices.
func (s *Scratch) Vertices(n int) []Vertex {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.verts)
	if start+n > cap(s.verts) {
		// Earlier blocks keep pointing at the old array.
		s.verts = make([]Vertex, 0, max(2*cap(s.verts), n))
		start = 0
	}
	s.verts = s.verts[:start+n]
	block := s.verts[start : start+n : start+n]
	clear(block)
	return block
}

// Indices returns n zeroed indices.
func (s *Scratch) Indices(n int) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.indices)
	if start+n > cap(s.indices) {
		s.indices = make([]uint32, 0, max(2*cap(s.indices), n))
		start = 0
	}
	s.indices = s.indices[:start+n]
	block := s.indices[start : start+n : start+n]
	clear(block)
	return block
}

// Reset releases every block handed out since the last Reset.
func (s *Scratch) Reset() {
	s.mu.Lock()
	s.verts = s.verts[:0]
	s.indices = s.indices[:0]
	s.mu.Unlock()
}
