package renderer

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Recorder is an in-memory Backend. It keeps static geometry until the
// next scene and per-frame uploads until BeginFrame, which makes frames
// inspectable by tools and tests.
type Recorder struct {
	mu sync.Mutex

	scenes    int
	submitted bool
	static    map[uint64]GeometryInfo

	dynamic   []GeometryInfo
	raster    []RasterizedInfo
	lights    []Light
	portals   []Portal
	materials []MaterialUpdate

	uploads map[uint64]int // geometry uploads by ID tag

	failMaterials int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		static:  make(map[uint64]GeometryInfo),
		uploads: make(map[uint64]int),
	}
}

// BeginFrame drops every per-frame upload.
func (r *Recorder) BeginFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamic = r.dynamic[:0]
	r.raster = r.raster[:0]
	r.lights = r.lights[:0]
	r.portals = r.portals[:0]
	r.materials = r.materials[:0]
}

// FailMaterialUpdates makes the next n UpdateMaterial calls fail.
func (r *Recorder) FailMaterialUpdates(n int) {
	r.mu.Lock()
	r.failMaterials = n
	r.mu.Unlock()
}

func (r *Recorder) StartNewScene() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes++
	r.submitted = false
	clear(r.static)
	return nil
}

func (r *Recorder) SubmitStaticGeometries() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = true
	return nil
}

func (r *Recorder) UploadGeometry(info *GeometryInfo) error {
	if len(info.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a triangle list", ErrUploadFailed, len(info.Indices))
	}
	g := *info
	g.Vertices = slices.Clone(info.Vertices)
	g.Indices = slices.Clone(info.Indices)

	r.mu.Lock()
	defer r.mu.Unlock()
	if info.Type == GeometryStatic {
		if r.submitted {
			return fmt.Errorf("%w: static geometry %#x after submit", ErrUploadFailed, info.UniqueID)
		}
		r.static[info.UniqueID] = g
	} else {
		r.dynamic = append(r.dynamic, g)
	}
	r.uploads[IDTag(info.UniqueID)]++
	return nil
}

func (r *Recorder) UploadRasterizedGeometry(info *RasterizedInfo) error {
	g := *info
	g.Vertices = slices.Clone(info.Vertices)
	g.Indices = slices.Clone(info.Indices)

	r.mu.Lock()
	r.raster = append(r.raster, g)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) UploadLight(l *Light) error {
	r.mu.Lock()
	r.lights = append(r.lights, *l)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) UploadPortal(p *Portal) error {
	r.mu.Lock()
	r.portals = append(r.portals, *p)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) UpdateMaterial(u *MaterialUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMaterials > 0 {
		r.failMaterials--
		return fmt.Errorf("%w: material %s", ErrUploadFailed, u.Material)
	}
	m := *u
	m.Data = slices.Clone(u.Data)
	r.materials = append(r.materials, m)
	return nil
}

// Scenes returns how many scenes have been started.
func (r *Recorder) Scenes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scenes
}

// Submitted reports whether the current scene's static geometry was submitted.
func (r *Recorder) Submitted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitted
}

// Static returns the static geometry of the current scene by unique ID.
func (r *Recorder) Static() map[uint64]GeometryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint64]GeometryInfo, len(r.static))
	for id, g := range r.static {
		out[id] = g
	}
	return out
}

// Uploads returns the geometry accepted since the recorder was created,
// counted by ID tag.
func (r *Recorder) Uploads() map[uint64]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.uploads)
}

// Dynamic returns this frame's dynamic geometry.
func (r *Recorder) Dynamic() []GeometryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dynamic)
}

// Rasterized returns this frame's rasterized geometry.
func (r *Recorder) Rasterized() []RasterizedInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.raster)
}

// Lights returns this frame's lights.
func (r *Recorder) Lights() []Light {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.lights)
}

// Portals returns this frame's portals.
func (r *Recorder) Portals() []Portal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.portals)
}

// MaterialUpdates returns this frame's successful material updates.
func (r *Recorder) MaterialUpdates() []MaterialUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.materials)
}
