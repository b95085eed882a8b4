// Package texture tracks the materials registered with the backend and
// resolves animated texture cycles.
package texture

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/engine/bsp"
	"github.com/Faultbox/rtquake/internal/logger"
)

// Reserved texture names.
const (
	GreyName  = "greytexture"
	BlackName = "blacktexture"
)

// Entry is one registered material.
type Entry struct {
	Name     string
	Material uuid.UUID
	Width    int
	Height   int
}

// Manager holds the active texture list. Registration is rare compared to
// lookups, so one mutex guards it.
type Manager struct {
	mu     sync.Mutex
	byName map[string]*Entry
	active []*Entry

	hits   int
	misses int

	grey *Entry
}

// NewManager creates a manager holding the built-in grey texture.
func NewManager() *Manager {
	m := &Manager{byName: make(map[string]*Entry)}
	m.grey = m.Load(GreyName, 8, 8)
	m.Load(BlackName, 8, 8)
	return m
}

// Load returns the entry for name, registering it with a fresh material
// handle the first time it is seen.
func (m *Manager) Load(name string, w, h int) *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byName[name]; ok {
		m.hits++
		return e
	}
	m.misses++
	e := &Entry{Name: name, Material: uuid.New(), Width: w, Height: h}
	m.byName[name] = e
	m.active = append(m.active, e)
	return e
}

// Free unregisters name. Built-in textures cannot be freed.
func (m *Manager) Free(name string) {
	if name == GreyName || name == BlackName {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; !ok {
		return
	}
	delete(m.byName, name)
	for i, e := range m.active {
		if e.Name == name {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
}

// Grey returns the fallback material for surfaces without a texture or
// lightmap.
func (m *Manager) Grey() *Entry { return m.grey }

// Active returns the number of registered textures.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stats returns lookup statistics.
func (m *Manager) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// RegisterModel registers every texture of model and stores the material
// handles on them.
func (m *Manager) RegisterModel(model *bsp.Model) {
	n := 0
	for _, t := range model.Textures {
		if t == nil {
			continue
		}
		t.Material = m.Load(t.Name, t.Width, t.Height).Material
		n++
	}
	logger.Named("texture").Debug("registered model textures",
		zap.String("model", model.Name), zap.Int("textures", n))
}

// ReleaseModel unregisters the textures of a model that is no longer drawn.
func (m *Manager) ReleaseModel(model *bsp.Model) {
	for _, t := range model.Textures {
		if t != nil {
			m.Free(t.Name)
		}
	}
}
