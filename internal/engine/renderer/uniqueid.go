package renderer

import (
	"go.uber.org/zap"

	"github.com/Faultbox/rtquake/internal/logger"
)

// Unique IDs pack a type tag in bits 60..63, a surface index in bits 32..59
// and an entity or instance id in bits 0..31. Tags never overlap, so IDs of
// different kinds cannot collide.
const (
	TagBrush  uint64 = 1
	TagAlias  uint64 = 2
	TagSprite uint64 = 3
	TagCustom uint64 = 4

	tagShift  = 60
	surfShift = 32
	surfMask  = 1<<(tagShift-surfShift) - 1

	// MaxIDSurface is the largest surface index that keeps brush IDs unique.
	MaxIDSurface = 32767
)

// Reserved entity ids.
const (
	EntityWorld     uint32 = 0xFFFFFFFE
	EntityViewModel uint32 = 0xFFFFFFFD
)

// BrushSurfaceID returns the ID of surface surf drawn by entity ent.
func BrushSurfaceID(surf int, ent uint32) uint64 {
	if surf > MaxIDSurface || surf < 0 {
		logger.WarnOnce("uniqueid.surface", "surface index exceeds unique id range",
			zap.Int("surface", surf), zap.Int("max", MaxIDSurface))
	}
	return TagBrush<<tagShift | (uint64(surf)&surfMask)<<surfShift | uint64(ent)
}

// AliasID returns the ID of an alias model instance.
func AliasID(ent uint32) uint64 {
	return TagAlias<<tagShift | uint64(ent)
}

// SpriteID returns the ID of a sprite instance.
func SpriteID(ent uint32) uint64 {
	return TagSprite<<tagShift | uint64(ent)
}

// CustomID returns the ID of an engine-generated object.
func CustomID(id uint32) uint64 {
	return TagCustom<<tagShift | uint64(id)
}

// IDTag extracts the type tag of a unique ID.
func IDTag(id uint64) uint64 {
	return id >> tagShift
}
