package loader

import (
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

// generateMaterials deduplicates scene materials by name, keeping the first
// occurrence's position, and checks every primitive reference.
func (l *Loader) generateMaterials() {
	sc := l.scene
	l.materialRemap = make([]int, len(sc.Materials))
	for i, m := range sc.Materials {
		idx := l.materials.Index(m.Name)
		if idx == shape.NoMaterial {
			idx = len(l.materials)
			l.materials = append(l.materials, shape.Material{Name: m.Name, Texture: m.Texture, Flags: m.Flags})
		} else {
			l.debugf("material %q listed twice, merged", m.Name)
		}
		l.materialRemap[i] = idx
	}

	for _, pm := range l.meshes {
		for _, p := range pm.mesh.Primitives {
			if p.Material != shape.NoMaterial && (p.Material < 0 || p.Material >= len(l.materialRemap)) {
				l.warnf("mesh %q references missing material %d", sc.Meshes[pm.source].Name, p.Material)
			}
		}
	}
	l.progress("Generating materials", len(l.materials), len(l.materials))
}

// resolveMaterial maps a scene material index to the deduplicated list.
func (l *Loader) resolveMaterial(idx int) int {
	if idx < 0 || idx >= len(l.materialRemap) {
		return shape.NoMaterial
	}
	return l.materialRemap[idx]
}
