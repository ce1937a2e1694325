package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/midgard-shape/pkg/scene"
)

// splitTrailingNumber splits "box128" into ("box", 128, true). A '-' directly
// before the digits makes the number negative: "Col-1" is ("Col", -1, true).
func splitTrailingNumber(name string) (string, int, bool) {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return name, 0, false
	}
	if start > 0 && name[start-1] == '-' {
		start--
	}
	n, err := strconv.Atoi(name[start:])
	if err != nil {
		return name, 0, false
	}
	return name[:start], n, true
}

// classifyMesh is the default mesh classifier.
func classifyMesh(m *scene.Mesh) scene.Classification {
	kind := m.Kind
	if kind == scene.KindAuto {
		if len(m.Bones) > 0 {
			kind = scene.KindSkin
		} else {
			kind = scene.KindDetail
		}
	}
	base, size, ok := splitTrailingNumber(m.Name)
	if !ok {
		size = DefaultDetailSize
	}
	base = strings.TrimRight(base, " _")
	if base == "" {
		base = m.Name
	}
	return scene.Classification{Kind: kind, Object: base, Size: size}
}

// detailName returns the shape detail name for an object's mesh size.
func detailName(object string, size int) string {
	if size < 0 {
		lower := strings.ToLower(object)
		switch {
		case strings.HasPrefix(lower, "col"):
			return fmt.Sprintf("Collision%d", size)
		case strings.HasPrefix(lower, "los"):
			return fmt.Sprintf("LOS%d", size)
		}
	}
	return fmt.Sprintf("detail%d", size)
}

// nullDetailSize recognizes "nulldetail<N>" marker nodes.
func nullDetailSize(name string) (int, bool) {
	if !strings.HasPrefix(strings.ToLower(name), "nulldetail") {
		return 0, false
	}
	_, size, ok := splitTrailingNumber(name)
	return size, ok
}

// uniqueName returns name, or name with the smallest numeric suffix that is
// not yet in used. The result is added to used.
func uniqueName(name string, used map[string]bool) string {
	out := name
	for i := 1; used[out]; i++ {
		out = fmt.Sprintf("%s_%d", name, i)
	}
	used[out] = true
	return out
}
