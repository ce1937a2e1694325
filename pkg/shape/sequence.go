package shape

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// SequenceFlags are the boolean properties of a sequence.
type SequenceFlags uint32

const (
	SeqCyclic SequenceFlags = 1 << iota
	SeqBlend
	SeqMakePath
)

// DirtyFlags tell the runtime which state groups a sequence touches.
type DirtyFlags uint32

const (
	DirtyTransform DirtyFlags = 1 << iota
	DirtyVisibility
	DirtyFrame
	DirtyMaterialFrame
)

// Sequence is a compiled animation clip. Every track holds exactly
// NumKeyframes keys.
type Sequence struct {
	Name         string          `yaml:"name"`
	Duration     float32         `yaml:"duration"`
	FrameRate    float32         `yaml:"frame_rate"`
	NumKeyframes int             `yaml:"keyframes"`
	Priority     int             `yaml:"priority"`
	Flags        SequenceFlags   `yaml:"flags"`
	Scale        xform.ScaleKind `yaml:"scale"`
	Dirty        DirtyFlags      `yaml:"dirty"`

	RotationMatters    Members `yaml:"rotation_matters"`
	TranslationMatters Members `yaml:"translation_matters"`
	ScaleMatters       Members `yaml:"scale_matters"`

	ObjectMatters   Members `yaml:"object_matters"`
	VisMatters      Members `yaml:"vis_matters"`
	FrameMatters    Members `yaml:"frame_matters"`
	MatFrameMatters Members `yaml:"mat_frame_matters"`

	Rotations    []RotationTrack    `yaml:"-"`
	Translations []TranslationTrack `yaml:"-"`
	Scales       []ScaleTrack       `yaml:"-"`
	ObjectStates []ObjectTrack      `yaml:"-"`

	Ground   *GroundTrack `yaml:"ground,omitempty"`
	Triggers []Trigger    `yaml:"triggers,omitempty"`
}

// Has reports whether flag is set.
func (s *Sequence) Has(flag SequenceFlags) bool {
	return s.Flags&flag != 0
}

// RotationTrack holds one rotation per keyframe for a node.
type RotationTrack struct {
	Node int
	Keys []mgl32.Quat
}

// TranslationTrack holds one translation per keyframe for a node.
type TranslationTrack struct {
	Node int
	Keys []mgl32.Vec3
}

// ScaleTrack holds one scale per keyframe for a node. Only the slice matching
// the sequence's scale kind is populated.
type ScaleTrack struct {
	Node      int
	Uniform   []float32
	Aligned   []mgl32.Vec3
	Arbitrary []ArbitraryScale
}

// ArbitraryScale is a scale along rotated axes.
type ArbitraryScale struct {
	Scale    mgl32.Vec3
	Rotation mgl32.Quat
}

// ObjectTrack holds one object state per keyframe.
type ObjectTrack struct {
	Object int
	Keys   []ObjectState
}

// GroundTrack is root motion sampled at a fixed rate, relative to the start
// of the sequence.
type GroundTrack struct {
	FrameRate    float32      `yaml:"frame_rate"`
	Translations []mgl32.Vec3 `yaml:"-"`
	Rotations    []mgl32.Quat `yaml:"-"`
}

// NumFrames returns the number of ground frames.
func (g *GroundTrack) NumFrames() int {
	return len(g.Translations)
}

// Trigger is a timeline event. Position is normalized to [0,1].
type Trigger struct {
	Position        float32 `yaml:"pos"`
	State           int     `yaml:"state"`
	On              bool    `yaml:"on"`
	InvertOnReverse bool    `yaml:"invert_on_reverse,omitempty"`
}

// RotationTrackFor returns the rotation track of node, or nil.
func (s *Sequence) RotationTrackFor(node int) *RotationTrack {
	for i := range s.Rotations {
		if s.Rotations[i].Node == node {
			return &s.Rotations[i]
		}
	}
	return nil
}

// TranslationTrackFor returns the translation track of node, or nil.
func (s *Sequence) TranslationTrackFor(node int) *TranslationTrack {
	for i := range s.Translations {
		if s.Translations[i].Node == node {
			return &s.Translations[i]
		}
	}
	return nil
}

// ScaleTrackFor returns the scale track of node, or nil.
func (s *Sequence) ScaleTrackFor(node int) *ScaleTrack {
	for i := range s.Scales {
		if s.Scales[i].Node == node {
			return &s.Scales[i]
		}
	}
	return nil
}
