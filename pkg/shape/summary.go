package shape

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Summary is a compact description of a shape for inspection.
type Summary struct {
	Name      string            `yaml:"name"`
	Nodes     int               `yaml:"nodes"`
	Subshapes int               `yaml:"subshapes"`
	Objects   []ObjectSummary   `yaml:"objects"`
	Materials []string          `yaml:"materials"`
	Details   []Detail          `yaml:"details"`
	Sequences []SequenceSummary `yaml:"sequences"`
	Radius    float32           `yaml:"radius"`
}

// ObjectSummary lists an object's node and detail sizes.
type ObjectSummary struct {
	Name  string `yaml:"name"`
	Node  string `yaml:"node"`
	Sizes []int  `yaml:"sizes"`
}

// SequenceSummary lists the size of a sequence's tracks.
type SequenceSummary struct {
	Name         string  `yaml:"name"`
	Duration     float32 `yaml:"duration"`
	Keyframes    int     `yaml:"keyframes"`
	Rotations    int     `yaml:"rotations"`
	Translations int     `yaml:"translations"`
	Scales       int     `yaml:"scales"`
	Objects      int     `yaml:"objects"`
	Ground       int     `yaml:"ground_frames,omitempty"`
	Triggers     int     `yaml:"triggers,omitempty"`
}

// Summarize builds a Summary of s.
func (s *Shape) Summarize() Summary {
	sum := Summary{
		Name:      s.Name,
		Nodes:     len(s.Nodes),
		Subshapes: len(s.Subshapes),
		Details:   s.Details,
		Radius:    s.Radius,
	}
	for _, o := range s.Objects {
		osum := ObjectSummary{Name: o.Name, Node: "(skin)"}
		if o.Node >= 0 && o.Node < len(s.Nodes) {
			osum.Node = s.Nodes[o.Node].Name
		}
		for _, d := range o.Details {
			osum.Sizes = append(osum.Sizes, d.Size)
		}
		sum.Objects = append(sum.Objects, osum)
	}
	for _, m := range s.Materials {
		sum.Materials = append(sum.Materials, m.Name)
	}
	for i := range s.Sequences {
		seq := &s.Sequences[i]
		ss := SequenceSummary{
			Name:         seq.Name,
			Duration:     seq.Duration,
			Keyframes:    seq.NumKeyframes,
			Rotations:    len(seq.Rotations),
			Translations: len(seq.Translations),
			Scales:       len(seq.Scales),
			Objects:      len(seq.ObjectStates),
			Triggers:     len(seq.Triggers),
		}
		if seq.Ground != nil {
			ss.Ground = seq.Ground.NumFrames()
		}
		sum.Sequences = append(sum.Sequences, ss)
	}
	return sum
}

// WriteYAML writes the shape summary to w.
func (s *Shape) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.Summarize()); err != nil {
		return err
	}
	return enc.Close()
}
