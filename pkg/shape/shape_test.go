package shape

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectSelectDetail(t *testing.T) {
	o := Object{Details: []DetailLevel{{Size: 64, Mesh: 0}, {Size: 32, Mesh: 1}, {Size: 32, Mesh: 2}, {Size: 8, Mesh: 3}}}

	tests := []struct {
		size int
		want int
	}{
		{100, 0},
		{64, 0},
		{63, 1},
		{32, 1},
		{10, 3},
		{7, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, o.SelectDetail(tt.size), "size %d", tt.size)
	}
}

func TestMembersContains(t *testing.T) {
	m := Members{1, 4, 9}
	assert.True(t, m.Contains(4))
	assert.False(t, m.Contains(5))
	assert.False(t, Members(nil).Contains(0))
}

func TestMaterialListIndex(t *testing.T) {
	l := MaterialList{{Name: "stone"}, {Name: "wood"}}
	assert.Equal(t, 1, l.Index("wood"))
	assert.Equal(t, NoMaterial, l.Index("glass"))
}

func TestWriteYAML(t *testing.T) {
	s := &Shape{
		Name:  "crate",
		Nodes: []Node{{Name: "root", Parent: -1}},
		Objects: []Object{
			{Name: "box", Node: 0, Details: []DetailLevel{{Size: 2}}},
			{Name: "skin", Node: -1},
		},
		Materials: MaterialList{{Name: "wood"}},
		Sequences: []Sequence{{Name: "open", NumKeyframes: 5, Ground: &GroundTrack{}}},
	}

	var buf bytes.Buffer
	require.NoError(t, s.WriteYAML(&buf))
	out := buf.String()
	assert.Contains(t, out, "name: crate")
	assert.Contains(t, out, "node: root")
	assert.Contains(t, out, "node: (skin)")
	assert.Contains(t, out, "keyframes: 5")
}

func TestShapeLookups(t *testing.T) {
	s := &Shape{
		Nodes:     []Node{{Name: "a"}, {Name: "b"}},
		Objects:   []Object{{Name: "o"}},
		Sequences: []Sequence{{Name: "walk", Flags: SeqCyclic}},
		Details:   []Detail{{Size: 10}, {Size: 2}},
	}
	assert.Equal(t, 1, s.NodeIndex("b"))
	assert.Equal(t, 0, s.ObjectIndex("o"))
	assert.Equal(t, -1, s.SequenceIndex("run"))
	assert.True(t, s.Sequences[0].Has(SeqCyclic))
	assert.False(t, s.Sequences[0].Has(SeqBlend))
	assert.Equal(t, 1, s.SelectDetail(5))

	sub := Subshape{FirstNode: 2, NumNodes: 3}
	assert.True(t, sub.ContainsNode(4))
	assert.False(t, sub.ContainsNode(5))
}
