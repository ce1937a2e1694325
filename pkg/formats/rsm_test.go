package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/midgard-shape/pkg/encoding"
)

func TestParseRSM_MagicValidation(t *testing.T) {
	header := make([]byte, 200)
	copy(header, "GRSM")
	header[4], header[5] = 1, 5

	bad := append([]byte(nil), header...)
	copy(bad, "XXXX")

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"valid magic", header, nil},
		{"invalid magic", bad, ErrInvalidRSMMagic},
		{"empty data", []byte{}, ErrTruncatedRSMData},
		{"truncated data", []byte{'G', 'R', 'S'}, ErrTruncatedRSMData},
		{"header only", []byte("GRSM\x01\x05"), ErrTruncatedRSMData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRSM(tt.data)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRSM_VersionSupport(t *testing.T) {
	tests := []struct {
		name    string
		major   uint8
		minor   uint8
		wantErr bool
	}{
		{"v1.1", 1, 1, false},
		{"v1.2", 1, 2, false},
		{"v1.3", 1, 3, false},
		{"v1.4", 1, 4, false},
		{"v1.5", 1, 5, false},
		{"v2.1", 2, 1, false},
		{"v0.1 unsupported", 0, 1, true},
		{"v3.0 unsupported", 3, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeRSM(&RSM{Version: RSMVersion{tt.major, tt.minor}})
			_, err := ParseRSM(data)
			if (err != nil) != tt.wantErr {
				t.Errorf("version %d.%d: got error=%v, wantErr=%v", tt.major, tt.minor, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedRSMVersion) {
				t.Errorf("expected ErrUnsupportedRSMVersion, got %v", err)
			}
		})
	}
}

func TestRSMVersion_String(t *testing.T) {
	tests := []struct {
		version RSMVersion
		want    string
	}{
		{RSMVersion{1, 5}, "1.5"},
		{RSMVersion{2, 3}, "2.3"},
		{RSMVersion{1, 1}, "1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.version.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRSMVersion_AtLeast(t *testing.T) {
	tests := []struct {
		version RSMVersion
		major   uint8
		minor   uint8
		want    bool
	}{
		{RSMVersion{1, 5}, 1, 5, true},
		{RSMVersion{1, 5}, 1, 4, true},
		{RSMVersion{1, 5}, 1, 6, false},
		{RSMVersion{1, 5}, 2, 0, false},
		{RSMVersion{2, 3}, 1, 9, true},
		{RSMVersion{2, 3}, 2, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			if got := tt.version.AtLeast(tt.major, tt.minor); got != tt.want {
				t.Errorf("AtLeast(%d, %d) = %v, want %v", tt.major, tt.minor, got, tt.want)
			}
		})
	}
}

func TestRSMShadingType_String(t *testing.T) {
	tests := []struct {
		shading RSMShadingType
		want    string
	}{
		{RSMShadingNone, "None"},
		{RSMShadingFlat, "Flat"},
		{RSMShadingSmooth, "Smooth"},
		{RSMShadingType(99), "Unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.shading.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRSM_Nodes(t *testing.T) {
	for _, version := range []RSMVersion{{1, 4}, {1, 5}} {
		t.Run(version.String(), func(t *testing.T) {
			in := sampleRSM(version)
			rsm, err := ParseRSM(encodeRSM(in))
			if err != nil {
				t.Fatalf("ParseRSM failed: %v", err)
			}

			if rsm.AnimLength != 1000 || rsm.Shading != RSMShadingSmooth {
				t.Errorf("header = %d/%s", rsm.AnimLength, rsm.Shading)
			}
			if len(rsm.Textures) != 2 || rsm.Textures[1] != "나무.bmp" {
				t.Errorf("textures = %q", rsm.Textures)
			}
			if rsm.RootNode != "root" || len(rsm.Nodes) != 2 {
				t.Fatalf("root %q with %d nodes", rsm.RootNode, len(rsm.Nodes))
			}

			leaf := rsm.Nodes[1]
			if leaf.Parent != "root" {
				t.Errorf("leaf parent = %q", leaf.Parent)
			}
			if len(leaf.Vertices) != 3 || leaf.Vertices[2] != [3]float32{0, 1, 0} {
				t.Errorf("vertices = %v", leaf.Vertices)
			}
			if len(leaf.Faces) != 1 || leaf.Faces[0].VertexIDs != [3]uint16{0, 1, 2} || leaf.Faces[0].TwoSide != 1 {
				t.Errorf("faces = %+v", leaf.Faces)
			}
			if len(leaf.RotKeys) != 2 || leaf.RotKeys[1].Frame != 1000 {
				t.Errorf("rotation keys = %+v", leaf.RotKeys)
			}
			if version.AtLeast(1, 5) {
				if len(leaf.ScaleKeys) != 1 || leaf.ScaleKeys[0].Scale != [3]float32{2, 2, 2} {
					t.Errorf("scale keys = %+v", leaf.ScaleKeys)
				}
			} else if len(leaf.PosKeys) != 1 || leaf.PosKeys[0].Position != [3]float32{0, 5, 0} {
				t.Errorf("position keys = %+v", leaf.PosKeys)
			}

			if len(rsm.VolumeBoxes) != 1 || rsm.VolumeBoxes[0].Flag != 7 {
				t.Errorf("volume boxes = %+v", rsm.VolumeBoxes)
			}
		})
	}
}

func TestParseRSM_Alpha(t *testing.T) {
	rsm, err := ParseRSM(encodeRSM(&RSM{Version: RSMVersion{1, 4}, Alpha: 128.0 / 255.0}))
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	expected := float32(128) / 255.0
	if rsm.Alpha < expected-0.01 || rsm.Alpha > expected+0.01 {
		t.Errorf("Alpha = %f, want ~%f", rsm.Alpha, expected)
	}

	// v1.3 has no alpha byte
	rsm, err = ParseRSM(encodeRSM(&RSM{Version: RSMVersion{1, 3}}))
	if err != nil {
		t.Fatalf("ParseRSM failed: %v", err)
	}
	if rsm.Alpha != 1.0 {
		t.Errorf("Alpha = %f, want 1.0 for v1.3", rsm.Alpha)
	}
}

func TestParseRSM_Truncated(t *testing.T) {
	data := encodeRSM(sampleRSM(RSMVersion{1, 5}))

	// Cut inside the second node's face list.
	for _, cut := range []int{20, 100, len(data) / 2, len(data) - 60} {
		_, err := ParseRSM(data[:cut])
		if !errors.Is(err, ErrTruncatedRSMData) {
			t.Errorf("cut at %d: error = %v, want ErrTruncatedRSMData", cut, err)
		}
	}
}

func TestParseRSM_BadCounts(t *testing.T) {
	in := &RSM{Version: RSMVersion{1, 5}}
	data := encodeRSM(in)

	// texture count lives right after the 16 reserved bytes
	off := 6 + 4 + 4 + 1 + 16
	binary.LittleEndian.PutUint32(data[off:], 0xFFFFFFFF)
	if _, err := ParseRSM(data); !errors.Is(err, ErrTruncatedRSMData) {
		t.Errorf("negative texture count: got %v", err)
	}

	data = encodeRSM(in)
	off += 4 + 40
	binary.LittleEndian.PutUint32(data[off:], 20000)
	if _, err := ParseRSM(data); !errors.Is(err, ErrInvalidNodeCount) {
		t.Errorf("huge node count: got %v", err)
	}
}

func TestRSM_Counts(t *testing.T) {
	rsm := &RSM{
		Nodes: []RSMNode{
			{Vertices: make([][3]float32, 10), Faces: make([]RSMFace, 10)},
			{Vertices: make([][3]float32, 20), Faces: make([]RSMFace, 20)},
			{Vertices: make([][3]float32, 5)},
		},
	}

	if got := rsm.GetTotalVertexCount(); got != 35 {
		t.Errorf("GetTotalVertexCount() = %d, want 35", got)
	}
	if got := rsm.GetTotalFaceCount(); got != 30 {
		t.Errorf("GetTotalFaceCount() = %d, want 30", got)
	}
}

func TestRSM_NodeLookup(t *testing.T) {
	rsm := &RSM{
		RootNode: "root",
		Nodes: []RSMNode{
			{Name: "child1", Parent: "root"},
			{Name: "root", Parent: "root"},
			{Name: "child2", Parent: "root"},
			{Name: "grandchild", Parent: "child1"},
		},
	}

	if got := rsm.GetNodeIndex("child2"); got != 2 {
		t.Errorf("GetNodeIndex(child2) = %d, want 2", got)
	}
	if rsm.GetNodeByName("nonexistent") != nil {
		t.Error("GetNodeByName returned non-nil for nonexistent node")
	}
	if root := rsm.GetRootNode(); root == nil || root.Name != "root" {
		t.Fatalf("GetRootNode = %v", root)
	}

	// A node naming itself as parent is not its own child.
	if children := rsm.GetChildNodes("root"); len(children) != 2 {
		t.Errorf("got %d children of root, want 2", len(children))
	}
	if children := rsm.GetChildNodes("child1"); len(children) != 1 {
		t.Errorf("got %d children of child1, want 1", len(children))
	}
}

func TestRSM_HasAnimation(t *testing.T) {
	twoKeys := []RSMRotKeyframe{{Frame: 0}, {Frame: 100}}

	tests := []struct {
		name   string
		length int32
		nodes  []RSMNode
		want   bool
	}{
		{"no animation", 1000, []RSMNode{{Name: "node"}}, false},
		{"single pose key", 1000, []RSMNode{{RotKeys: twoKeys[:1]}}, false},
		{"rotation keys", 1000, []RSMNode{{RotKeys: twoKeys}}, true},
		{"zero length", 0, []RSMNode{{RotKeys: twoKeys}}, false},
		{"scale keys", 500, []RSMNode{{ScaleKeys: make([]RSMScaleKeyframe, 2)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsm := &RSM{AnimLength: tt.length, Nodes: tt.nodes}
			if got := rsm.HasAnimation(); got != tt.want {
				t.Errorf("HasAnimation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func sampleRSM(version RSMVersion) *RSM {
	leaf := RSMNode{
		Name:       "leaf",
		Parent:     "root",
		TextureIDs: []int32{1},
		Matrix:     [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Scale:      [3]float32{1, 1, 1},
		Vertices:   [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		TexCoords:  []RSMTexCoord{{Color: [4]uint8{255, 255, 255, 255}, U: 0, V: 1}},
		Faces:      []RSMFace{{VertexIDs: [3]uint16{0, 1, 2}, TwoSide: 1}},
		RotKeys: []RSMRotKeyframe{
			{Frame: 0, Quaternion: [4]float32{0, 0, 0, 1}},
			{Frame: 1000, Quaternion: [4]float32{0, 1, 0, 0}},
		},
	}
	if version.AtLeast(1, 5) {
		leaf.ScaleKeys = []RSMScaleKeyframe{{Frame: 0, Scale: [3]float32{2, 2, 2}}}
	} else {
		leaf.PosKeys = []RSMPosKeyframe{{Frame: 0, Position: [3]float32{0, 5, 0}}}
	}

	return &RSM{
		Version:    version,
		AnimLength: 1000,
		Shading:    RSMShadingSmooth,
		Alpha:      1,
		Textures:   []string{"stone.bmp", "나무.bmp"},
		RootNode:   "root",
		Nodes: []RSMNode{
			{Name: "root", Scale: [3]float32{1, 1, 1}, Matrix: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}},
			leaf,
		},
		VolumeBoxes: []RSMVolumeBox{{Size: [3]float32{1, 1, 1}, Flag: 7}},
	}
}

// encodeRSM writes rsm in the binary layout ParseRSM reads.
func encodeRSM(rsm *RSM) []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	name := func(s string) { buf.Write(encoding.UTF8ToFixedString(s, rsmNameSize)) }
	v := rsm.Version

	buf.WriteString("GRSM")
	buf.WriteByte(v.Major)
	buf.WriteByte(v.Minor)
	w(rsm.AnimLength)
	w(rsm.Shading)
	if v.AtLeast(1, 4) {
		buf.WriteByte(uint8(rsm.Alpha*255 + 0.5))
	}
	buf.Write(make([]byte, 16))

	w(int32(len(rsm.Textures)))
	for _, tex := range rsm.Textures {
		name(tex)
	}
	name(rsm.RootNode)

	w(int32(len(rsm.Nodes)))
	for _, n := range rsm.Nodes {
		name(n.Name)
		name(n.Parent)
		w(int32(len(n.TextureIDs)))
		w(n.TextureIDs)
		w(n.Matrix)
		w(n.Offset)
		w(n.Position)
		w(n.RotAngle)
		w(n.RotAxis)
		w(n.Scale)
		w(int32(len(n.Vertices)))
		w(n.Vertices)
		w(int32(len(n.TexCoords)))
		for _, tc := range n.TexCoords {
			if v.AtLeast(1, 2) {
				w(tc.Color)
			}
			w(tc.U)
			w(tc.V)
		}
		w(int32(len(n.Faces)))
		for _, f := range n.Faces {
			w(f.VertexIDs)
			w(f.TexCoordIDs)
			w(f.TextureID)
			w(f.Padding)
			w(f.TwoSide)
			if v.AtLeast(1, 2) {
				w(f.SmoothGroup)
			}
		}
		if !v.AtLeast(1, 5) {
			w(int32(len(n.PosKeys)))
			w(n.PosKeys)
		}
		w(int32(len(n.RotKeys)))
		w(n.RotKeys)
		if v.AtLeast(1, 5) {
			w(int32(len(n.ScaleKeys)))
			w(n.ScaleKeys)
		}
	}

	w(int32(len(rsm.VolumeBoxes)))
	for _, b := range rsm.VolumeBoxes {
		w(b.Size)
		w(b.Position)
		w(b.Rotation)
		if v.AtLeast(1, 3) {
			w(b.Flag)
		}
	}
	return buf.Bytes()
}
