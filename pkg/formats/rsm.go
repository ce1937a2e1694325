// Package formats provides parsers for Ragnarok Online file formats.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-shape/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidNodeCount      = errors.New("invalid RSM node count")
)

const (
	rsmNameSize = 40
	maxRSMNodes = 10000
)

// RSMVersion represents the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// RSMShadingType represents the shading mode for rendering.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0
	RSMShadingFlat   RSMShadingType = 1
	RSMShadingSmooth RSMShadingType = 2
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord is a texture coordinate with its vertex color.
type RSMTexCoord struct {
	Color [4]uint8 // RGBA, v1.2+
	U, V  float32
}

// RSMFace is a triangle of a node mesh.
type RSMFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16 // index into the node's TextureIDs
	Padding     uint16
	TwoSide     int32
	SmoothGroup int32 // v1.2+
}

// RSMPosKeyframe is a position key, present before v1.5.
type RSMPosKeyframe struct {
	Frame    int32
	Position [3]float32
}

// RSMRotKeyframe is a rotation key stored as X, Y, Z, W.
type RSMRotKeyframe struct {
	Frame      int32
	Quaternion [4]float32
}

// RSMScaleKeyframe is a scale key, present from v1.5.
type RSMScaleKeyframe struct {
	Frame int32
	Scale [3]float32
	Data  float32
}

// RSMNode is one node of the model hierarchy.
type RSMNode struct {
	Name       string
	Parent     string // empty for the root
	TextureIDs []int32

	Matrix   [9]float32 // vertex-only 3x3, not inherited by children
	Offset   [3]float32 // vertex-only pivot, not inherited by children
	Position [3]float32
	RotAngle float32
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	PosKeys   []RSMPosKeyframe
	RotKeys   []RSMRotKeyframe
	ScaleKeys []RSMScaleKeyframe
}

// RSMVolumeBox is a collision volume.
type RSMVolumeBox struct {
	Size     [3]float32
	Position [3]float32
	Rotation [3]float32
	Flag     int32 // v1.3+
}

// RSM represents a parsed RSM (Resource Model) file.
type RSM struct {
	Version     RSMVersion
	AnimLength  int32 // milliseconds
	Shading     RSMShadingType
	Alpha       float32
	Textures    []string
	RootNode    string
	Nodes       []RSMNode
	VolumeBoxes []RSMVolumeBox
}

// rsmReader reads little-endian fields and turns short reads into
// ErrTruncatedRSMData tagged with the field being read.
type rsmReader struct {
	r *bytes.Reader
}

func (rr rsmReader) read(what string, v any) error {
	if err := binary.Read(rr.r, binary.LittleEndian, v); err != nil {
		return errors.Wrapf(ErrTruncatedRSMData, "reading %s", what)
	}
	return nil
}

func (rr rsmReader) name(what string) (string, error) {
	buf := make([]byte, rsmNameSize)
	if _, err := io.ReadFull(rr.r, buf); err != nil {
		return "", errors.Wrapf(ErrTruncatedRSMData, "reading %s", what)
	}
	return encoding.FixedStringToUTF8(buf), nil
}

// count reads an element count and checks that elemSize*count bytes remain.
func (rr rsmReader) count(what string, elemSize int) (int, error) {
	var n int32
	if err := rr.read(what+" count", &n); err != nil {
		return 0, err
	}
	if n < 0 || int64(n)*int64(elemSize) > int64(rr.r.Len()) {
		return 0, errors.Wrapf(ErrTruncatedRSMData, "%s count %d", what, n)
	}
	return int(n), nil
}

// ParseRSM parses RSM data from a byte slice.
func ParseRSM(data []byte) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}

	rsm := &RSM{
		Version: RSMVersion{Major: data[4], Minor: data[5]},
		Alpha:   1,
	}
	if rsm.Version.Major < 1 || rsm.Version.Major > 2 {
		return nil, errors.Wrapf(ErrUnsupportedRSMVersion, "version %s", rsm.Version)
	}

	rr := rsmReader{r: bytes.NewReader(data[6:])}
	if err := rr.read("animation length", &rsm.AnimLength); err != nil {
		return nil, err
	}
	if err := rr.read("shading type", &rsm.Shading); err != nil {
		return nil, err
	}
	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		if err := rr.read("alpha", &alpha); err != nil {
			return nil, err
		}
		rsm.Alpha = float32(alpha) / 255.0
	}

	var reserved [16]byte
	if err := rr.read("reserved block", &reserved); err != nil {
		return nil, err
	}

	textureCount, err := rr.count("texture", rsmNameSize)
	if err != nil {
		return nil, err
	}
	rsm.Textures = make([]string, textureCount)
	for i := range rsm.Textures {
		if rsm.Textures[i], err = rr.name("texture name"); err != nil {
			return nil, err
		}
	}

	if rsm.RootNode, err = rr.name("root node name"); err != nil {
		return nil, err
	}

	var nodeCount int32
	if err := rr.read("node count", &nodeCount); err != nil {
		return nil, err
	}
	if nodeCount < 0 || nodeCount > maxRSMNodes {
		return nil, errors.Wrapf(ErrInvalidNodeCount, "%d nodes", nodeCount)
	}

	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		if err := parseRSMNode(rr, rsm.Version, &rsm.Nodes[i]); err != nil {
			return nil, errors.Wrapf(err, "parsing node %d", i)
		}
	}

	// Volume boxes are optional trailing data.
	if rr.r.Len() < 4 {
		return rsm, nil
	}
	boxSize := 36
	if rsm.Version.AtLeast(1, 3) {
		boxSize += 4
	}
	boxCount, err := rr.count("volume box", boxSize)
	if err != nil {
		return nil, err
	}
	rsm.VolumeBoxes = make([]RSMVolumeBox, boxCount)
	for i := range rsm.VolumeBoxes {
		box := &rsm.VolumeBoxes[i]
		if err := rr.read("volume box", &box.Size); err != nil {
			return nil, err
		}
		if err := rr.read("volume box", &box.Position); err != nil {
			return nil, err
		}
		if err := rr.read("volume box", &box.Rotation); err != nil {
			return nil, err
		}
		if rsm.Version.AtLeast(1, 3) {
			if err := rr.read("volume box flag", &box.Flag); err != nil {
				return nil, err
			}
		}
	}

	return rsm, nil
}

func parseRSMNode(rr rsmReader, version RSMVersion, node *RSMNode) error {
	var err error
	if node.Name, err = rr.name("node name"); err != nil {
		return err
	}
	if node.Parent, err = rr.name("parent name"); err != nil {
		return err
	}

	n, err := rr.count("node texture", 4)
	if err != nil {
		return err
	}
	node.TextureIDs = make([]int32, n)
	if err := rr.read("node textures", node.TextureIDs); err != nil {
		return err
	}

	if err := rr.read("matrix", &node.Matrix); err != nil {
		return err
	}
	if err := rr.read("offset", &node.Offset); err != nil {
		return err
	}
	if err := rr.read("position", &node.Position); err != nil {
		return err
	}
	if err := rr.read("rotation angle", &node.RotAngle); err != nil {
		return err
	}
	if err := rr.read("rotation axis", &node.RotAxis); err != nil {
		return err
	}
	if err := rr.read("scale", &node.Scale); err != nil {
		return err
	}

	if n, err = rr.count("vertex", 12); err != nil {
		return err
	}
	node.Vertices = make([][3]float32, n)
	if err := rr.read("vertices", node.Vertices); err != nil {
		return err
	}

	tcSize := 8
	if version.AtLeast(1, 2) {
		tcSize += 4
	}
	if n, err = rr.count("texcoord", tcSize); err != nil {
		return err
	}
	node.TexCoords = make([]RSMTexCoord, n)
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		tc.Color = [4]uint8{255, 255, 255, 255}
		if version.AtLeast(1, 2) {
			if err := rr.read("texcoord color", &tc.Color); err != nil {
				return err
			}
		}
		if err := rr.read("texcoord", &tc.U); err != nil {
			return err
		}
		if err := rr.read("texcoord", &tc.V); err != nil {
			return err
		}
	}

	faceSize := 20
	if version.AtLeast(1, 2) {
		faceSize += 4
	}
	if n, err = rr.count("face", faceSize); err != nil {
		return err
	}
	node.Faces = make([]RSMFace, n)
	for i := range node.Faces {
		f := &node.Faces[i]
		if err := rr.read("face vertices", &f.VertexIDs); err != nil {
			return err
		}
		if err := rr.read("face texcoords", &f.TexCoordIDs); err != nil {
			return err
		}
		if err := rr.read("face texture", &f.TextureID); err != nil {
			return err
		}
		if err := rr.read("face padding", &f.Padding); err != nil {
			return err
		}
		if err := rr.read("face two-side flag", &f.TwoSide); err != nil {
			return err
		}
		if version.AtLeast(1, 2) {
			if err := rr.read("face smooth group", &f.SmoothGroup); err != nil {
				return err
			}
		}
	}

	if !version.AtLeast(1, 5) {
		if n, err = rr.count("position key", 16); err != nil {
			return err
		}
		node.PosKeys = make([]RSMPosKeyframe, n)
		if err := rr.read("position keys", node.PosKeys); err != nil {
			return err
		}
	}

	if n, err = rr.count("rotation key", 20); err != nil {
		return err
	}
	node.RotKeys = make([]RSMRotKeyframe, n)
	if err := rr.read("rotation keys", node.RotKeys); err != nil {
		return err
	}

	if version.AtLeast(1, 5) {
		if n, err = rr.count("scale key", 20); err != nil {
			return err
		}
		node.ScaleKeys = make([]RSMScaleKeyframe, n)
		if err := rr.read("scale keys", node.ScaleKeys); err != nil {
			return err
		}
	}

	return nil
}

// ParseRSMFile parses an RSM file from disk.
func ParseRSMFile(path string) (*RSM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading RSM file")
	}
	return ParseRSM(data)
}

// GetTotalVertexCount returns the total number of vertices across all nodes.
func (rsm *RSM) GetTotalVertexCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Vertices)
	}
	return total
}

// GetTotalFaceCount returns the total number of faces across all nodes.
func (rsm *RSM) GetTotalFaceCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Faces)
	}
	return total
}

// GetNodeIndex returns the index of the first node with the given name, or -1.
func (rsm *RSM) GetNodeIndex(name string) int {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return i
		}
	}
	return -1
}

// GetNodeByName returns a node by its name, or nil if not found.
func (rsm *RSM) GetNodeByName(name string) *RSMNode {
	if i := rsm.GetNodeIndex(name); i >= 0 {
		return &rsm.Nodes[i]
	}
	return nil
}

// GetRootNode returns the node named by RootNode.
func (rsm *RSM) GetRootNode() *RSMNode {
	return rsm.GetNodeByName(rsm.RootNode)
}

// GetChildNodes returns all nodes that have the given parent name.
func (rsm *RSM) GetChildNodes(parentName string) []*RSMNode {
	var children []*RSMNode
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Parent == parentName && rsm.Nodes[i].Name != parentName {
			children = append(children, &rsm.Nodes[i])
		}
	}
	return children
}

// HasAnimation reports whether the model animates. A single key is a static
// pose, not an animation.
func (rsm *RSM) HasAnimation() bool {
	if rsm.AnimLength <= 0 {
		return false
	}
	for _, node := range rsm.Nodes {
		if len(node.PosKeys) > 1 || len(node.RotKeys) > 1 || len(node.ScaleKeys) > 1 {
			return true
		}
	}
	return false
}
