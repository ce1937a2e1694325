// Package loader compiles an importer scene into a packed shape.
//
// A Loader runs a fixed forward pipeline: read, enumerate, partition into
// subshapes, generate objects, skins and materials, sample default states,
// generate sequences and install the result. One Loader compiles one shape at
// a time; independent shapes use independent loaders.
package loader

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shape/pkg/scene"
	"github.com/Faultbox/midgard-shape/pkg/shape"
	"github.com/Faultbox/midgard-shape/pkg/xform"
)

// Frame-rate and limit defaults.
const (
	DefaultMinFrameRate    = 15
	DefaultMaxFrameRate    = 60
	DefaultFrameRate       = 30
	DefaultGroundFrameRate = 10
	DefaultTolerance       = 1e-4
	DefaultMaxNodes        = 2048
	DefaultDetailSize      = 2
)

// ErrEmptyScene is returned when the scene has no root nodes.
var ErrEmptyScene = errors.New("scene has no root nodes")

// Options configures a Loader.
type Options struct {
	MinFrameRate     float32
	MaxFrameRate     float32
	DefaultFrameRate float32
	GroundFrameRate  float32
	// Tolerance bounds the per-component difference under which two
	// transform channels are considered equal.
	Tolerance float32
	// FixDetailSize forces every detail mesh to FixedDetailSize.
	FixDetailSize   bool
	FixedDetailSize int
	MaxNodes        int

	Logger   *zap.Logger
	Progress ProgressFunc
}

// DefaultOptions returns the standard loader settings.
func DefaultOptions() Options {
	return Options{
		MinFrameRate:     DefaultMinFrameRate,
		MaxFrameRate:     DefaultMaxFrameRate,
		DefaultFrameRate: DefaultFrameRate,
		GroundFrameRate:  DefaultGroundFrameRate,
		Tolerance:        DefaultTolerance,
		MaxNodes:         DefaultMaxNodes,
	}
}

// Loader compiles scenes into shapes.
type Loader struct {
	opts  Options
	log   *zap.Logger
	phase Phase
	diags []Diagnostic

	imp   scene.Importer
	scene *scene.Scene

	nodes        []nodeRec
	sceneToShape []int
	attach       []int
	meshNode     []int
	nameToShape  map[string]int
	subshapes    []*subshapeRec

	objects       []objectRec
	skinMeshes    []skinCandidate
	meshes        []pendingMesh
	materials     shape.MaterialList
	materialRemap []int

	defaults      []xform.Transform
	defaultStates []shape.ObjectState
	bounds        shape.Box
	radius        float32

	sampler   *sampler
	cache     *transformCache
	sequences []shape.Sequence
	scale     xform.ScaleKind
}

// nodeRec is a shape node before install. scene is the scene node it was
// created from.
type nodeRec struct {
	name     string
	scene    int
	parent   int
	subshape int
}

type subshapeRec struct {
	firstNode int
	numNodes  int
	roots     []int
	meshes    []int
	details   []shape.Detail
	objects   []int
}

// New returns a Loader with the given options. Zero-valued numeric options
// fall back to their defaults.
func New(opts Options) *Loader {
	def := DefaultOptions()
	if opts.MinFrameRate <= 0 {
		opts.MinFrameRate = def.MinFrameRate
	}
	if opts.MaxFrameRate <= 0 {
		opts.MaxFrameRate = def.MaxFrameRate
	}
	if opts.MaxFrameRate < opts.MinFrameRate {
		opts.MaxFrameRate = opts.MinFrameRate
	}
	if opts.DefaultFrameRate <= 0 {
		opts.DefaultFrameRate = def.DefaultFrameRate
	}
	if opts.GroundFrameRate <= 0 {
		opts.GroundFrameRate = def.GroundFrameRate
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{opts: opts, log: log}
}

// Compile is a convenience wrapper running a new Loader over imp.
func Compile(imp scene.Importer, opts Options) (*shape.Shape, []Diagnostic, error) {
	l := New(opts)
	sh, err := l.Compile(imp)
	return sh, l.Diagnostics(), err
}

// Diagnostics returns the warnings and notes recorded by the last Compile.
func (l *Loader) Diagnostics() []Diagnostic {
	return l.diags
}

// Compile runs the whole pipeline over imp. On a fatal error it returns a nil
// shape; recoverable problems are recorded as diagnostics.
func (l *Loader) Compile(imp scene.Importer) (*shape.Shape, error) {
	l.reset()
	l.imp = imp

	l.enter(PhaseRead, "Reading source")
	if err := imp.Read(); err != nil {
		return nil, errors.Wrap(err, "read source")
	}

	l.enter(PhaseEnumerate, "Enumerating scene")
	sc, err := imp.Enumerate()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate scene")
	}
	if sc == nil || len(sc.Roots) == 0 {
		return nil, ErrEmptyScene
	}
	if err := checkScene(sc); err != nil {
		return nil, err
	}
	l.scene = sc

	l.enter(PhaseSubshapes, "Generating subshapes")
	l.generateSubshapes()

	l.enter(PhaseObjects, "Generating objects")
	l.generateObjects()

	l.enter(PhaseSkins, "Generating skins")
	l.generateSkins()
	l.orderObjects()

	l.enter(PhaseMaterials, "Generating materials")
	l.generateMaterials()

	l.enter(PhaseDefaultStates, "Generating default states")
	l.sampler = newSampler(sc, l.nodes)
	l.generateDefaultStates()

	l.enter(PhaseSequences, "Generating sequences")
	l.generateSequences()

	l.enter(PhaseInstall, "Installing shape")
	sh := l.install()

	l.enter(PhaseComplete, "Load complete")
	l.log.Debug("shape compiled",
		zap.String("shape", sh.Name),
		zap.Int("nodes", len(sh.Nodes)),
		zap.Int("objects", len(sh.Objects)),
		zap.Int("sequences", len(sh.Sequences)),
		zap.Int("warnings", l.warningCount()))
	return sh, nil
}

func (l *Loader) reset() {
	opts, log := l.opts, l.log
	*l = Loader{opts: opts, log: log}
}

// checkScene validates the index links of a scene. Broken links are fatal
// since nothing downstream can recover a hierarchy from them.
func checkScene(sc *scene.Scene) error {
	n := len(sc.Nodes)
	for _, r := range sc.Roots {
		if r < 0 || r >= n {
			return errors.Errorf("root index %d out of range", r)
		}
	}
	for i := range sc.Nodes {
		for _, c := range sc.Nodes[i].Children {
			if c < 0 || c >= n || c == i {
				return errors.Errorf("node %q: child index %d out of range", sc.Nodes[i].Name, c)
			}
		}
		for _, m := range sc.Nodes[i].Meshes {
			if m < 0 || m >= len(sc.Meshes) {
				return errors.Errorf("node %q: mesh index %d out of range", sc.Nodes[i].Name, m)
			}
		}
	}
	if sc.Bounds >= n {
		return errors.Errorf("bounds node %d out of range", sc.Bounds)
	}
	return nil
}

func (l *Loader) enter(p Phase, msg string) {
	l.phase = p
	l.log.Debug(msg, zap.Stringer("phase", p))
	l.progress(msg, 0, 0)
}

func (l *Loader) progress(msg string, numMinor, minor int) {
	if l.opts.Progress != nil {
		l.opts.Progress(Progress{Phase: l.phase, Message: msg, NumMinor: numMinor, Minor: minor})
	}
}

// sceneNodeName returns a printable name for scene node i.
func (l *Loader) sceneNodeName(i int) string {
	if i < 0 || i >= len(l.scene.Nodes) {
		return fmt.Sprintf("#%d", i)
	}
	return l.scene.Nodes[i].Name
}

// identity is used for roots without a bounds node.
var identity = mgl32.Ident4()
