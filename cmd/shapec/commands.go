package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shape/internal/assets"
	"github.com/Faultbox/midgard-shape/internal/batch"
	"github.com/Faultbox/midgard-shape/internal/config"
	"github.com/Faultbox/midgard-shape/internal/importer"
	"github.com/Faultbox/midgard-shape/internal/importer/rsm"
	"github.com/Faultbox/midgard-shape/internal/loader"
	"github.com/Faultbox/midgard-shape/internal/logger"
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

var spewConfig = &spew.ConfigState{
	Indent:            " ",
	DisableCapacities: true,
	SortKeys:          true,
}

// loaderOptions maps the config onto loader options.
func loaderOptions(cfg *config.Config) loader.Options {
	l := cfg.Loader
	return loader.Options{
		MinFrameRate:     l.MinFrameRate,
		MaxFrameRate:     l.MaxFrameRate,
		DefaultFrameRate: l.DefaultFrameRate,
		GroundFrameRate:  l.GroundFrameRate,
		Tolerance:        l.Tolerance,
		FixDetailSize:    l.FixDetailSize,
		FixedDetailSize:  l.FixedDetailSize,
		MaxNodes:         l.MaxNodes,
		Logger:           logger.Named("loader"),
	}
}

// importerFlags registers per-format flags on fs.
func importerFlags(fs *flag.FlagSet) *importer.Options {
	opts := &importer.Options{}
	fs.BoolVar(&opts.RSM.ForceTwoSided, "two-sided", false, "Emit back faces for every RSM face")
	fs.BoolVar(&opts.RSM.ReverseWinding, "reverse-winding", false, "Flip RSM triangle winding")
	fs.StringVar(&opts.RSM.SequenceName, "rsm-sequence", rsm.DefaultSequenceName, "Name of the RSM keyframe clip")
	return opts
}

// openSources adds the configured data paths followed by extra, so entries
// named on the command line take priority.
func openSources(cfg *config.Config, extra []string) (*assets.Manager, error) {
	m := assets.NewManager()
	for _, p := range append(append([]string(nil), cfg.Data.GRFPaths...), extra...) {
		if err := m.Add(p); err != nil {
			m.Close()
			return nil, err
		}
		logger.Debug("source added", zap.String("path", p))
	}
	return m, nil
}

// readModel reads name from disk when the file exists, else from sources.
func readModel(cfg *config.Config, name string) ([]byte, error) {
	if data, err := os.ReadFile(name); err == nil {
		return data, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	m, err := openSources(cfg, nil)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.Load(name)
}

func compileModel(cfg *config.Config, name string, opts importer.Options, progress bool) (*shape.Shape, error) {
	data, err := readModel(cfg, name)
	if err != nil {
		return nil, err
	}
	imp, err := importer.New(name, data, opts)
	if err != nil {
		return nil, err
	}

	lopts := loaderOptions(cfg)
	lopts.Logger = logger.ForShape("loader", name)
	if progress {
		lopts.Progress = func(p loader.Progress) {
			logger.Info(p.Message,
				zap.Stringer("phase", p.Phase),
				zap.Int("minor", p.Minor),
				zap.Int("of", p.NumMinor))
		}
	}
	start := time.Now()
	sh, diags, err := loader.Compile(imp, lopts)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %s", name)
	}

	warnings := 0
	for _, d := range diags {
		if d.Severity == loader.SeverityWarning {
			warnings++
		}
	}
	logger.Info("compiled",
		zap.String("model", name),
		zap.Int("nodes", len(sh.Nodes)),
		zap.Int("objects", len(sh.Objects)),
		zap.Int("sequences", len(sh.Sequences)),
		zap.Int("warnings", warnings),
		zap.Duration("elapsed", time.Since(start)))
	return sh, nil
}

func cmdCompile(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("o", "", "Write the summary to this file instead of stdout")
	progress := fs.Bool("progress", false, "Log pipeline progress")
	opts := importerFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: shapec compile [options] <model>")
	}
	sh, err := compileModel(cfg, fs.Arg(0), *opts, *progress)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
			return err
		}
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return sh.WriteYAML(w)
}

func cmdDump(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	seq := fs.String("seq", "", "Dump only the named sequence")
	node := fs.String("node", "", "Dump only the named node")
	opts := importerFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: shapec dump [options] <model>")
	}
	sh, err := compileModel(cfg, fs.Arg(0), *opts, false)
	if err != nil {
		return err
	}

	switch {
	case *seq != "":
		i := sh.SequenceIndex(*seq)
		if i < 0 {
			return errors.Errorf("no sequence %q", *seq)
		}
		spewConfig.Fdump(os.Stdout, sh.Sequences[i])
	case *node != "":
		i := sh.NodeIndex(*node)
		if i < 0 {
			return errors.Errorf("no node %q", *node)
		}
		spewConfig.Fdump(os.Stdout, sh.Nodes[i])
	default:
		spewConfig.Fdump(os.Stdout, sh)
	}
	return nil
}

// matchModels returns a filter accepting supported models whose name
// contains match, case-insensitively.
func matchModels(match string) func(string) bool {
	match = strings.ToLower(match)
	return func(name string) bool {
		return importer.Supported(name) && strings.Contains(strings.ToLower(name), match)
	}
}

func cmdBatch(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	match := fs.String("match", "", "Only compile models whose path contains this text")
	manifest := fs.String("manifest", "", "Manifest path (default <out>/manifest.yaml)")
	opts := importerFlags(fs)
	fs.Parse(args)

	m, err := openSources(cfg, fs.Args())
	if err != nil {
		return err
	}
	defer m.Close()
	if m.Len() == 0 {
		return errors.New("no sources: name a directory or GRF archive, or set data.grf_paths")
	}

	found, err := m.Find(matchModels(*match))
	if err != nil {
		return err
	}
	names := make([]string, len(found))
	for i, a := range found {
		names[i] = a.Name
	}
	logger.Info("batch starting", zap.Int("models", len(names)), zap.Int("workers", cfg.Batch.Workers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lopts := loaderOptions(cfg)
	results, runErr := batch.Run(ctx, batch.Config{
		Source:      m,
		OutputDir:   cfg.Batch.OutputDir,
		Workers:     cfg.Batch.Workers,
		Loader:      lopts,
		Importer:    *opts,
		Logger:      lopts.Logger,
		ReportEvery: 2 * time.Second,
	}, names)

	if *manifest == "" {
		*manifest = filepath.Join(cfg.Batch.OutputDir, "manifest.yaml")
	}
	if err := batch.WriteManifest(*manifest, results); err != nil {
		return err
	}

	failed := 0
	for i := range results {
		if results[i].Err != nil {
			failed++
			logger.Warn("compile failed", zap.String("model", results[i].Name), zap.Error(results[i].Err))
		}
	}
	fmt.Fprintf(os.Stderr, "\nCompiled %d of %d models, manifest: %s\n", len(results)-failed, len(results), *manifest)
	if runErr != nil && failed == len(results) {
		return errors.Errorf("all %d models failed", failed)
	}
	return nil
}

func cmdInfo(cfg *config.Config, args []string) error {
	m, err := openSources(cfg, args)
	if err != nil {
		return err
	}
	defer m.Close()

	found, err := m.Find(importer.Supported)
	if err != nil {
		return err
	}

	bySource := make(map[string]map[string]int)
	var sources []string
	for _, a := range found {
		if bySource[a.Source] == nil {
			bySource[a.Source] = make(map[string]int)
			sources = append(sources, a.Source)
		}
		bySource[a.Source][strings.ToLower(path.Ext(a.Name))]++
	}
	sort.Strings(sources)

	fmt.Printf("Sources: %d\n", m.Len())
	fmt.Printf("Models:  %d\n", len(found))
	for _, s := range sources {
		fmt.Printf("\n%s\n", s)
		for _, ext := range importer.Extensions {
			if n := bySource[s][ext]; n > 0 {
				fmt.Printf("  %-6s %d\n", ext, n)
			}
		}
	}
	return nil
}

func cmdList(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	match := fs.String("match", "", "Only list models whose path contains this text")
	limit := fs.Int("n", 0, "Limit output to N models (0 = all)")
	fs.Parse(args)

	m, err := openSources(cfg, fs.Args())
	if err != nil {
		return err
	}
	defer m.Close()

	found, err := m.Find(matchModels(*match))
	if err != nil {
		return err
	}
	for i, a := range found {
		if *limit > 0 && i >= *limit {
			fmt.Fprintf(os.Stderr, "\n(showing first %d of %d, use -n 0 for all)\n", *limit, len(found))
			break
		}
		fmt.Println(a.Name)
	}
	return nil
}

func cmdInitConfig(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", args[0])
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	return nil
}
