// Package batch compiles many independent shapes with a worker pool.
package batch

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-shape/internal/importer"
	"github.com/Faultbox/midgard-shape/internal/loader"
	"github.com/Faultbox/midgard-shape/pkg/shape"
)

// Source loads source files by name.
type Source interface {
	Load(name string) ([]byte, error)
}

// Config holds all shared resources for a batch run. Nothing in it is
// mutated by workers.
type Config struct {
	Source Source
	// OutputDir receives one YAML summary per shape, mirroring the source
	// path. Empty disables output.
	OutputDir string
	Workers   int
	Loader    loader.Options
	Importer  importer.Options
	Logger    *zap.Logger
	// ReportEvery is the progress log interval; zero disables it.
	ReportEvery time.Duration
	// KeepShapes retains compiled shapes in the results.
	KeepShapes bool
}

// Result holds the outcome of compiling one source.
type Result struct {
	Name        string
	Output      string
	Shape       *shape.Shape
	Summary     *shape.Summary
	Diagnostics []loader.Diagnostic
	Elapsed     time.Duration
	Err         error
}

// Warnings counts warning diagnostics.
func (r *Result) Warnings() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == loader.SeverityWarning {
			n++
		}
	}
	return n
}

// Run compiles every named source using a worker pool. Results keep the
// order of names. The returned error combines every failed job; a cancelled
// context stops the remaining jobs, which report ctx.Err().
func Run(ctx context.Context, cfg Config, names []string) ([]Result, error) {
	if cfg.Source == nil {
		return nil, errors.New("batch: no source")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	total := len(names)
	results := make([]Result, total)
	var processed, failed atomic.Int64
	start := time.Now()

	done := make(chan struct{})
	if cfg.ReportEvery > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ReportEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					p := processed.Load()
					if p > 0 {
						log.Info("batch progress",
							zap.Int64("done", p),
							zap.Int("total", total),
							zap.Int64("failed", failed.Load()),
							zap.Float64("shapes_per_sec", float64(p)/time.Since(start).Seconds()))
					}
				}
			}
		}()
	}

	jobs := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results[idx] = Result{Name: names[idx], Err: err}
				} else {
					results[idx] = compileOne(cfg, log, names[idx])
				}
				if results[idx].Err != nil {
					failed.Add(1)
				}
				processed.Add(1)
			}
		}()
	}

	for i := range names {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(done)

	var err error
	for i := range results {
		if results[i].Err != nil {
			err = multierr.Append(err, errors.Wrap(results[i].Err, results[i].Name))
		}
	}
	log.Info("batch finished",
		zap.Int("total", total),
		zap.Int64("failed", failed.Load()),
		zap.Duration("elapsed", time.Since(start)))
	return results, err
}

func compileOne(cfg Config, log *zap.Logger, name string) (res Result) {
	res.Name = name
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	data, err := cfg.Source.Load(name)
	if err != nil {
		res.Err = err
		return res
	}
	imp, err := importer.New(name, data, cfg.Importer)
	if err != nil {
		res.Err = err
		return res
	}

	opts := cfg.Loader
	opts.Logger = log.With(zap.String("shape", name))
	opts.Progress = nil
	sh, diags, err := loader.Compile(imp, opts)
	res.Diagnostics = diags
	if err != nil {
		res.Err = err
		return res
	}
	sum := sh.Summarize()
	res.Summary = &sum
	if cfg.KeepShapes {
		res.Shape = sh
	}

	if cfg.OutputDir != "" {
		out := OutputPath(cfg.OutputDir, name)
		if err := writeSummary(out, sh); err != nil {
			res.Err = err
			return res
		}
		res.Output = out
	}
	return res
}

// OutputPath maps a source name to its summary path under dir.
func OutputPath(dir, name string) string {
	rel := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	rel = strings.TrimSuffix(rel, path.Ext(rel)) + ".yaml"
	return filepath.Join(dir, filepath.FromSlash(rel))
}

func writeSummary(out string, sh *shape.Shape) (err error) {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "creating summary")
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return errors.Wrap(sh.WriteYAML(f), "writing summary")
}
