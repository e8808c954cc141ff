package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/mdscript/internal/engine"
	"github.com/san-kum/mdscript/internal/script"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Manifest lists scripts to check together.
type Manifest struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Scripts     []Entry `yaml:"scripts"`
}

// Entry is one script of a manifest. Units overrides the configured unit
// style for that script only.
type Entry struct {
	Path  string `yaml:"path"`
	Units string `yaml:"units"`
}

// LoadManifest reads a manifest and resolves script paths relative to it.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m.Scripts) == 0 {
		return nil, fmt.Errorf("%s: manifest lists no scripts", path)
	}

	dir := filepath.Dir(path)
	for i, e := range m.Scripts {
		if e.Path == "" {
			return nil, fmt.Errorf("%s: script %d has no path", path, i+1)
		}
		if !filepath.IsAbs(e.Path) {
			m.Scripts[i].Path = filepath.Join(dir, e.Path)
		}
	}
	return &m, nil
}

type Options struct {
	Units    string
	Strict   bool
	Workers  int
	Registry func() *engine.Registry
}

type Result struct {
	Path    string
	Applied int
	Total   int
	State   *engine.State
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

// Check parses and dry-runs every script of the manifest with at most
// opts.Workers scripts in flight. Results keep manifest order.
func Check(ctx context.Context, m *Manifest, opts Options) []Result {
	results := make([]Result, len(m.Scripts))

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	newRegistry := opts.Registry
	if newRegistry == nil {
		newRegistry = engine.NewRegistry
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, e := range m.Scripts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Path: e.Path, Err: err}
				return nil
			}
			units := opts.Units
			if e.Units != "" {
				units = e.Units
			}
			results[i] = checkOne(ctx, e.Path, units, opts.Strict, newRegistry())
			return nil
		})
	}

	// per-script failures live in results; the group never fails
	_ = g.Wait()
	return results
}

func checkOne(ctx context.Context, path, units string, strict bool, reg *engine.Registry) Result {
	res := Result{Path: path}

	s, err := script.ParseFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Total = s.Len()

	rec := engine.NewRecorder(reg, units, strict)
	res.Applied, res.Err = engine.NewSequencer(rec, nil).Run(ctx, s.Directives)
	res.State = rec.State()
	return res
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
