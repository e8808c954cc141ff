package engine

import (
	"context"
	"errors"

	"github.com/san-kum/mdscript/internal/script"
)

// Recorder is a dry-run engine. It validates each directive against the
// registry and tracks the resulting state without simulating anything.
//
// A directive that fails leaves the state exactly as it was.
type Recorder struct {
	registry *Registry
	units    string
	strict   bool
	state    *State
}

// NewRecorder starts from the given unit style. When strict is false,
// directives unknown to the registry are kept as settings instead of
// rejected.
func NewRecorder(registry *Registry, units string, strict bool) *Recorder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Recorder{
		registry: registry,
		units:    units,
		strict:   strict,
		state:    NewState(units),
	}
}

func (r *Recorder) Apply(ctx context.Context, d script.Directive) error {
	spec, err := r.registry.Lookup(d.Name)
	if err != nil {
		if r.strict || !errors.Is(err, ErrUnknownDirective) {
			return err
		}
		spec = Spec{Name: d.Name, MaxArgs: Unbounded, Apply: applySetting}
	}
	if err := spec.Check(d); err != nil {
		return err
	}

	next := r.state.clone()
	if err := spec.Apply(next, d); err != nil {
		return err
	}
	next.Applied++
	r.state = next
	return nil
}

func (r *Recorder) State() *State { return r.state }

func (r *Recorder) Reset() { r.state = NewState(r.units) }
