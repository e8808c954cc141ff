package engine

import (
	"fmt"
	"sort"

	"github.com/san-kum/mdscript/internal/script"
)

// Unbounded as MaxArgs accepts any number of trailing arguments.
const Unbounded = -1

// Handler applies an already arity-checked directive to the state.
type Handler func(st *State, d script.Directive) error

type Spec struct {
	Name    string
	MinArgs int
	MaxArgs int
	Summary string
	Apply   Handler
}

// Check validates the argument count.
func (s Spec) Check(d script.Directive) error {
	n := len(d.Args)
	if n < s.MinArgs {
		return malformed("expected at least %d arguments, got %d", s.MinArgs, n)
	}
	if s.MaxArgs != Unbounded && n > s.MaxArgs {
		return malformed("expected at most %d arguments, got %d", s.MaxArgs, n)
	}
	return nil
}

type Registry struct {
	specs map[string]Spec
}

// NewRegistry returns a registry with every directive the recorder models.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}

	// system setup, recorded verbatim
	r.Passthrough("atom_style", 1, "atom attributes")
	r.Passthrough("boundary", 3, "boundary conditions per dimension")
	r.Passthrough("dimension", 1, "2d or 3d")
	r.Passthrough("read_data", 1, "read atoms and topology from a data file")
	r.Passthrough("read_restart", 1, "read a restart file")
	r.Passthrough("pair_style", 1, "pairwise interaction style")
	r.Passthrough("pair_coeff", 2, "pairwise coefficients")
	r.Passthrough("bond_style", 1, "bond interaction style")
	r.Passthrough("bond_coeff", 1, "bond coefficients")
	r.Passthrough("angle_style", 1, "angle interaction style")
	r.Passthrough("angle_coeff", 1, "angle coefficients")
	r.Passthrough("kspace_style", 1, "long-range solver")
	r.Passthrough("special_bonds", 1, "special neighbor weighting")
	r.Passthrough("neighbor", 2, "neighbor list skin")
	r.Passthrough("neigh_modify", 1, "neighbor list options")
	r.Passthrough("group", 2, "define an atom group")
	r.Passthrough("variable", 2, "define a variable")
	r.Passthrough("print", 1, "print text")
	r.Passthrough("log", 1, "switch log file")
	r.Passthrough("write_data", 1, "write a data file")
	r.Passthrough("write_restart", 1, "write a restart file")

	r.Register(Spec{Name: "units", MinArgs: 1, MaxArgs: 1, Summary: "unit style", Apply: applyUnits})
	r.Register(Spec{Name: "clear", MinArgs: 0, MaxArgs: 0, Summary: "reset all settings", Apply: applyClear})
	r.Register(Spec{Name: "min_style", MinArgs: 1, MaxArgs: 1, Summary: "minimization algorithm", Apply: applyMinStyle})
	r.Register(Spec{Name: "min_modify", MinArgs: 2, MaxArgs: Unbounded, Summary: "minimizer options", Apply: applyMinModify})
	r.Register(Spec{Name: "compute", MinArgs: 3, MaxArgs: Unbounded, Summary: "register a derived computation", Apply: applyCompute})
	r.Register(Spec{Name: "uncompute", MinArgs: 1, MaxArgs: 1, Summary: "delete a compute", Apply: applyUncompute})
	r.Register(Spec{Name: "thermo_style", MinArgs: 1, MaxArgs: Unbounded, Summary: "thermo output columns", Apply: applyThermoStyle})
	r.Register(Spec{Name: "thermo_modify", MinArgs: 2, MaxArgs: Unbounded, Summary: "thermo output options", Apply: applyThermoModify})
	r.Register(Spec{Name: "thermo", MinArgs: 1, MaxArgs: 1, Summary: "thermo output cadence", Apply: applyThermo})
	r.Register(Spec{Name: "dump", MinArgs: 5, MaxArgs: Unbounded, Summary: "register a snapshot output stream", Apply: applyDump})
	r.Register(Spec{Name: "dump_modify", MinArgs: 3, MaxArgs: Unbounded, Summary: "dump options", Apply: applyDumpModify})
	r.Register(Spec{Name: "undump", MinArgs: 1, MaxArgs: 1, Summary: "close a dump", Apply: applyUndump})
	r.Register(Spec{Name: "minimize", MinArgs: 4, MaxArgs: 4, Summary: "run an energy minimization", Apply: applyMinimize})
	r.Register(Spec{Name: "velocity", MinArgs: 2, MaxArgs: Unbounded, Summary: "set atom velocities", Apply: applyVelocity})
	r.Register(Spec{Name: "timestep", MinArgs: 1, MaxArgs: 1, Summary: "integration timestep", Apply: applyTimestep})
	r.Register(Spec{Name: "fix", MinArgs: 3, MaxArgs: Unbounded, Summary: "register a fix (integrator, thermostat, constraint)", Apply: applyFix})
	r.Register(Spec{Name: "unfix", MinArgs: 1, MaxArgs: 1, Summary: "delete a fix", Apply: applyUnfix})
	r.Register(Spec{Name: "run", MinArgs: 1, MaxArgs: Unbounded, Summary: "run dynamics for N steps", Apply: applyRun})
	r.Register(Spec{Name: "reset_timestep", MinArgs: 1, MaxArgs: 1, Summary: "set the current step", Apply: applyResetTimestep})

	return r
}

func (r *Registry) Register(s Spec) { r.specs[s.Name] = s }

// Passthrough registers a directive that is only arity-checked and kept as
// a setting.
func (r *Registry) Passthrough(name string, minArgs int, summary string) {
	r.Register(Spec{
		Name:    name,
		MinArgs: minArgs,
		MaxArgs: Unbounded,
		Summary: summary,
		Apply:   applySetting,
	})
}

func (r *Registry) Lookup(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownDirective, name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
