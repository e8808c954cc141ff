package engine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/san-kum/mdscript/internal/script"
)

var (
	minStyles = map[string]bool{
		"cg": true, "hftn": true, "sd": true, "quickmin": true, "fire": true, "spin": true,
	}

	thermoStyles = map[string]bool{
		"one": true, "multi": true, "yaml": true, "custom": true,
	}

	// Fix styles that move atoms each step. Thermostats like langevin only
	// add forces and need one of these alongside.
	integratorStyles = map[string]bool{
		"nve": true, "nvt": true, "npt": true, "nph": true,
		"nve/limit": true, "nve/sphere": true, "rigid": true, "rigid/nve": true,
	}

	reduceModes = map[string]bool{
		"sum": true, "min": true, "max": true, "ave": true,
		"sumsq": true, "avesq": true, "sumabs": true, "aveabs": true,
	}

	velocityKeywords = map[string]bool{
		"dist": true, "sum": true, "mom": true, "rot": true, "temp": true,
		"bias": true, "loop": true, "rigid": true, "units": true,
	}
)

func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

func parseCount(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, malformed("%s must be a non-negative integer, got %q", name, s)
	}
	return n, nil
}

func parseFloat(name, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, malformed("%s must be a number, got %q", name, s)
	}
	return f, nil
}

func applySetting(st *State, d script.Directive) error {
	st.Settings = append(st.Settings, Setting{Name: d.Name, Args: append([]string(nil), d.Args...)})
	return nil
}

func applyUnits(st *State, d script.Directive) error {
	u := d.Args[0]
	if !knownUnits(u) {
		return malformed("unknown unit style %q", u)
	}
	st.Units = u
	if !st.TimestepSet {
		st.Timestep = DefaultTimestep(u)
	}
	return nil
}

// applyClear drops every definition but keeps the phase history.
func applyClear(st *State, d script.Directive) error {
	phases, applied := st.Phases, st.Applied
	*st = *NewState(DefaultUnits)
	st.Phases, st.Applied = phases, applied
	return nil
}

func applyMinStyle(st *State, d script.Directive) error {
	if !minStyles[d.Args[0]] {
		return malformed("unknown min_style %q", d.Args[0])
	}
	st.MinStyle = d.Args[0]
	return nil
}

func applyMinModify(st *State, d script.Directive) error {
	st.MinModify = append(st.MinModify, d.Args...)
	return nil
}

func applyCompute(st *State, d script.Directive) error {
	id, group, style := d.Args[0], d.Args[1], d.Args[2]
	if !validID(id) {
		return malformed("invalid compute ID %q", id)
	}
	if _, ok := st.Compute(id); ok {
		return duplicate("compute", id)
	}
	rest := d.Args[3:]

	switch style {
	case "reduce", "reduce/region":
		if len(rest) < 2 {
			return malformed("compute %s needs a mode and at least one input", style)
		}
		mode := rest[0]
		if style == "reduce/region" {
			if len(rest) < 3 {
				return malformed("compute reduce/region needs a region, a mode and an input")
			}
			mode = rest[1]
		}
		if !reduceModes[mode] {
			return malformed("unknown reduce mode %q", mode)
		}
	case "bond/local", "angle/local", "pair/local":
		if len(rest) == 0 {
			return malformed("compute %s needs at least one value", style)
		}
	}

	for _, a := range rest {
		if err := st.checkReference(a); err != nil {
			return err
		}
	}

	st.Computes = append(st.Computes, Compute{ID: id, Group: group, Style: style, Args: append([]string(nil), rest...)})
	return nil
}

func applyUncompute(st *State, d script.Directive) error {
	id := d.Args[0]
	for i, c := range st.Computes {
		if c.ID == id {
			st.Computes = append(st.Computes[:i], st.Computes[i+1:]...)
			return nil
		}
	}
	return undefined("compute", id)
}

func applyThermoStyle(st *State, d script.Directive) error {
	style := d.Args[0]
	if !thermoStyles[style] {
		return malformed("unknown thermo_style %q", style)
	}
	cols := d.Args[1:]
	switch style {
	case "custom":
		if len(cols) == 0 {
			return malformed("thermo_style custom needs at least one column")
		}
		for _, c := range cols {
			if err := st.checkReference(c); err != nil {
				return err
			}
		}
	default:
		if len(cols) != 0 {
			return malformed("thermo_style %s takes no columns", style)
		}
		cols = thermoOneColumns()
	}
	st.Thermo = ThermoStyle{Style: style, Columns: append([]string(nil), cols...)}
	return nil
}

func applyThermoModify(st *State, d script.Directive) error {
	st.ThermoModify = append(st.ThermoModify, d.Args...)
	return nil
}

func applyThermo(st *State, d script.Directive) error {
	n, err := parseCount("thermo interval", d.Args[0])
	if err != nil {
		return err
	}
	st.ThermoEvery = n
	return nil
}

func applyDump(st *State, d script.Directive) error {
	id, group, style := d.Args[0], d.Args[1], d.Args[2]
	if !validID(id) {
		return malformed("invalid dump ID %q", id)
	}
	if st.dumpIndex(id) >= 0 {
		return duplicate("dump", id)
	}
	every, err := parseCount("dump interval", d.Args[3])
	if err != nil {
		return err
	}
	if every == 0 {
		return malformed("dump interval must be positive")
	}
	rest := d.Args[5:]
	switch style {
	case "custom", "local", "cfg":
		if len(rest) == 0 {
			return malformed("dump %s needs at least one field", style)
		}
	case "dcd", "xtc":
		if len(rest) != 0 {
			return malformed("dump %s takes no fields", style)
		}
	}
	for _, a := range rest {
		if err := st.checkReference(a); err != nil {
			return err
		}
	}

	st.Dumps = append(st.Dumps, Dump{
		ID:    id,
		Group: group,
		Style: style,
		Every: every,
		File:  d.Args[4],
		Args:  append([]string(nil), rest...),
	})
	return nil
}

func applyDumpModify(st *State, d script.Directive) error {
	i := st.dumpIndex(d.Args[0])
	if i < 0 {
		return undefined("dump", d.Args[0])
	}
	opts := d.Args[1:]
	for j := 0; j+1 < len(opts); j++ {
		if opts[j] != "every" {
			continue
		}
		every, err := parseCount("dump_modify every", opts[j+1])
		if err != nil {
			return err
		}
		if every == 0 {
			return malformed("dump_modify every must be positive")
		}
		st.Dumps[i].Every = every
	}
	st.Dumps[i].Modify = append(st.Dumps[i].Modify, opts...)
	return nil
}

func applyUndump(st *State, d script.Directive) error {
	i := st.dumpIndex(d.Args[0])
	if i < 0 {
		return undefined("dump", d.Args[0])
	}
	st.Dumps = append(st.Dumps[:i], st.Dumps[i+1:]...)
	return nil
}

func applyMinimize(st *State, d script.Directive) error {
	etol, err := parseFloat("etol", d.Args[0])
	if err != nil {
		return err
	}
	ftol, err := parseFloat("ftol", d.Args[1])
	if err != nil {
		return err
	}
	if etol < 0 || ftol < 0 {
		return malformed("tolerances must be non-negative")
	}
	maxiter, err := parseCount("maxiter", d.Args[2])
	if err != nil {
		return err
	}
	maxeval, err := parseCount("maxeval", d.Args[3])
	if err != nil {
		return err
	}
	if maxiter == 0 || maxeval == 0 {
		return malformed("maxiter and maxeval must be positive")
	}
	if maxiter > MaxPhaseSteps || maxeval > MaxPhaseSteps {
		return malformed("maxiter and maxeval must not exceed %d", int64(MaxPhaseSteps))
	}

	p, err := newPhase(st, PhaseMinimize, d.Line, maxiter)
	if err != nil {
		return err
	}
	st.Phases = append(st.Phases, p)
	st.Step = p.EndStep()
	return nil
}

func applyVelocity(st *State, d script.Directive) error {
	group, mode := d.Args[0], d.Args[1]
	rest := d.Args[2:]

	var positional int
	switch mode {
	case "create":
		positional = 2
	case "set":
		positional = 3
	case "scale", "zero":
		positional = 1
	case "ramp":
		positional = 6
	default:
		return malformed("unknown velocity mode %q", mode)
	}
	if len(rest) < positional {
		return malformed("velocity %s needs %d values, got %d", mode, positional, len(rest))
	}

	if mode == "create" {
		temp, err := parseFloat("temperature", rest[0])
		if err != nil {
			return err
		}
		if temp < 0 {
			return malformed("temperature must be non-negative")
		}
		seed, err := parseCount("seed", rest[1])
		if err != nil {
			return err
		}
		if seed == 0 {
			return malformed("seed must be positive")
		}
	}

	kw := rest[positional:]
	if len(kw)%2 != 0 {
		return malformed("velocity keywords must come in keyword/value pairs")
	}
	for i := 0; i < len(kw); i += 2 {
		if !velocityKeywords[kw[i]] {
			return malformed("unknown velocity keyword %q", kw[i])
		}
		if kw[i] == "dist" && kw[i+1] != "uniform" && kw[i+1] != "gaussian" {
			return malformed("velocity dist must be uniform or gaussian, got %q", kw[i+1])
		}
		if kw[i] == "temp" {
			if _, ok := st.Compute(kw[i+1]); !ok {
				return undefined("compute", kw[i+1])
			}
		}
	}

	st.Velocities = append(st.Velocities, Velocity{Group: group, Mode: mode, Args: append([]string(nil), rest...)})
	return nil
}

func applyTimestep(st *State, d script.Directive) error {
	dt, err := parseFloat("timestep", d.Args[0])
	if err != nil {
		return err
	}
	if dt <= 0 {
		return malformed("timestep must be positive, got %g", dt)
	}
	st.Timestep = dt
	st.TimestepSet = true
	return nil
}

// applyFix replaces a fix with the same ID and style, as engines allow
// redefining a fix in place.
func applyFix(st *State, d script.Directive) error {
	id, group, style := d.Args[0], d.Args[1], d.Args[2]
	if !validID(id) {
		return malformed("invalid fix ID %q", id)
	}
	rest := d.Args[3:]
	for _, a := range rest {
		if err := st.checkReference(a); err != nil {
			return err
		}
	}
	f := Fix{ID: id, Group: group, Style: style, Args: append([]string(nil), rest...)}

	for i, existing := range st.Fixes {
		if existing.ID != id {
			continue
		}
		if existing.Style != style {
			return fmt.Errorf("%w: fix %q redefined with style %s (was %s)", ErrDuplicateID, id, style, existing.Style)
		}
		st.Fixes[i] = f
		return nil
	}
	st.Fixes = append(st.Fixes, f)
	return nil
}

func applyUnfix(st *State, d script.Directive) error {
	id := d.Args[0]
	for i, f := range st.Fixes {
		if f.ID == id {
			st.Fixes = append(st.Fixes[:i], st.Fixes[i+1:]...)
			return nil
		}
	}
	return undefined("fix", id)
}

func applyRun(st *State, d script.Directive) error {
	n, err := parseCount("run length", d.Args[0])
	if err != nil {
		return err
	}

	opts := d.Args[1:]
	upto := len(opts) > 0 && opts[0] == "upto"
	if upto {
		opts = opts[1:]
	}
	if err := checkRunOptions(opts); err != nil {
		return err
	}

	steps := n
	if !upto && n > MaxPhaseSteps {
		return malformed("run length %d exceeds the limit of %d", n, int64(MaxPhaseSteps))
	}
	if upto {
		if n < st.Step {
			return malformed("run upto %d is before current step %d", n, st.Step)
		}
		steps = n - st.Step
	}

	if len(st.Integrators()) == 0 {
		return ErrNoIntegrator
	}

	p, err := newPhase(st, PhaseRun, d.Line, steps)
	if err != nil {
		return err
	}
	st.Phases = append(st.Phases, p)
	st.Step = p.EndStep()
	return nil
}

// checkRunOptions validates the start/stop/pre/post/every keywords.
func checkRunOptions(opts []string) error {
	for i := 0; i < len(opts); i++ {
		switch opts[i] {
		case "start", "stop":
			if i+1 >= len(opts) {
				return malformed("run %s needs a value", opts[i])
			}
			if _, err := parseCount("run "+opts[i], opts[i+1]); err != nil {
				return err
			}
			i++
		case "pre", "post":
			if i+1 >= len(opts) || (opts[i+1] != "yes" && opts[i+1] != "no") {
				return malformed("run %s needs yes or no", opts[i])
			}
			i++
		case "every":
			// the remaining tokens are commands executed between chunks
			return nil
		default:
			return malformed("unknown run keyword %q", opts[i])
		}
	}
	return nil
}

func applyResetTimestep(st *State, d script.Directive) error {
	n, err := parseCount("step", d.Args[0])
	if err != nil {
		return err
	}
	st.Step = n
	return nil
}
