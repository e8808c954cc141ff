package engine

import "strings"

type Compute struct {
	ID    string   `json:"id" yaml:"id"`
	Group string   `json:"group" yaml:"group"`
	Style string   `json:"style" yaml:"style"`
	Args  []string `json:"args,omitempty" yaml:"args,omitempty"`
}

type Dump struct {
	ID     string   `json:"id" yaml:"id"`
	Group  string   `json:"group" yaml:"group"`
	Style  string   `json:"style" yaml:"style"`
	Every  int64    `json:"every" yaml:"every"`
	File   string   `json:"file" yaml:"file"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty"`
	Modify []string `json:"modify,omitempty" yaml:"modify,omitempty"`
}

type Fix struct {
	ID    string   `json:"id" yaml:"id"`
	Group string   `json:"group" yaml:"group"`
	Style string   `json:"style" yaml:"style"`
	Args  []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// Integrates reports whether the fix performs time integration.
func (f Fix) Integrates() bool {
	return integratorStyles[f.Style]
}

type Velocity struct {
	Group string   `json:"group" yaml:"group"`
	Mode  string   `json:"mode" yaml:"mode"`
	Args  []string `json:"args,omitempty" yaml:"args,omitempty"`
}

type ThermoStyle struct {
	Style   string   `json:"style" yaml:"style"`
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// Setting is a directive the recorder keeps verbatim without interpreting.
type Setting struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// State is what an engine would know after the directives applied so far.
type State struct {
	Units        string      `json:"units" yaml:"units"`
	MinStyle     string      `json:"min_style" yaml:"min_style"`
	MinModify    []string    `json:"min_modify,omitempty" yaml:"min_modify,omitempty"`
	Computes     []Compute   `json:"computes" yaml:"computes"`
	Thermo       ThermoStyle `json:"thermo_style" yaml:"thermo_style"`
	ThermoEvery  int64       `json:"thermo_every" yaml:"thermo_every"`
	ThermoModify []string    `json:"thermo_modify,omitempty" yaml:"thermo_modify,omitempty"`
	Dumps        []Dump      `json:"dumps" yaml:"dumps"`
	Velocities   []Velocity  `json:"velocities,omitempty" yaml:"velocities,omitempty"`
	Timestep     float64     `json:"timestep" yaml:"timestep"`
	TimestepSet  bool        `json:"timestep_set" yaml:"timestep_set"`
	Fixes        []Fix       `json:"fixes" yaml:"fixes"`
	Settings     []Setting   `json:"settings,omitempty" yaml:"settings,omitempty"`
	Step         int64       `json:"step" yaml:"step"`
	Phases       []Phase     `json:"phases" yaml:"phases"`
	Applied      int         `json:"applied" yaml:"applied"`
}

func NewState(units string) *State {
	if units == "" {
		units = DefaultUnits
	}
	return &State{
		Units:    units,
		MinStyle: "cg",
		Thermo:   ThermoStyle{Style: "one", Columns: thermoOneColumns()},
		Timestep: DefaultTimestep(units),
		Computes: make([]Compute, 0),
		Dumps:    make([]Dump, 0),
		Fixes:    make([]Fix, 0),
		Phases:   make([]Phase, 0),
	}
}

func thermoOneColumns() []string {
	return []string{"step", "temp", "epair", "emol", "etotal", "press"}
}

func (s *State) Compute(id string) (Compute, bool) {
	for _, c := range s.Computes {
		if c.ID == id {
			return c, true
		}
	}
	return Compute{}, false
}

func (s *State) Fix(id string) (Fix, bool) {
	for _, f := range s.Fixes {
		if f.ID == id {
			return f, true
		}
	}
	return Fix{}, false
}

func (s *State) dumpIndex(id string) int {
	for i, d := range s.Dumps {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) Dump(id string) (Dump, bool) {
	if i := s.dumpIndex(id); i >= 0 {
		return s.Dumps[i], true
	}
	return Dump{}, false
}

// Integrators returns the IDs of the fixes that perform time integration.
func (s *State) Integrators() []string {
	ids := make([]string, 0, 1)
	for _, f := range s.Fixes {
		if f.Integrates() {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// checkReference validates a c_ID, f_ID or v_name token, including the
// indexed forms c_ID[2] and c_ID[*]. Other tokens pass unchanged.
func (s *State) checkReference(tok string) error {
	prefix, id, ok := splitReference(tok)
	if !ok {
		return nil
	}
	switch prefix {
	case "c_":
		if _, found := s.Compute(id); !found {
			return undefined("compute", id)
		}
	case "f_":
		if _, found := s.Fix(id); !found {
			return undefined("fix", id)
		}
	}
	return nil
}

func splitReference(tok string) (prefix, id string, ok bool) {
	if len(tok) < 3 {
		return "", "", false
	}
	prefix = tok[:2]
	if prefix != "c_" && prefix != "f_" && prefix != "v_" {
		return "", "", false
	}
	id = tok[2:]
	if i := strings.IndexByte(id, '['); i >= 0 {
		id = id[:i]
	}
	return prefix, id, id != ""
}

func (s *State) clone() *State {
	c := *s
	c.MinModify = append([]string(nil), s.MinModify...)
	c.Computes = append([]Compute(nil), s.Computes...)
	c.Thermo.Columns = append([]string(nil), s.Thermo.Columns...)
	c.ThermoModify = append([]string(nil), s.ThermoModify...)
	c.Dumps = append([]Dump(nil), s.Dumps...)
	c.Velocities = append([]Velocity(nil), s.Velocities...)
	c.Fixes = append([]Fix(nil), s.Fixes...)
	c.Settings = append([]Setting(nil), s.Settings...)
	c.Phases = append([]Phase(nil), s.Phases...)
	return &c
}
