package engine

import "math"

const (
	PhaseMinimize = "minimize"
	PhaseRun      = "run"

	EventThermo = "thermo"
	EventDump   = "dump"
)

// MaxPhaseSteps bounds the length of a single run or minimize phase.
const MaxPhaseSteps = math.MaxInt32

// Phase is one minimize or run invocation and the output it triggers.
type Phase struct {
	Index       int           `json:"index" yaml:"index"`
	Kind        string        `json:"kind" yaml:"kind"`
	Line        int           `json:"line" yaml:"line"`
	StartStep   int64         `json:"start_step" yaml:"start_step"`
	Steps       int64         `json:"steps" yaml:"steps"`
	UpperBound  bool          `json:"upper_bound" yaml:"upper_bound"`
	Timestep    float64       `json:"timestep" yaml:"timestep"`
	ThermoEvery int64         `json:"thermo_every" yaml:"thermo_every"`
	Integrators []string      `json:"integrators,omitempty" yaml:"integrators,omitempty"`
	Dumps       []DumpCadence `json:"dumps,omitempty" yaml:"dumps,omitempty"`
	ThermoRows  int64         `json:"thermo_rows" yaml:"thermo_rows"`
	DumpFrames  int64         `json:"dump_frames" yaml:"dump_frames"`
}

// DumpCadence is a dump stream as seen by one phase. Frames are written on
// the multiples of Every in [From, end of phase].
type DumpCadence struct {
	ID    string `json:"id" yaml:"id"`
	File  string `json:"file" yaml:"file"`
	Every int64  `json:"every" yaml:"every"`
	From  int64  `json:"from" yaml:"from"`
}

type Event struct {
	Phase  int    `json:"phase" yaml:"phase"`
	Step   int64  `json:"step" yaml:"step"`
	Kind   string `json:"kind" yaml:"kind"`
	Stream string `json:"stream,omitempty" yaml:"stream,omitempty"`
}

func (p Phase) EndStep() int64 { return p.StartStep + p.Steps }

// SimTime is the simulated time covered by a run phase. Minimization does
// not advance time.
func (p Phase) SimTime() float64 {
	if p.Kind != PhaseRun {
		return 0
	}
	return float64(p.Steps) * p.Timestep
}

// checkPhaseLength rejects phases the engine would refuse: more than
// MaxPhaseSteps steps, or an end step past the step counter's range.
func checkPhaseLength(start, steps int64) error {
	if steps < 0 || steps > MaxPhaseSteps {
		return malformed("phase of %d steps exceeds the limit of %d", steps, int64(MaxPhaseSteps))
	}
	if start > math.MaxInt64-steps {
		return malformed("too many timesteps: %d + %d overflows the step counter", start, steps)
	}
	return nil
}

func newPhase(st *State, kind string, line int, steps int64) (Phase, error) {
	if err := checkPhaseLength(st.Step, steps); err != nil {
		return Phase{}, err
	}
	p := Phase{
		Index:       len(st.Phases),
		Kind:        kind,
		Line:        line,
		StartStep:   st.Step,
		Steps:       steps,
		UpperBound:  kind == PhaseMinimize,
		Timestep:    st.Timestep,
		ThermoEvery: st.ThermoEvery,
		Integrators: st.Integrators(),
	}
	for _, d := range st.Dumps {
		from := p.StartStep
		if st.dumpedAt(d.ID, from) && from < math.MaxInt64 {
			from++
		}
		p.Dumps = append(p.Dumps, DumpCadence{ID: d.ID, File: d.File, Every: d.Every, From: from})
	}
	p.ThermoRows = thermoThrough(p.StartStep, p.EndStep(), p.ThermoEvery, p.EndStep())
	for _, d := range p.Dumps {
		p.DumpFrames += multiples(d.From, p.EndStep(), d.Every)
	}
	return p, nil
}

// dumpedAt reports whether the previous phase already wrote a frame of the
// stream on step.
func (s *State) dumpedAt(id string, step int64) bool {
	if len(s.Phases) == 0 {
		return false
	}
	prev := s.Phases[len(s.Phases)-1]
	if prev.EndStep() != step {
		return false
	}
	for _, d := range prev.Dumps {
		if d.ID == id {
			return d.Every > 0 && step >= d.From && step%d.Every == 0
		}
	}
	return false
}

// multiples counts the steps in [a, b] divisible by n.
func multiples(a, b, n int64) int64 {
	if n <= 0 || b < a {
		return 0
	}
	if a == 0 {
		return b/n + 1
	}
	return b/n - (a-1)/n
}

// thermoThrough counts the thermo rows of the phase [a, b] written up to
// and including step s: the first step, every multiple of the cadence and
// the last step.
func thermoThrough(a, b, every, s int64) int64 {
	if s < a {
		return 0
	}
	if s > b {
		s = b
	}
	n := int64(1)
	if every > 0 && s > a {
		n += multiples(a+1, s, every)
	}
	if s == b && b != a && (every <= 0 || b%every != 0) {
		n++
	}
	return n
}

// OutputThrough counts the events of the given kind the phase writes up to
// and including step.
func (p Phase) OutputThrough(kind string, step int64) int64 {
	switch kind {
	case EventThermo:
		return thermoThrough(p.StartStep, p.EndStep(), p.ThermoEvery, step)
	case EventDump:
		if step > p.EndStep() {
			step = p.EndStep()
		}
		var n int64
		for _, d := range p.Dumps {
			n += multiples(d.From, step, d.Every)
		}
		return n
	}
	return 0
}

// stepIter yields output steps in increasing order.
type stepIter func() (int64, bool)

// divisible iterates the steps in [a, b] divisible by n.
func divisible(a, b, n int64) stepIter {
	if n <= 0 || b < a {
		return func() (int64, bool) { return 0, false }
	}
	count := multiples(a, b, n)
	k := a / n
	if a%n != 0 {
		k++
	}
	var i int64
	return func() (int64, bool) {
		if i >= count {
			return 0, false
		}
		s := (k + i) * n
		i++
		return s, true
	}
}

func thermoSteps(a, b, every int64) stepIter {
	var (
		started bool
		inner   stepIter
		last    = a
		done    bool
	)
	if every > 0 && b > a {
		inner = divisible(a+1, b, every)
	}
	return func() (int64, bool) {
		if done {
			return 0, false
		}
		if !started {
			started = true
			return a, true
		}
		if inner != nil {
			if s, ok := inner(); ok {
				last = s
				return s, true
			}
			inner = nil
		}
		done = true
		if last != b {
			return b, true
		}
		return 0, false
	}
}

// Walk calls fn for each output event of the phase in step order without
// materializing the schedule. Thermo rows come before dump frames on the
// same step. Walk stops at the first error fn returns.
func (p Phase) Walk(fn func(Event) error) error {
	type head struct {
		next  stepIter
		step  int64
		ok    bool
		event Event
	}

	a, b := p.StartStep, p.EndStep()
	heads := make([]*head, 0, 1+len(p.Dumps))
	heads = append(heads, &head{next: thermoSteps(a, b, p.ThermoEvery), event: Event{Phase: p.Index, Kind: EventThermo}})
	for _, d := range p.Dumps {
		if d.Every <= 0 {
			continue
		}
		heads = append(heads, &head{next: divisible(d.From, b, d.Every), event: Event{Phase: p.Index, Kind: EventDump, Stream: d.ID}})
	}
	for _, h := range heads {
		h.step, h.ok = h.next()
	}

	for {
		var lo *head
		for _, h := range heads {
			if h.ok && (lo == nil || h.step < lo.step) {
				lo = h
			}
		}
		if lo == nil {
			return nil
		}
		e := lo.event
		e.Step = lo.step
		if err := fn(e); err != nil {
			return err
		}
		lo.step, lo.ok = lo.next()
	}
}

// Events lists the output of the phase in step order.
func (p Phase) Events() []Event {
	events := make([]Event, 0, p.ThermoRows+p.DumpFrames)
	p.Walk(func(e Event) error {
		events = append(events, e)
		return nil
	})
	return events
}

// Walk visits the output events of all executed phases in order.
func (s *State) Walk(fn func(Event) error) error {
	for _, p := range s.Phases {
		if err := p.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Events flattens the output events of all executed phases.
func (s *State) Events() []Event {
	events := make([]Event, 0)
	s.Walk(func(e Event) error {
		events = append(events, e)
		return nil
	})
	return events
}

// TotalSteps is the step count across all phases.
func (s *State) TotalSteps() int64 {
	var n int64
	for _, p := range s.Phases {
		n += p.Steps
	}
	return n
}
