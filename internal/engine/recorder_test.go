package engine

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/mdscript/internal/script"
)

const waterScript = `# water box: energy minimization, then constant-energy dynamics

min_style       cg

compute         bdist all bond/local dist
compute         bavg all reduce ave c_bdist

thermo_style    custom step temp pe ke etotal press c_bavg
thermo          10

dump            traj all dcd 10 traj.dcd   # trajectory in binary dcd

minimize        1.0e-4 1.0e-6 100 1000

# assign velocities at the target temperature
velocity        all create 300.0 4928459 dist gaussian
thermo          100
timestep        1.0

fix             integrate all nve

run             1000
`

func mustParse(src string) []script.Directive {
	s, err := script.ParseString(src)
	Expect(err).NotTo(HaveOccurred())
	return s.Directives
}

func directive(line string) script.Directive {
	ds := mustParse(line)
	Expect(ds).To(HaveLen(1))
	return ds[0]
}

var _ = Describe("Recorder", func() {
	var (
		ctx context.Context
		rec *Recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = NewRecorder(NewRegistry(), "lj", true)
	})

	apply := func(lines ...string) error {
		for _, l := range lines {
			if err := rec.Apply(ctx, directive(l)); err != nil {
				return err
			}
		}
		return nil
	}

	Describe("the water script", func() {
		var st *State

		BeforeEach(func() {
			seq := NewSequencer(rec, nil)
			n, err := seq.Run(ctx, mustParse(waterScript))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(12))
			st = rec.State()
		})

		It("applies all twelve directives", func() {
			Expect(st.Applied).To(Equal(12))
		})

		It("registers the bond computes in order", func() {
			Expect(st.Computes).To(HaveLen(2))
			Expect(st.Computes[0]).To(Equal(Compute{ID: "bdist", Group: "all", Style: "bond/local", Args: []string{"dist"}}))
			Expect(st.Computes[1]).To(Equal(Compute{ID: "bavg", Group: "all", Style: "reduce", Args: []string{"ave", "c_bdist"}}))
		})

		It("keeps the custom thermo columns untouched", func() {
			Expect(st.Thermo.Style).To(Equal("custom"))
			Expect(st.Thermo.Columns).To(Equal([]string{"step", "temp", "pe", "ke", "etotal", "press", "c_bavg"}))
			Expect(st.ThermoEvery).To(Equal(int64(100)))
		})

		It("registers the dcd trajectory stream", func() {
			d, ok := st.Dump("traj")
			Expect(ok).To(BeTrue())
			Expect(d.Style).To(Equal("dcd"))
			Expect(d.File).To(Equal("traj.dcd"))
			Expect(d.Every).To(Equal(int64(10)))
		})

		It("records the velocity request, timestep and integrator", func() {
			Expect(st.Velocities).To(HaveLen(1))
			Expect(st.Velocities[0].Mode).To(Equal("create"))
			Expect(st.Timestep).To(Equal(1.0))
			Expect(st.Integrators()).To(Equal([]string{"integrate"}))
		})

		It("records a minimize phase followed by a run phase", func() {
			Expect(st.Phases).To(HaveLen(2))

			minPhase := st.Phases[0]
			Expect(minPhase.Kind).To(Equal(PhaseMinimize))
			Expect(minPhase.StartStep).To(Equal(int64(0)))
			Expect(minPhase.Steps).To(Equal(int64(100)))
			Expect(minPhase.UpperBound).To(BeTrue())
			Expect(minPhase.ThermoEvery).To(Equal(int64(10)))
			Expect(minPhase.ThermoRows).To(Equal(int64(11)))
			Expect(minPhase.DumpFrames).To(Equal(int64(11)))

			runPhase := st.Phases[1]
			Expect(runPhase.Kind).To(Equal(PhaseRun))
			Expect(runPhase.StartStep).To(Equal(int64(100)))
			Expect(runPhase.EndStep()).To(Equal(int64(1100)))
			Expect(runPhase.Timestep).To(Equal(1.0))
			Expect(runPhase.ThermoRows).To(Equal(int64(11)))
			// step 100 was written by the minimize phase
			Expect(runPhase.DumpFrames).To(Equal(int64(100)))
			Expect(runPhase.SimTime()).To(Equal(1000.0))

			Expect(st.Step).To(Equal(int64(1100)))
			Expect(st.TotalSteps()).To(Equal(int64(1100)))
		})

		It("lists every output event", func() {
			events := st.Events()
			Expect(events).To(HaveLen(11 + 11 + 11 + 100))
			Expect(events[0]).To(Equal(Event{Phase: 0, Step: 0, Kind: EventThermo}))
			Expect(events[1]).To(Equal(Event{Phase: 0, Step: 0, Kind: EventDump, Stream: "traj"}))

			frames := map[int64]int{}
			for _, e := range events {
				if e.Kind == EventDump {
					frames[e.Step]++
				}
			}
			Expect(frames).To(HaveLen(111))
			Expect(frames[100]).To(Equal(1))
		})
	})

	Describe("ordering dependencies", func() {
		It("rejects a run before any integrator fix", func() {
			err := apply("run 10")
			Expect(err).To(MatchError(ErrNoIntegrator))
			Expect(rec.State().Phases).To(BeEmpty())
		})

		It("does not count thermostat-only fixes as integrators", func() {
			err := apply("fix lang all langevin 300 300 100 1234", "run 10")
			Expect(err).To(MatchError(ErrNoIntegrator))
		})

		It("rejects references to computes that are not defined yet", func() {
			err := apply("compute bavg all reduce ave c_bdist")
			Expect(errors.Is(err, ErrUndefinedReference)).To(BeTrue())

			err = apply("thermo_style custom step c_missing[1]")
			Expect(errors.Is(err, ErrUndefinedReference)).To(BeTrue())
		})

		It("accepts indexed compute and fix references once defined", func() {
			Expect(apply(
				"compute t all temp",
				"fix 1 all nve",
				"thermo_style custom step c_t f_1[2] v_x",
			)).To(Succeed())
		})

		It("rejects duplicate compute and dump IDs", func() {
			Expect(apply("compute a all temp")).To(Succeed())
			Expect(errors.Is(apply("compute a all pe"), ErrDuplicateID)).To(BeTrue())

			Expect(apply("dump d all atom 5 out.lammpstrj")).To(Succeed())
			Expect(errors.Is(apply("dump d all atom 5 other.lammpstrj"), ErrDuplicateID)).To(BeTrue())
		})

		It("replaces a fix redefined with the same style", func() {
			Expect(apply("fix 1 all nve", "fix 1 all nve")).To(Succeed())
			Expect(rec.State().Fixes).To(HaveLen(1))

			err := apply("fix 1 all nvt temp 300 300 100")
			Expect(errors.Is(err, ErrDuplicateID)).To(BeTrue())
		})

		It("requires existing IDs for unfix, undump, uncompute and dump_modify", func() {
			Expect(errors.Is(apply("unfix 1"), ErrUndefinedReference)).To(BeTrue())
			Expect(errors.Is(apply("undump d"), ErrUndefinedReference)).To(BeTrue())
			Expect(errors.Is(apply("uncompute c"), ErrUndefinedReference)).To(BeTrue())
			Expect(errors.Is(apply("dump_modify d every 5"), ErrUndefinedReference)).To(BeTrue())
		})
	})

	Describe("argument checks", func() {
		DescribeTable("malformed directives",
			func(line string) {
				err := rec.Apply(ctx, directive(line))
				Expect(errors.Is(err, ErrMalformed)).To(BeTrue(), "got %v", err)
			},
			Entry("min_style unknown", "min_style newton"),
			Entry("min_style extra arg", "min_style cg sd"),
			Entry("minimize short", "minimize 1e-4 1e-6 100"),
			Entry("minimize bad tolerance", "minimize abc 1e-6 100 1000"),
			Entry("minimize zero iterations", "minimize 1e-4 1e-6 0 1000"),
			Entry("thermo negative", "thermo -5"),
			Entry("thermo not a number", "thermo often"),
			Entry("timestep zero", "timestep 0"),
			Entry("dump zero interval", "dump d all dcd 0 traj.dcd"),
			Entry("dump dcd with fields", "dump d all dcd 10 traj.dcd x y z"),
			Entry("dump custom without fields", "dump d all custom 10 out.txt"),
			Entry("compute reduce bad mode", "compute r all reduce median x"),
			Entry("compute bond/local no values", "compute b all bond/local"),
			Entry("compute bad id", "compute a-b all temp"),
			Entry("velocity unknown mode", "velocity all spin 300"),
			Entry("velocity missing seed", "velocity all create 300.0"),
			Entry("velocity zero seed", "velocity all create 300.0 0"),
			Entry("velocity odd keywords", "velocity all create 300.0 42 dist"),
			Entry("velocity bad dist", "velocity all create 300.0 42 dist poisson"),
			Entry("thermo_style custom empty", "thermo_style custom"),
			Entry("thermo_style one with columns", "thermo_style one step"),
			Entry("units unknown", "units imperial"),
			Entry("run negative", "run -1"),
			Entry("run bad keyword", "run 10 later yes"),
			Entry("run above the step limit", "run 2147483648"),
			Entry("minimize above the iteration limit", "minimize 1e-4 1e-6 2147483648 1000"),
			Entry("minimize above the evaluation limit", "minimize 1e-4 1e-6 100 9223372036854775807"),
		)

		It("rejects unknown directives in strict mode", func() {
			err := apply("frobnicate all")
			Expect(errors.Is(err, ErrUnknownDirective)).To(BeTrue())
		})

		It("keeps unknown directives as settings when not strict", func() {
			rec = NewRecorder(NewRegistry(), "real", false)
			Expect(apply("frobnicate all 3")).To(Succeed())
			Expect(rec.State().Settings).To(Equal([]Setting{{Name: "frobnicate", Args: []string{"all", "3"}}}))
		})

		It("leaves the state unchanged when a directive fails", func() {
			Expect(apply("thermo 10")).To(Succeed())
			before := rec.State()
			Expect(apply("run 10")).NotTo(Succeed())
			Expect(rec.State()).To(BeIdenticalTo(before))
			Expect(rec.State().Applied).To(Equal(1))
		})
	})

	Describe("units and timesteps", func() {
		It("starts from the default timestep of the unit style", func() {
			rec = NewRecorder(nil, "real", true)
			Expect(rec.State().Timestep).To(Equal(1.0))
		})

		It("switches the default timestep with units", func() {
			Expect(apply("units metal")).To(Succeed())
			Expect(rec.State().Timestep).To(Equal(0.001))
		})

		It("keeps an explicit timestep across a units change", func() {
			Expect(apply("timestep 2.0", "units metal")).To(Succeed())
			Expect(rec.State().Timestep).To(Equal(2.0))
		})
	})

	Describe("run lengths", func() {
		BeforeEach(func() {
			Expect(apply("fix 1 all nve")).To(Succeed())
		})

		It("runs up to an absolute step", func() {
			Expect(apply("run 100", "run 250 upto")).To(Succeed())
			Expect(rec.State().Phases[1].Steps).To(Equal(int64(150)))
			Expect(rec.State().Step).To(Equal(int64(250)))
		})

		It("rejects upto a step already passed", func() {
			Expect(apply("run 100")).To(Succeed())
			Expect(errors.Is(apply("run 50 upto"), ErrMalformed)).To(BeTrue())
		})

		It("honors reset_timestep", func() {
			Expect(apply("reset_timestep 1000", "run 10")).To(Succeed())
			Expect(rec.State().Phases[0].StartStep).To(Equal(int64(1000)))
		})

		It("rejects a run that overflows the step counter", func() {
			Expect(apply("thermo 1000", "reset_timestep 9223372036854775800")).To(Succeed())
			err := apply("run 100")
			Expect(errors.Is(err, ErrMalformed)).To(BeTrue(), "got %v", err)
			Expect(rec.State().Phases).To(BeEmpty())
			Expect(rec.State().Step).To(Equal(int64(9223372036854775800)))
		})

		It("runs right up to the last representable step", func() {
			Expect(apply("thermo 1000", "dump d all xyz 1 out.xyz", "reset_timestep 9223372036854775800", "run 7")).To(Succeed())
			st := rec.State()
			Expect(st.Step).To(Equal(int64(math.MaxInt64)))

			events := st.Events()
			Expect(events).To(HaveLen(2 + 8))
			Expect(events[len(events)-1]).To(Equal(Event{Phase: 0, Step: math.MaxInt64, Kind: EventDump, Stream: "d"}))
		})

		It("rejects run upto a step too far ahead", func() {
			err := apply("run 9223372036854775807 upto")
			Expect(errors.Is(err, ErrMalformed)).To(BeTrue(), "got %v", err)
		})

		It("schedules output near the top of the step range", func() {
			Expect(apply("thermo 1000", "reset_timestep 9223372036854775000", "run 100")).To(Succeed())
			st := rec.State()
			Expect(st.Step).To(Equal(int64(9223372036854775100)))
			Expect(st.Events()).To(Equal([]Event{
				{Phase: 0, Step: 9223372036854775000, Kind: EventThermo},
				{Phase: 0, Step: 9223372036854775100, Kind: EventThermo},
			}))
		})

		It("writes dump frames only on multiples of the interval", func() {
			Expect(apply("reset_timestep 3", "dump d all xyz 10 out.xyz", "run 47")).To(Succeed())
			p := rec.State().Phases[0]
			Expect(p.DumpFrames).To(Equal(int64(5)))

			var steps []int64
			for _, e := range p.Events() {
				if e.Kind == EventDump {
					steps = append(steps, e.Step)
				}
			}
			Expect(steps).To(Equal([]int64{10, 20, 30, 40, 50}))
		})

		It("does not repeat a frame written at the end of the previous phase", func() {
			Expect(apply("dump d all xyz 10 out.xyz", "run 100", "run 100", "run 5", "run 5")).To(Succeed())
			phases := rec.State().Phases
			Expect(phases[0].DumpFrames).To(Equal(int64(11)))
			Expect(phases[1].DumpFrames).To(Equal(int64(10)))
			Expect(phases[2].DumpFrames).To(Equal(int64(0)))
			Expect(phases[3].DumpFrames).To(Equal(int64(1)))
		})

		It("accepts start/stop/pre/post keywords", func() {
			Expect(apply("run 10 start 0 stop 100 pre no post yes")).To(Succeed())
		})

		It("applies dump_modify every to later phases", func() {
			Expect(apply("dump d all xyz 10 out.xyz", "dump_modify d every 5", "run 20")).To(Succeed())
			Expect(rec.State().Phases[0].DumpFrames).To(Equal(int64(5)))
		})

		It("clears definitions but keeps phase history", func() {
			Expect(apply("run 10", "clear")).To(Succeed())
			st := rec.State()
			Expect(st.Fixes).To(BeEmpty())
			Expect(st.Phases).To(HaveLen(1))
			Expect(st.Step).To(Equal(int64(0)))
		})
	})
})
