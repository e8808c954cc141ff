package engine

import (
	"errors"
	"math"
	"testing"
)

func TestMultiples(t *testing.T) {
	tests := []struct {
		a, b, n int64
		want    int64
	}{
		{0, 100, 10, 11},
		{100, 1100, 10, 101},
		{5, 9, 10, 0},
		{5, 10, 10, 1},
		{0, 0, 3, 1},
		{0, 10, 0, 0},
		{10, 5, 2, 0},
	}
	for _, tt := range tests {
		if got := multiples(tt.a, tt.b, tt.n); got != tt.want {
			t.Errorf("multiples(%d, %d, %d): expected %d, got %d", tt.a, tt.b, tt.n, tt.want, got)
		}
	}
}

func TestThermoRowsMatchEvents(t *testing.T) {
	tests := []struct {
		start, steps, every int64
	}{
		{0, 100, 10},
		{3, 100, 10},
		{0, 95, 10},
		{7, 0, 10},
		{0, 50, 0},
		{12, 1, 1},
	}

	for _, tt := range tests {
		p := Phase{StartStep: tt.start, Steps: tt.steps, ThermoEvery: tt.every}
		p.ThermoRows = thermoThrough(p.StartStep, p.EndStep(), p.ThermoEvery, p.EndStep())

		events := p.Events()
		if int64(len(events)) != p.ThermoRows {
			t.Errorf("start %d steps %d every %d: counted %d rows, listed %d",
				tt.start, tt.steps, tt.every, p.ThermoRows, len(events))
		}
		if len(events) > 0 {
			if events[0].Step != p.StartStep {
				t.Errorf("first row at %d, expected %d", events[0].Step, p.StartStep)
			}
			if events[len(events)-1].Step != p.EndStep() {
				t.Errorf("last row at %d, expected %d", events[len(events)-1].Step, p.EndStep())
			}
		}
	}
}

func TestDumpFramesMatchEvents(t *testing.T) {
	p := Phase{
		StartStep: 3,
		Steps:     47,
		Dumps:     []DumpCadence{{ID: "a", Every: 10, From: 3}, {ID: "b", Every: 25, From: 3}},
	}
	p.DumpFrames = p.OutputThrough(EventDump, p.EndStep())

	// a: 10 20 30 40 50, b: 25 50
	if p.DumpFrames != 7 {
		t.Fatalf("expected 7 frames, got %d", p.DumpFrames)
	}

	var dumps int64
	prev := int64(-1)
	for _, e := range p.Events() {
		if e.Step < prev {
			t.Fatalf("events out of order at step %d", e.Step)
		}
		prev = e.Step
		if e.Kind == EventDump {
			dumps++
		}
	}
	if dumps != p.DumpFrames {
		t.Errorf("expected %d dump events, got %d", p.DumpFrames, dumps)
	}
}

func TestMinimizeDoesNotAdvanceTime(t *testing.T) {
	p := Phase{Kind: PhaseMinimize, Steps: 100, Timestep: 1.0}
	if p.SimTime() != 0 {
		t.Errorf("expected no simulated time, got %f", p.SimTime())
	}
}

func TestOutputThroughMatchesWalk(t *testing.T) {
	p := Phase{
		StartStep:   95,
		Steps:       30,
		ThermoEvery: 7,
		Dumps:       []DumpCadence{{ID: "a", Every: 10, From: 96}, {ID: "b", Every: 4, From: 95}},
	}

	counts := map[string]int64{}
	var prev int64 = -1
	err := p.Walk(func(e Event) error {
		if e.Step != prev {
			for _, kind := range []string{EventThermo, EventDump} {
				if got := p.OutputThrough(kind, prev); prev >= 0 && got != counts[kind] {
					t.Errorf("%s through %d: expected %d, got %d", kind, prev, counts[kind], got)
				}
			}
			prev = e.Step
		}
		counts[e.Kind]++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range []string{EventThermo, EventDump} {
		if got := p.OutputThrough(kind, p.EndStep()); got != counts[kind] {
			t.Errorf("%s total: expected %d, got %d", kind, counts[kind], got)
		}
	}
	if p.OutputThrough(EventThermo, p.StartStep-1) != 0 {
		t.Error("expected no output before the phase starts")
	}
}

func TestCheckPhaseLength(t *testing.T) {
	tests := []struct {
		start, steps int64
		ok           bool
	}{
		{0, 1000, true},
		{0, math.MaxInt32, true},
		{0, math.MaxInt32 + 1, false},
		{math.MaxInt64 - 10, 10, true},
		{math.MaxInt64 - 10, 11, false},
		{math.MaxInt64, 0, true},
	}
	for _, tt := range tests {
		err := checkPhaseLength(tt.start, tt.steps)
		if (err == nil) != tt.ok {
			t.Errorf("checkPhaseLength(%d, %d): expected ok=%v, got %v", tt.start, tt.steps, tt.ok, err)
		}
	}
}

func TestWalkStopsAtTopOfStepRange(t *testing.T) {
	p := Phase{
		StartStep:   math.MaxInt64 - 5,
		Steps:       5,
		ThermoEvery: 1,
		Dumps:       []DumpCadence{{ID: "d", Every: 2, From: math.MaxInt64 - 5}},
	}
	var n int
	p.Walk(func(e Event) error {
		n++
		if n > 100 {
			t.Fatalf("walk did not terminate, last step %d", e.Step)
		}
		return nil
	})
	// thermo on all 6 steps, dump on the 3 even ones
	if n != 9 {
		t.Errorf("expected 9 events, got %d", n)
	}
}

func TestWalkStopsOnError(t *testing.T) {
	p := Phase{Steps: 100, ThermoEvery: 1}
	stop := errors.New("stop")
	var n int
	err := p.Walk(func(Event) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 3 {
		t.Errorf("expected to stop after 3 events, got %d (%v)", n, err)
	}
}
