package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mdscript/internal/engine"
	"github.com/san-kum/mdscript/internal/script"
	"gopkg.in/yaml.v3"
)

// Encode writes v as indented JSON or YAML.
func Encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q is not a structured format", format)
	}
}

func Directives(w io.Writer, directives []script.Directive) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLINE\tDIRECTIVE\tARGS")
	for i, d := range directives {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", i+1, d.Line, d.Name, strings.Join(quoted(d.Args), " "))
	}
	return tw.Flush()
}

func quoted(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = script.Quote(a)
	}
	return out
}

// State writes the definitions and phases a dry run produced.
func State(w io.Writer, st *engine.State) error {
	fmt.Fprintln(w, HeaderStyle.Render("settings"))
	fmt.Fprintf(w, "%s  %s  %s  %s\n\n",
		Metric("units", st.Units),
		Metric("min_style", st.MinStyle),
		Metric("timestep", fmt.Sprintf("%g", st.Timestep)),
		Metric("thermo", fmt.Sprintf("%d", st.ThermoEvery)),
	)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(st.Computes) > 0 {
		fmt.Fprintln(w, HeaderStyle.Render("computes"))
		fmt.Fprintln(tw, "ID\tGROUP\tSTYLE\tARGS")
		for _, c := range st.Computes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Group, c.Style, strings.Join(c.Args, " "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, HeaderStyle.Render("thermo columns"))
	fmt.Fprintf(w, "%s: %s\n\n", st.Thermo.Style, strings.Join(st.Thermo.Columns, " "))

	if len(st.Dumps) > 0 {
		fmt.Fprintln(w, HeaderStyle.Render("dumps"))
		fmt.Fprintln(tw, "ID\tGROUP\tSTYLE\tEVERY\tFILE")
		for _, d := range st.Dumps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Group, d.Style, d.Every, d.File)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(st.Fixes) > 0 {
		fmt.Fprintln(w, HeaderStyle.Render("fixes"))
		fmt.Fprintln(tw, "ID\tGROUP\tSTYLE\tINTEGRATES\tARGS")
		for _, f := range st.Fixes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", f.ID, f.Group, f.Style, f.Integrates(), strings.Join(f.Args, " "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	return Phases(w, st.Phases)
}

func Phases(w io.Writer, phases []engine.Phase) error {
	fmt.Fprintln(w, HeaderStyle.Render("phases"))
	if len(phases) == 0 {
		fmt.Fprintln(w, Subtle.Render("no minimize or run directives"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tLINE\tSTEPS\tFROM\tTO\tDT\tTIME\tTHERMO\tFRAMES")
	for _, p := range phases {
		steps := fmt.Sprintf("%d", p.Steps)
		if p.UpperBound {
			steps = "≤" + steps
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%d\t%g\t%g\t%d\t%d\n",
			p.Index+1, p.Kind, p.Line, steps, p.StartStep, p.EndStep(),
			p.Timestep, p.SimTime(), p.ThermoRows, p.DumpFrames)
	}
	return tw.Flush()
}

// Events writes the output schedule, one event per line.
func Events(w io.Writer, events []engine.Event) error {
	return writeEvents(w, func(fn func(engine.Event) error) error {
		for _, e := range events {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Schedule writes the output schedule of a dry run as it is generated.
func Schedule(w io.Writer, st *engine.State) error {
	return writeEvents(w, st.Walk)
}

func writeEvents(w io.Writer, walk func(func(engine.Event) error) error) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tSTEP\tKIND\tSTREAM")
	err := walk(func(e engine.Event) error {
		_, err := fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Phase+1, e.Step, e.Kind, e.Stream)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}

// CadenceSeries samples the cumulative number of output events of the given
// kind at width points along the concatenated phase timeline.
func CadenceSeries(st *engine.State, kind string, width int) []float64 {
	total := st.TotalSteps()
	if width <= 0 || len(st.Phases) == 0 {
		return nil
	}

	series := make([]float64, width)
	for i := range series {
		at := total
		if width > 1 {
			w, k := int64(width-1), int64(i)
			at = total/w*k + total%w*k/w
		}
		series[i] = float64(cumulative(st.Phases, kind, at))
	}
	return series
}

// cumulative counts the events of kind at or before position at of the
// concatenated timeline.
func cumulative(phases []engine.Phase, kind string, at int64) int64 {
	var n, offset int64
	for _, p := range phases {
		rel := at - offset
		if rel < 0 {
			break
		}
		n += p.OutputThrough(kind, p.StartStep+min(rel, p.Steps))
		offset += p.Steps
	}
	return n
}

// CadencePlot renders cumulative thermo rows and dump frames over the
// timeline of the dry run.
func CadencePlot(st *engine.State, width, height int) string {
	thermo := CadenceSeries(st, engine.EventThermo, width)
	if len(thermo) == 0 {
		return ""
	}
	series := [][]float64{thermo}
	colors := []asciigraph.AnsiColor{asciigraph.Cyan}

	if hasDumps(st) {
		series = append(series, CadenceSeries(st, engine.EventDump, width))
		colors = append(colors, asciigraph.Magenta)
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(fmt.Sprintf("cumulative output over %d steps (cyan: thermo, magenta: dump)", st.TotalSteps())),
	)
}

func hasDumps(st *engine.State) bool {
	for _, p := range st.Phases {
		if p.DumpFrames > 0 {
			return true
		}
	}
	return false
}
