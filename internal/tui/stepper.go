package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/mdscript/internal/engine"
	"github.com/san-kum/mdscript/internal/script"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

type model struct {
	title      string
	directives []script.Directive
	recorder   *engine.Recorder
	next       int
	err        error
	playing    bool
	width      int
	height     int
}

// NewStepper builds the model that applies one directive at a time to rec.
func NewStepper(title string, directives []script.Directive, rec *engine.Recorder) tea.Model {
	return model{
		title:      title,
		directives: directives,
		recorder:   rec,
		width:      80,
		height:     24,
	}
}

func (m model) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.playing {
			return m, nil
		}
		m.step()
		if m.playing {
			return m, tick()
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "n", " ", "right", "j":
		m.playing = false
		m.step()
	case "p":
		if m.done() {
			return m, nil
		}
		m.playing = !m.playing
		if m.playing {
			return m, tick()
		}
	case "r":
		m.reset()
	}
	return m, nil
}

func (m model) done() bool {
	return m.err != nil || m.next >= len(m.directives)
}

func (m *model) step() {
	if m.done() {
		m.playing = false
		return
	}
	d := m.directives[m.next]
	if err := m.recorder.Apply(context.Background(), d); err != nil {
		m.err = &engine.DirectiveError{Index: m.next, Directive: d, Wrapped: err}
		m.playing = false
		return
	}
	m.next++
	if m.done() {
		m.playing = false
	}
}

func (m *model) reset() {
	m.recorder.Reset()
	m.next = 0
	m.err = nil
	m.playing = false
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(cyan.Bold(true).Render(m.title))
	b.WriteString(dim.Render(fmt.Sprintf("  %d/%d directives", m.next, len(m.directives))))
	b.WriteString("\n\n")

	b.WriteString(m.viewDirectives())
	b.WriteString("\n")
	b.WriteString(m.viewState())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(red.Render("halted: " + m.err.Error()))
	case m.next >= len(m.directives):
		b.WriteString(green.Render("all directives applied"))
	case m.playing:
		b.WriteString(magenta.Render("playing"))
	}
	b.WriteString("\n\n")
	b.WriteString(dimmer.Render("n/space step · p play/pause · r reset · q quit"))
	return b.String()
}

// viewDirectives shows a window of the script around the next directive.
func (m model) viewDirectives() string {
	rows := m.height - 16
	if rows < 5 {
		rows = 5
	}
	start := m.next - rows/2
	if start < 0 {
		start = 0
	}
	end := start + rows
	if end > len(m.directives) {
		end = len(m.directives)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		d := m.directives[i]
		line := fmt.Sprintf("%4d  %s", d.Line, d.String())
		switch {
		case i < m.next:
			b.WriteString(green.Render("✓ ") + dim.Render(line))
		case i == m.next && m.err != nil:
			b.WriteString(red.Render("✗ ") + white.Render(line))
		case i == m.next:
			b.WriteString(cyan.Render("› ") + white.Render(line))
		default:
			b.WriteString("  " + dimmer.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) viewState() string {
	st := m.recorder.State()

	ids := func(n int, id func(int) string) string {
		if n == 0 {
			return dimmer.Render("none")
		}
		parts := make([]string, n)
		for i := range parts {
			parts[i] = id(i)
		}
		return white.Render(strings.Join(parts, " "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s\n",
		dim.Render("units"), white.Render(st.Units),
		dim.Render("min_style"), white.Render(st.MinStyle),
		dim.Render("timestep"), white.Render(fmt.Sprintf("%g", st.Timestep)),
		dim.Render("step"), white.Render(fmt.Sprintf("%d", st.Step)),
	)
	fmt.Fprintf(&b, "%s %s\n", dim.Render("computes"), ids(len(st.Computes), func(i int) string { return st.Computes[i].ID }))
	fmt.Fprintf(&b, "%s %s\n", dim.Render("dumps   "), ids(len(st.Dumps), func(i int) string { return st.Dumps[i].ID + "→" + st.Dumps[i].File }))
	fmt.Fprintf(&b, "%s %s\n", dim.Render("fixes   "), ids(len(st.Fixes), func(i int) string { return st.Fixes[i].ID + ":" + st.Fixes[i].Style }))
	fmt.Fprintf(&b, "%s %s\n", dim.Render("thermo  "), white.Render(fmt.Sprintf("every %d: %s", st.ThermoEvery, strings.Join(st.Thermo.Columns, " "))))
	fmt.Fprintf(&b, "%s %s\n", dim.Render("phases  "), ids(len(st.Phases), func(i int) string {
		p := st.Phases[i]
		return fmt.Sprintf("%s[%d..%d]", p.Kind, p.StartStep, p.EndStep())
	}))
	return b.String()
}

// RunStepper runs the stepper full screen until the user quits.
func RunStepper(title string, directives []script.Directive, rec *engine.Recorder) error {
	p := tea.NewProgram(NewStepper(title, directives, rec), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
