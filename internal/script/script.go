package script

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Directive is one logical line of an input script: a command name and its
// arguments in source order.
type Directive struct {
	Name string   `json:"name" yaml:"name"`
	Args []string `json:"args" yaml:"args"`
	Line int      `json:"line" yaml:"line"`
}

// String renders the directive back as a single input line. Arguments that
// contain whitespace or a comment marker are quoted.
func (d Directive) String() string {
	var b strings.Builder
	b.WriteString(d.Name)
	for _, a := range d.Args {
		b.WriteByte(' ')
		b.WriteString(Quote(a))
	}
	return b.String()
}

// Arg returns the i-th argument or "" when out of range.
func (d Directive) Arg(i int) string {
	if i < 0 || i >= len(d.Args) {
		return ""
	}
	return d.Args[i]
}

type Script struct {
	Source     string      `json:"source" yaml:"source"`
	Directives []Directive `json:"directives" yaml:"directives"`
}

func (s *Script) Len() int { return len(s.Directives) }

func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, err
	}
	s.Source = path
	return s, nil
}

func ParseString(src string) (*Script, error) {
	return Parse(strings.NewReader(src))
}

// Parse reads directives one logical line at a time. A trailing '&' joins
// the next physical line; blank and comment-only lines are skipped.
func Parse(r io.Reader) (*Script, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s := &Script{Directives: make([]Directive, 0, 32)}

	var (
		pending   strings.Builder
		startLine int
		lineNo    int
	)

	flush := func() error {
		tokens, err := tokenize(pending.String())
		pending.Reset()
		if err != nil {
			return &ParseError{Line: startLine, Wrapped: err}
		}
		if len(tokens) > 0 {
			s.Directives = append(s.Directives, Directive{
				Name: tokens[0],
				Args: tokens[1:],
				Line: startLine,
			})
		}
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")

		if pending.Len() == 0 {
			startLine = lineNo
		}

		if cont, ok := continued(line); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}

		pending.WriteString(line)
		if err := flush(); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if pending.Len() > 0 {
		return nil, &ParseError{Line: startLine, Wrapped: ErrDanglingContinuation}
	}

	return s, nil
}

// continued reports whether line ends with a continuation marker outside
// of a comment, returning the line without it.
func continued(line string) (string, bool) {
	body := stripComment(line)
	trimmed := strings.TrimRight(body, " \t")
	if !strings.HasSuffix(trimmed, "&") {
		return line, false
	}
	return strings.TrimSuffix(trimmed, "&"), true
}

// stripComment cuts the line at the first '#' that is not inside quotes.
// An unterminated quote leaves the line untouched; tokenize reports it.
func stripComment(line string) string {
	var q rune
	for i, c := range line {
		switch {
		case q != 0:
			if c == q {
				q = 0
			}
		case c == '"' || c == '\'':
			q = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

func tokenize(line string) ([]string, error) {
	line = stripComment(line)

	tokens := make([]string, 0, 8)
	var (
		cur    strings.Builder
		q      rune
		inTok  bool
		quoted bool
	)

	for _, c := range line {
		switch {
		case q != 0:
			if c == q {
				q = 0
				continue
			}
			cur.WriteRune(c)
		case c == '"' || c == '\'':
			q = c
			inTok = true
			quoted = true
		case c == ' ' || c == '\t':
			if inTok {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inTok, quoted = false, false
			}
		default:
			cur.WriteRune(c)
			inTok = true
		}
	}
	if q != 0 {
		return nil, ErrUnterminatedQuote
	}
	if inTok && (cur.Len() > 0 || quoted) {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// Quote returns s as a single token, quoted when it would otherwise split
// or start a comment. A token holding both quote characters is written as
// adjacent quoted segments, which the tokenizer joins back together.
func Quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t#&\"'") {
		return s
	}
	hasDouble, hasSingle := strings.Contains(s, `"`), strings.Contains(s, "'")
	switch {
	case !hasDouble:
		return `"` + s + `"`
	case !hasSingle:
		return "'" + s + "'"
	}

	var b strings.Builder
	for i, part := range strings.Split(s, `"`) {
		if i > 0 {
			b.WriteString(`'"'`)
		}
		if part != "" {
			b.WriteString(`"` + part + `"`)
		}
	}
	return b.String()
}
