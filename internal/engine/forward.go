package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/san-kum/mdscript/internal/script"
)

// StreamEngine writes each directive as a canonical input line.
type StreamEngine struct {
	w *bufio.Writer
}

func NewStreamEngine(w io.Writer) *StreamEngine {
	return &StreamEngine{w: bufio.NewWriter(w)}
}

func (s *StreamEngine) Apply(ctx context.Context, d script.Directive) error {
	if _, err := s.w.WriteString(d.String()); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// ExecEngine feeds directives to an external engine process on its stdin.
type ExecEngine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stream *StreamEngine
	closed bool
}

// StartExec launches binary with args. The process reads directives from
// stdin until Close.
func StartExec(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) (*ExecEngine, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("engine binary %q: %w", binary, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	return &ExecEngine{
		cmd:    cmd,
		stdin:  stdin,
		stream: NewStreamEngine(stdin),
	}, nil
}

func (e *ExecEngine) Apply(ctx context.Context, d script.Directive) error {
	if e.closed {
		return fmt.Errorf("engine process already closed")
	}
	if err := e.stream.Apply(ctx, d); err != nil {
		return fmt.Errorf("forward to engine: %w", err)
	}
	return nil
}

// Close ends the engine's input and waits for it to exit.
func (e *ExecEngine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.stdin.Close(); err != nil {
		return err
	}
	return e.cmd.Wait()
}
