package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/san-kum/mdscript/internal/script"
)

// Engine accepts directives one at a time. An error means the directive was
// rejected and nothing after it should be applied.
type Engine interface {
	Apply(ctx context.Context, d script.Directive) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, d script.Directive) error

func (f EngineFunc) Apply(ctx context.Context, d script.Directive) error { return f(ctx, d) }

type Observer interface {
	OnDirective(index int, d script.Directive, err error)
}

type Sequencer struct {
	engine    Engine
	observers []Observer
	logger    *slog.Logger
}

func NewSequencer(e Engine, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		engine:    e,
		observers: make([]Observer, 0),
		logger:    logger,
	}
}

func (s *Sequencer) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Run applies directives in order and returns how many were applied. It
// stops at the first rejected directive and returns a *DirectiveError.
func (s *Sequencer) Run(ctx context.Context, directives []script.Directive) (int, error) {
	for i, d := range directives {
		select {
		case <-ctx.Done():
			return i, &DirectiveError{Index: i, Directive: d, Wrapped: errors.Join(ErrCanceled, ctx.Err())}
		default:
		}

		err := s.engine.Apply(ctx, d)
		for _, obs := range s.observers {
			obs.OnDirective(i, d, err)
		}
		if err != nil {
			s.logger.Debug("directive rejected", "line", d.Line, "name", d.Name, "err", err)
			return i, &DirectiveError{Index: i, Directive: d, Wrapped: err}
		}
		s.logger.Debug("directive applied", "line", d.Line, "name", d.Name, "args", len(d.Args))
	}
	return len(directives), nil
}

// Multi applies each directive to every engine in order, stopping at the
// first engine that rejects it. Put validating engines first.
func Multi(engines ...Engine) *MultiEngine {
	return &MultiEngine{engines: engines}
}

type MultiEngine struct {
	engines []Engine
}

func (m *MultiEngine) Apply(ctx context.Context, d script.Directive) error {
	for _, e := range m.engines {
		if err := e.Apply(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every engine that is an io.Closer and joins their errors.
func (m *MultiEngine) Close() error {
	var errs []error
	for _, e := range m.engines {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
