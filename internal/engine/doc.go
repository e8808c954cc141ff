// Package engine sequences script directives into an engine.
//
// The package defines:
//
//   - [Engine]: anything that accepts directives one at a time
//   - [Sequencer]: applies a directive list in order and halts on the first error
//   - [Registry]: known directives with their argument checks
//   - [Recorder]: a dry-run engine that tracks the state a real engine would
//     build up (computes, dumps, fixes, thermo settings, phases)
//   - [StreamEngine] and [ExecEngine]: forward directives to a writer or to
//     an external engine process
//
// # Example
//
//	s, _ := script.ParseFile("in.water")
//	rec := engine.NewRecorder(engine.NewRegistry(), "lj", true)
//	seq := engine.NewSequencer(rec, slog.Default())
//	n, err := seq.Run(ctx, s.Directives)
//
// # Thread Safety
//
// Recorder and Sequencer instances are NOT thread-safe. Use one per script.
package engine
