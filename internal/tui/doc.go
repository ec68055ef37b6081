// Package tui provides the terminal view for assetflow runs.
//
// The view is read-only. It lists the planned tasks with their status,
// spins next to the ones running and keeps a short activity log. Users can
// only quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewProgram(targets)
//	go tui.Forward(ctx, program, emitter.Events())
//
//	res, err := executor.Run(ctx, targets...)
//	program.Send(tui.DoneMsg{Err: err})
//
// Executor events are turned into EventMsg values by Forward.
package tui
