package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/assetflow/internal/runner"
	"github.com/ShayCichocki/assetflow/internal/tui"
)

// runFlags are the flags of commands that run tasks.
type runFlags struct {
	tui    bool
	dryRun bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Show a live view of the run")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the tasks that would run, in order, without running them")
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	run := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task>...",
		Short: "Run tasks and their prerequisites",
		Long: `Run the named tasks after everything they depend on.

Independent tasks run concurrently. A failed task skips the tasks that
depend on it while unrelated tasks keep running; the command exits non-zero
when any task failed.

Tasks that start services (nodemon, browser-sync, watch) keep running until
the command is interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd, flags, run, args)
		},
	}
	run.register(cmd)
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	run := &runFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server, live-reload relay and watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd, flags, run, []string{"default"})
		},
	}
	run.register(cmd)
	return cmd
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	run := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run asset tasks when sources change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd, flags, run, []string{"watch"})
		},
	}
	run.register(cmd)
	return cmd
}

// runTargets runs targets, then keeps any started services alive until the
// process is interrupted.
func runTargets(cmd *cobra.Command, flags *globalFlags, run *runFlags, targets []string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	logOut := cmd.ErrOrStderr()
	if run.tui {
		// Log lines would corrupt the alt screen.
		logOut = io.Discard
	}

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	if run.dryRun {
		plan, err := a.executor.Plan(targets...)
		if err != nil {
			return err
		}
		printPlan(out, plan)
		return nil
	}

	if run.tui {
		return runWithTUI(ctx, a, targets)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(out, a.emitter.Events())
	}()
	defer wg.Wait()
	defer a.Close()

	_, runErr := a.executor.Run(ctx, targets...)
	if runErr != nil {
		return summarize(runErr)
	}
	if a.session.Active() {
		fmt.Fprintln(out, color.CyanString("Serving %s. Press Ctrl+C to stop.", strings.Join(a.session.Services(), ", ")))
		a.session.Wait()
		fmt.Fprintln(out, color.HiBlackString("Stopping services..."))
	}
	return nil
}

// runWithTUI runs targets behind the live view. The view stays up after the
// run so the result can be read; services keep running until it is closed.
func runWithTUI(ctx context.Context, a *app, targets []string) error {
	program, _ := tui.NewProgram(targets, string(a.cfg.Env))
	go tui.Forward(ctx, program, a.emitter.Events())

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() {
		_, err := a.executor.Run(runCtx, targets...)
		runDone <- err
	}()

	select {
	case err := <-runDone:
		program.Send(tui.DoneMsg{Err: err, Serving: err == nil && a.session.Active()})
		select {
		case tuiErr := <-tuiDone:
			if err != nil {
				return summarize(err)
			}
			return tuiErr
		case <-ctx.Done():
			program.Quit()
			<-tuiDone
			if err != nil {
				return summarize(err)
			}
			return nil
		}
	case err := <-tuiDone:
		// Quitting the view abandons the run; let it unwind before the app
		// closes the event stream.
		cancelRun()
		<-runDone
		return err
	}
}

// summarize turns a run error into the message printed on exit.
func summarize(err error) error {
	if failed := runner.FailedTasks(err); len(failed) > 0 {
		return fmt.Errorf("%d task(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

func printPlan(w io.Writer, plan []string) {
	for i, name := range plan {
		fmt.Fprintf(w, "%3d. %s\n", i+1, name)
	}
}

// printEvents writes one line per executor event until events closes.
func printEvents(w io.Writer, events <-chan runner.Event) {
	for ev := range events {
		if line := formatEvent(ev); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

func formatEvent(ev runner.Event) string {
	ts := color.HiBlackString("[%s]", ev.Timestamp.Format("15:04:05"))
	task := color.CyanString("'%s'", ev.Task)
	switch ev.Type {
	case runner.EventRunStarted:
		return fmt.Sprintf("%s Running %s", ts, strings.Join(ev.Tasks, ", "))
	case runner.EventTaskStarted:
		return fmt.Sprintf("%s Starting %s...", ts, task)
	case runner.EventTaskCompleted:
		return fmt.Sprintf("%s Finished %s after %s", ts, task, color.MagentaString(formatDuration(ev.Duration)))
	case runner.EventTaskFailed:
		msg := fmt.Sprintf("%s %s %s after %s", ts, color.RedString("Failed"), task, color.MagentaString(formatDuration(ev.Duration)))
		if ev.Error != nil {
			msg += "\n" + color.RedString("  %v", ev.Error)
		}
		return msg
	case runner.EventTaskSkipped:
		return fmt.Sprintf("%s %s %s: %s", ts, color.YellowString("Skipped"), task, ev.Message)
	case runner.EventRunFinished:
		return fmt.Sprintf("%s Done in %s", ts, color.MagentaString(formatDuration(ev.Duration)))
	}
	return ""
}

// formatDuration prints durations the way build tools usually do: whole
// milliseconds below a second, two decimals above.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}
