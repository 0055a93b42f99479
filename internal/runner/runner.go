package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/iptvrun/internal/telemetry"
	"github.com/3cpo-dev/iptvrun/pkg/api"
)

// DefaultTimeout bounds every collection task.
const DefaultTimeout = time.Hour

// Task is one external program run by the orchestrator.
type Task struct {
	ID      string
	Path    string
	Timeout time.Duration
}

// The order matters: hotel and multicast sources feed the final aggregation.
var taskScripts = [...]string{"startiptv.py", "hotels.py", "multicast.py", "iptvdata.py"}

// DefaultTasks returns the fixed pipeline rooted at workDir.
func DefaultTasks(workDir string) []Task {
	tasks := make([]Task, 0, len(taskScripts))
	for _, name := range taskScripts {
		p := filepath.Join(workDir, name)
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		tasks = append(tasks, Task{ID: name, Path: p, Timeout: DefaultTimeout})
	}
	return tasks
}

// Options configures a Runner.
type Options struct {
	// Interpreter runs each task path; empty executes the path directly.
	Interpreter string
	WorkDir     string
	// Env is appended to the orchestrator's own environment for every task.
	Env []string
	// AbortOnInterrupt skips the remaining queue after an interrupt. When false only the
	// current task is interrupted and the loop moves on.
	AbortOnInterrupt bool
	// CaptureOutput buffers task output and writes it once the task finishes.
	CaptureOutput bool
	Stdout        io.Writer
	Stderr        io.Writer
	Interrupts    <-chan os.Signal
	Metrics       *telemetry.Collector
	RunID         string
}

// Runner executes tasks one at a time. A failing task never stops the run.
type Runner struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{
		opts: opts,
		log:  log.With().Str("run_id", opts.RunID).Logger(),
	}
}

// Run executes tasks in order and reports one result per attempted task. Cancelling ctx
// interrupts the current task and ends the run regardless of AbortOnInterrupt.
func (r *Runner) Run(ctx context.Context, tasks []Task) api.RunReport {
	rep := api.RunReport{RunID: r.opts.RunID, StartedAt: time.Now()}
	for i, t := range tasks {
		res := r.runTask(ctx, t)
		rep.Results = append(rep.Results, res)
		r.opts.Metrics.RecordTask(res)
		r.logResult(res)
		if res.Status != api.TaskInterrupted {
			continue
		}
		if r.opts.AbortOnInterrupt || ctx.Err() != nil {
			if rest := len(tasks) - i - 1; rest > 0 {
				r.log.Warn().Int("skipped", rest).Msg("run aborted, remaining tasks skipped")
			}
			break
		}
	}
	rep.FinishedAt = time.Now()
	r.opts.Metrics.RecordRun(rep)
	return rep
}

func (r *Runner) runTask(ctx context.Context, t Task) api.TaskResult {
	res := api.TaskResult{Task: t.ID, Path: t.Path, Status: api.TaskPending}
	info, err := os.Stat(t.Path)
	if err != nil {
		res.Status = api.TaskMissing
		res.Error = err.Error()
		return res
	}
	if info.IsDir() {
		res.Status = api.TaskMissing
		res.Error = t.Path + " is a directory"
		return res
	}
	// An interrupt that arrived between tasks belongs to the task about to start.
	select {
	case sig := <-r.opts.Interrupts:
		res.Status = api.TaskInterrupted
		res.Error = "interrupted by " + sig.String() + " before start"
		return res
	case <-ctx.Done():
		res.Status = api.TaskInterrupted
		res.Error = ctx.Err().Error()
		return res
	default:
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cmd := r.command(t)
	var stdout, stderr bytes.Buffer
	if r.opts.CaptureOutput {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = r.opts.Stdout
		cmd.Stderr = r.opts.Stderr
	}

	r.log.Info().Str("task", t.ID).Dur("timeout", timeout).Msg("running task")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Status = api.TaskFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	res.Status = api.TaskRunning

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		classifyExit(&res, err)
	case <-timer.C:
		r.stop(cmd, done)
		res.Status = api.TaskTimedOut
		res.Error = fmt.Sprintf("exceeded timeout of %s", timeout)
	case sig := <-r.opts.Interrupts:
		r.stop(cmd, done)
		res.Status = api.TaskInterrupted
		res.Error = "interrupted by " + sig.String()
	case <-ctx.Done():
		r.stop(cmd, done)
		res.Status = api.TaskInterrupted
		res.Error = ctx.Err().Error()
	}
	res.Duration = time.Since(start)

	if r.opts.CaptureOutput {
		r.emit(t, &stdout, &stderr)
	}
	return res
}

func (r *Runner) command(t Task) *exec.Cmd {
	var cmd *exec.Cmd
	if r.opts.Interpreter != "" {
		cmd = exec.Command(r.opts.Interpreter, t.Path)
	} else {
		cmd = exec.Command(t.Path)
	}
	cmd.Dir = r.opts.WorkDir
	cmd.Env = append(os.Environ(), r.opts.Env...)
	// Bounds Wait when a grandchild outlives the group kill and holds the pipes.
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)
	return cmd
}

// stop kills the task's process group and waits for it to be reaped.
func (r *Runner) stop(cmd *exec.Cmd, done <-chan error) {
	if err := killProcessGroup(cmd); err != nil {
		r.log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("kill task")
	}
	<-done
}

func classifyExit(res *api.TaskResult, err error) {
	if err == nil {
		code := 0
		res.Status = api.TaskSuccess
		res.ExitCode = &code
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Status = api.TaskFailed
		if code := exitErr.ExitCode(); code >= 0 {
			res.ExitCode = &code
		}
		res.Error = exitErr.Error()
		return
	}
	res.Status = api.TaskFailed
	res.Error = err.Error()
}

func (r *Runner) emit(t Task, stdout, stderr *bytes.Buffer) {
	if stdout.Len() > 0 {
		fmt.Fprintf(r.opts.Stdout, "==> %s stdout\n", t.ID)
		_, _ = stdout.WriteTo(r.opts.Stdout)
	}
	if stderr.Len() > 0 {
		fmt.Fprintf(r.opts.Stderr, "==> %s stderr\n", t.ID)
		_, _ = stderr.WriteTo(r.opts.Stderr)
	}
}

func (r *Runner) logResult(res api.TaskResult) {
	var ev *zerolog.Event
	switch res.Status {
	case api.TaskSuccess:
		ev = r.log.Info()
	case api.TaskMissing, api.TaskInterrupted:
		ev = r.log.Warn()
	default:
		ev = r.log.Error()
	}
	ev = ev.Str("task", res.Task).Str("status", string(res.Status)).Dur("duration", res.Duration)
	if res.ExitCode != nil {
		ev = ev.Int("exit_code", *res.ExitCode)
	}
	if res.Error != "" {
		ev = ev.Str("error", res.Error)
	}
	ev.Msg("task finished")
}
