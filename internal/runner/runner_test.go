package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/3cpo-dev/iptvrun/pkg/api"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func task(path string) Task {
	return Task{ID: filepath.Base(path), Path: path, Timeout: 10 * time.Second}
}

func TestDefaultTasksOrder(t *testing.T) {
	dir := t.TempDir()
	tasks := DefaultTasks(dir)
	want := []string{"startiptv.py", "hotels.py", "multicast.py", "iptvdata.py"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, tk := range tasks {
		if tk.ID != want[i] {
			t.Fatalf("task %d: expected %s, got %s", i, want[i], tk.ID)
		}
		if tk.Timeout != time.Hour {
			t.Fatalf("task %s: expected 1h timeout, got %s", tk.ID, tk.Timeout)
		}
		if !filepath.IsAbs(tk.Path) || filepath.Dir(tk.Path) != dir {
			t.Fatalf("task %s: unexpected path %s", tk.ID, tk.Path)
		}
	}
	tasks[0].ID = "mutated"
	if DefaultTasks(dir)[0].ID != "startiptv.py" {
		t.Fatalf("DefaultTasks must return a fresh list")
	}
}

func TestRunMissingTaskDoesNotStopRun(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace")
	first := writeScript(t, dir, "first.sh", "echo first >> "+trace)
	third := writeScript(t, dir, "third.sh", "echo third >> "+trace)
	tasks := []Task{task(first), task(filepath.Join(dir, "second.sh")), task(third)}

	rep := New(Options{WorkDir: dir, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}).Run(context.Background(), tasks)
	if len(rep.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rep.Results))
	}
	statuses := []api.TaskStatus{rep.Results[0].Status, rep.Results[1].Status, rep.Results[2].Status}
	if statuses[0] != api.TaskSuccess || statuses[1] != api.TaskMissing || statuses[2] != api.TaskSuccess {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if rep.Results[1].ExitCode != nil {
		t.Fatalf("missing task must not carry an exit code")
	}
	got, _ := os.ReadFile(trace)
	if string(got) != "first\nthird\n" {
		t.Fatalf("unexpected execution order %q", got)
	}
}

func TestRunDirectoryIsMissing(t *testing.T) {
	dir := t.TempDir()
	rep := New(Options{}).Run(context.Background(), []Task{task(dir)})
	if rep.Results[0].Status != api.TaskMissing {
		t.Fatalf("expected missing, got %s", rep.Results[0].Status)
	}
}

func TestRunFailedExitCode(t *testing.T) {
	dir := t.TempDir()
	failing := writeScript(t, dir, "fail.sh", "exit 3")
	ok := writeScript(t, dir, "ok.sh", "exit 0")
	rep := New(Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}).Run(context.Background(), []Task{task(failing), task(ok)})
	res := rep.Results[0]
	if res.Status != api.TaskFailed || res.ExitCode == nil || *res.ExitCode != 3 {
		t.Fatalf("expected failed with exit 3, got %+v", res)
	}
	if rep.Results[1].Status != api.TaskSuccess || *rep.Results[1].ExitCode != 0 {
		t.Fatalf("expected second task to succeed, got %+v", rep.Results[1])
	}
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	slow := writeScript(t, dir, "slow.sh", "sleep 30")
	after := writeScript(t, dir, "after.sh", "exit 0")
	tasks := []Task{{ID: "slow.sh", Path: slow, Timeout: 300 * time.Millisecond}, task(after)}

	start := time.Now()
	rep := New(Options{}).Run(context.Background(), tasks)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timed out task was not killed promptly: %s", elapsed)
	}
	res := rep.Results[0]
	if res.Status != api.TaskTimedOut {
		t.Fatalf("expected timed_out, got %s", res.Status)
	}
	if res.Duration < 300*time.Millisecond {
		t.Fatalf("killed before the timeout: %s", res.Duration)
	}
	if rep.Results[1].Status != api.TaskSuccess {
		t.Fatalf("run should continue after a timeout, got %s", rep.Results[1].Status)
	}
}

func TestRunStartErrorIsFailed(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "job.py", "exit 0")
	r := New(Options{Interpreter: filepath.Join(dir, "no-such-python")})
	rep := r.Run(context.Background(), []Task{task(script)})
	res := rep.Results[0]
	if res.Status != api.TaskFailed || res.Error == "" || res.ExitCode != nil {
		t.Fatalf("expected failed with error detail, got %+v", res)
	}
}

func TestRunWithInterpreter(t *testing.T) {
	dir := t.TempDir()
	interp := writeScript(t, dir, "python", `exec /bin/sh "$@"`)
	script := filepath.Join(dir, "job.py")
	if err := os.WriteFile(script, []byte("echo via-interpreter\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	rep := New(Options{Interpreter: interp, WorkDir: dir, Stdout: &out}).Run(context.Background(), []Task{task(script)})
	if rep.Results[0].Status != api.TaskSuccess {
		t.Fatalf("expected success, got %+v", rep.Results[0])
	}
	if !strings.Contains(out.String(), "via-interpreter") {
		t.Fatalf("expected task output, got %q", out.String())
	}
}

func TestRunCaptureOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "loud.sh", "echo to-stdout; echo to-stderr >&2")
	var stdout, stderr bytes.Buffer
	rep := New(Options{CaptureOutput: true, Stdout: &stdout, Stderr: &stderr}).Run(context.Background(), []Task{task(script)})
	if rep.Results[0].Status != api.TaskSuccess {
		t.Fatalf("expected success, got %s", rep.Results[0].Status)
	}
	if stdout.String() != "==> loud.sh stdout\nto-stdout\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if stderr.String() != "==> loud.sh stderr\nto-stderr\n" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunPassesEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_HOST", "db.test")
	script := writeScript(t, dir, "env.sh", `test "$DB_HOST" = db.test && test "$EXTRA" = yes`)
	rep := New(Options{Env: []string{"EXTRA=yes"}}).Run(context.Background(), []Task{task(script)})
	if rep.Results[0].Status != api.TaskSuccess {
		t.Fatalf("environment not passed to task: %+v", rep.Results[0])
	}
}

func interruptAfter(d time.Duration) <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	go func() {
		time.Sleep(d)
		ch <- os.Interrupt
	}()
	return ch
}

func TestRunAbortOnInterrupt(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	slow := writeScript(t, dir, "slow.sh", "sleep 30")
	next := writeScript(t, dir, "next.sh", "touch "+marker)

	r := New(Options{AbortOnInterrupt: true, Interrupts: interruptAfter(200 * time.Millisecond)})
	rep := r.Run(context.Background(), []Task{task(slow), task(next)})
	if len(rep.Results) != 1 {
		t.Fatalf("remaining tasks should be absent, got %d results", len(rep.Results))
	}
	if rep.Results[0].Status != api.TaskInterrupted {
		t.Fatalf("expected interrupted, got %s", rep.Results[0].Status)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("next task must not run after abort")
	}
}

func TestRunContinueOnInterrupt(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	slow := writeScript(t, dir, "slow.sh", "sleep 30")
	next := writeScript(t, dir, "next.sh", "touch "+marker)

	r := New(Options{AbortOnInterrupt: false, Interrupts: interruptAfter(200 * time.Millisecond)})
	rep := r.Run(context.Background(), []Task{task(slow), task(next)})
	if len(rep.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rep.Results))
	}
	if rep.Results[0].Status != api.TaskInterrupted || rep.Results[1].Status != api.TaskSuccess {
		t.Fatalf("unexpected statuses %s, %s", rep.Results[0].Status, rep.Results[1].Status)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("next task should have run: %v", err)
	}
}

func TestRunContextCancelEndsRun(t *testing.T) {
	dir := t.TempDir()
	slow := writeScript(t, dir, "slow.sh", "sleep 30")
	next := writeScript(t, dir, "next.sh", "exit 0")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	rep := New(Options{AbortOnInterrupt: false}).Run(ctx, []Task{task(slow), task(next)})
	if len(rep.Results) != 1 || rep.Results[0].Status != api.TaskInterrupted {
		t.Fatalf("cancelled context should end the run, got %+v", rep.Results)
	}
}

func TestRunAllSucceed(t *testing.T) {
	dir := t.TempDir()
	var tasks []Task
	for _, name := range []string{"a.sh", "b.sh", "c.sh", "d.sh"} {
		tasks = append(tasks, task(writeScript(t, dir, name, "exit 0")))
	}
	rep := New(Options{RunID: "fixed"}).Run(context.Background(), tasks)
	if rep.RunID != "fixed" {
		t.Fatalf("run id not kept: %s", rep.RunID)
	}
	if rep.Count(api.TaskSuccess) != 4 {
		t.Fatalf("expected 4 successes, got %s", Summarize(rep))
	}
	if rep.FinishedAt.Before(rep.StartedAt) {
		t.Fatalf("finish before start")
	}
}
