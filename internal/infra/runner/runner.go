// Package runner launches allow-listed external programs. Arguments are
// always passed as a discrete argv; nothing here goes through a shell.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	gocmd "github.com/go-cmd/cmd"

	"nixcfg/internal/domain/failure"
	"nixcfg/internal/domain/model"
)

// DefaultMaxOutputBytes caps each captured stream. Rebuild logs are long but
// never approach this.
const DefaultMaxOutputBytes = 16 << 20

const (
	StreamStdout = 1
	StreamStderr = 2
)

// Runner executes one CommandPlan. A non-zero exit is reported through the
// outcome, not the error; the error is reserved for SpawnFailed and
// cancellation.
type Runner interface {
	Run(ctx context.Context, plan model.CommandPlan) (model.CommandOutcome, error)
}

// OutputFunc is the progress side channel for streaming plans.
type OutputFunc func(stream int, line string)

type Options struct {
	// ElevationWrapper is prepended to elevated plans, e.g. "sudo".
	ElevationWrapper string
	// Allowed lists the program base names that may be launched.
	Allowed        []string
	Progress       OutputFunc
	MaxOutputBytes int
	Logger         *log.Logger
}

type Exec struct {
	wrapper  string
	allowed  map[string]bool
	progress OutputFunc
	maxBytes int
	logger   *log.Logger
}

func New(opts Options) *Exec {
	allowed := make(map[string]bool, len(opts.Allowed)+1)
	for _, p := range opts.Allowed {
		allowed[filepath.Base(p)] = true
	}
	if opts.ElevationWrapper != "" {
		allowed[filepath.Base(opts.ElevationWrapper)] = true
	}
	maxBytes := opts.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exec{
		wrapper:  opts.ElevationWrapper,
		allowed:  allowed,
		progress: opts.Progress,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// WithProgress returns a copy of e that forwards streamed lines to fn.
func (e *Exec) WithProgress(fn OutputFunc) *Exec {
	cp := *e
	cp.progress = fn
	return &cp
}

func (e *Exec) Run(ctx context.Context, plan model.CommandPlan) (model.CommandOutcome, error) {
	if !e.allowed[filepath.Base(plan.Program)] {
		return model.CommandOutcome{}, failure.Newf(failure.SpawnFailed, "run", "program %q is not in the allow-list", plan.Program)
	}
	if plan.NeedsElevation && e.wrapper == "" {
		return model.CommandOutcome{}, failure.New(failure.SpawnFailed, "run", "elevation requested but no elevation wrapper is configured")
	}

	name, args := e.Argv(plan)
	env := e.environ(plan)
	e.logger.Debug("running command", "plan", plan.String(), "streaming", plan.Streaming)

	if plan.Streaming && plan.Stdin == "" {
		return e.runStreaming(ctx, name, args, env)
	}
	return e.runBuffered(ctx, name, args, env, plan.Stdin)
}

// Argv resolves the final program and arguments. Elevated plans run through
// the wrapper; env overrides are carried with env(1) because wrappers such
// as sudo reset the environment.
func (e *Exec) Argv(plan model.CommandPlan) (string, []string) {
	if !plan.NeedsElevation {
		return plan.Program, append([]string(nil), plan.Args...)
	}
	args := make([]string, 0, len(plan.Args)+len(plan.Env)+2)
	if len(plan.Env) > 0 {
		args = append(args, "env")
		for _, k := range plan.EnvKeys() {
			args = append(args, k+"="+plan.Env[k])
		}
	}
	args = append(args, plan.Program)
	args = append(args, plan.Args...)
	return e.wrapper, args
}

func (e *Exec) environ(plan model.CommandPlan) []string {
	if len(plan.Env) == 0 || plan.NeedsElevation {
		return nil
	}
	env := os.Environ()
	for _, k := range plan.EnvKeys() {
		env = append(env, k+"="+plan.Env[k])
	}
	return env
}

func (e *Exec) runBuffered(ctx context.Context, name string, args, env []string, stdin string) (model.CommandOutcome, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: e.maxBytes}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: e.maxBytes}

	if err := cmd.Start(); err != nil {
		return model.CommandOutcome{}, failure.Wrap(failure.SpawnFailed, "run "+name, err)
	}
	err := cmd.Wait()

	out := model.CommandOutcome{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		out.ExitStatus = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, failure.Wrap(failure.SpawnFailed, "run "+name, err)
		}
	}
	out.Succeeded = err == nil && out.ExitStatus == 0
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

func (e *Exec) runStreaming(ctx context.Context, name string, args, env []string) (model.CommandOutcome, error) {
	c := gocmd.NewCmdOptions(gocmd.Options{
		Buffered:       false,
		Streaming:      true,
		LineBufferSize: 256 * 1024,
		// The child stays in our process group so an elevation wrapper can
		// prompt on the terminal without being stopped by SIGTTIN.
		BeforeExec: []func(*exec.Cmd){func(cmd *exec.Cmd) { cmd.SysProcAttr = nil }},
	}, name, args...)
	if env != nil {
		c.Env = env
	}

	statusChan := c.Start()

	go func() {
		select {
		case <-ctx.Done():
			terminate(c)
		case <-c.Done():
		}
	}()

	stdout := &lineCollector{limit: e.maxBytes}
	stderr := &lineCollector{limit: e.maxBytes}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for line := range c.Stdout {
			stdout.add(line)
			e.emit(StreamStdout, line)
		}
	}()
	go func() {
		defer wg.Done()
		for line := range c.Stderr {
			stderr.add(line)
			e.emit(StreamStderr, line)
		}
	}()

	status := <-statusChan
	if status.PID == 0 && status.Error != nil {
		return model.CommandOutcome{}, failure.Wrap(failure.SpawnFailed, "run "+name, status.Error)
	}
	wg.Wait()

	out := model.CommandOutcome{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitStatus: status.Exit,
		Succeeded:  status.Complete && status.Exit == 0 && status.Error == nil,
	}
	if status.Error != nil {
		out.Stderr = strings.TrimRight(out.Stderr, "\n") + "\n" + status.Error.Error() + "\n"
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

// killGrace is how long a cancelled child gets between SIGTERM and SIGKILL.
var killGrace = 5 * time.Second

// terminate signals the child directly. go-cmd's Stop signals a process
// group, which the child no longer leads.
func terminate(c *gocmd.Cmd) {
	_ = c.Stop()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	pid := c.Status().PID
	for pid == 0 {
		select {
		case <-c.Done():
			return
		case <-tick.C:
			pid = c.Status().PID
		}
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	_ = p.Signal(syscall.SIGTERM)

	grace := time.NewTimer(killGrace)
	defer grace.Stop()
	select {
	case <-c.Done():
	case <-grace.C:
		_ = p.Kill()
	}
}

func (e *Exec) emit(stream int, line string) {
	if e.progress != nil {
		e.progress(stream, line)
	}
}

// limitWriter stops writing after limit bytes but reports full writes so the
// child never sees a broken pipe.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	n         int
	truncated bool
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.n
	if remaining <= 0 {
		if !lw.truncated {
			lw.truncated = true
			lw.buf.WriteString("\n[output truncated]")
		}
		return len(p), nil
	}
	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}
	n, err := lw.buf.Write(toWrite)
	lw.n += n
	if len(toWrite) < len(p) {
		lw.truncated = true
		lw.buf.WriteString("\n[output truncated]")
	}
	return len(p), err
}

type lineCollector struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func (lc *lineCollector) add(line string) {
	if lc.b.Len()+len(line)+1 > lc.limit {
		lc.truncated = true
		return
	}
	lc.b.WriteString(line)
	lc.b.WriteByte('\n')
}

func (lc *lineCollector) String() string {
	if lc.truncated {
		return lc.b.String() + "[output truncated]\n"
	}
	return lc.b.String()
}
