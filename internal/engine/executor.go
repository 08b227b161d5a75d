package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"cronward/pkg/logx"
)

// DefaultCommandTimeout bounds a single command invocation when the task
// does not set its own limit.
const DefaultCommandTimeout = time.Hour

// CommandRunner runs one shell command to completion or timeout.
//
// It must never return an error: launch failures, timeouts and non-zero
// exits are all folded into (false, text). Retries are the engine's
// responsibility, not the runner's.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (ok bool, output string)
}

// Executor is the production CommandRunner. Commands go through a shell
// interpreter; stdout and stderr are captured separately and joined with
// an explicit STDERR section so failure output is attributable.
type Executor struct {
	Shell string // defaults to "sh"
	log   logx.Logger
}

func NewExecutor(log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{Shell: "sh", log: log}
}

func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) (bool, string) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(shell, "-c", command)
	// Own process group so the whole tree can be killed on timeout/shutdown,
	// not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		e.log.Error("command launch failed", logx.String("command", command), logx.Err(err))
		return false, fmt.Sprintf("execution error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-runCtx.Done():
		if cmd.Process != nil {
			// Negative pid targets the process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			e.log.Warn("command timed out", logx.String("command", command), logx.Duration("timeout", timeout))
			return false, fmt.Sprintf("command execution timed out after %s", timeout)
		}
		e.log.Warn("command canceled", logx.String("command", command))
		return false, "command canceled during shutdown"
	case waitErr = <-done:
	}

	out := combineOutput(stdout.String(), stderr.String())

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			e.log.Warn("command failed", logx.String("command", command), logx.Int("exit_code", exitErr.ExitCode()))
			return false, out
		}
		// Wait failed for a non-exit reason: treat like a launch failure.
		e.log.Error("command wait failed", logx.String("command", command), logx.Err(waitErr))
		return false, fmt.Sprintf("execution error: %v", waitErr)
	}
	return true, out
}

// combineOutput joins captured stdout and stderr into one text blob with
// a STDERR marker when stderr is non-empty.
func combineOutput(stdout, stderr string) string {
	if strings.TrimSpace(stderr) == "" {
		return stdout
	}
	var b strings.Builder
	b.WriteString(stdout)
	b.WriteString("\nSTDERR:\n")
	b.WriteString(stderr)
	return b.String()
}
