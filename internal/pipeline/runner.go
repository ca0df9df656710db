package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/vk/magetbrain-bids/internal/ctxlog"
)

// Runner runs a Command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitCodeError reports a command that exited with a non-zero status.
type ExitCodeError struct {
	Command string
	Code    int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("non zero return code: %d (%s)", e.Code, e.Command)
}

// DefaultWaitDelay bounds how long Run waits for the output pipe to close
// once the command has exited or been cancelled.
const DefaultWaitDelay = 5 * time.Second

// ExecRunner executes commands as child processes. The child's stdout and
// stderr are merged and copied line by line to Out, and handed to OnLine
// when it is set.
type ExecRunner struct {
	Out       io.Writer
	OnLine    func(cmd Command, line string)
	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration
}

// Run starts the command, streams its output and waits for it. A non-zero
// exit is returned as *ExitCodeError. Cancelling ctx kills the process and
// everything it started.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	logger := ctxlog.FromContext(ctx).With("command", cmd.Name)
	logger.Info("Running command.", "cmdline", cmd.String(), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Environ()...)
	// mb.sh starts its jobs as children that inherit the output pipe, so
	// cancellation has to reach the whole process group.
	setProcessGroup(c)
	c.WaitDelay = DefaultWaitDelay
	if r.WaitDelay > 0 {
		c.WaitDelay = r.WaitDelay
	}

	pr, pw := io.Pipe()
	c.Stdout = pw
	c.Stderr = pw

	if err := c.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start %s: %w", cmd.Name, err)
	}
	waitDone := make(chan error, 1)
	go func() {
		err := c.Wait()
		pw.Close()
		waitDone <- err
	}()

	out := r.Out
	if out == nil {
		out = io.Discard
	}
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(out, line)
		if r.OnLine != nil {
			r.OnLine(cmd, line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Drain so the child does not block on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}

	err := <-waitDone
	if errors.Is(err, exec.ErrWaitDelay) {
		logger.Warn("Command exited but left processes holding its output open.")
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			logger.Error("Command failed.", "exit_code", exitErr.ExitCode())
			return &ExitCodeError{Command: cmd.String(), Code: exitErr.ExitCode()}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
		}
		return fmt.Errorf("%s failed: %w", cmd.Name, err)
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read output of %s: %w", cmd.Name, scanErr)
	}

	logger.Debug("Command finished.")
	return nil
}

// DryRunner prints commands instead of running them.
type DryRunner struct {
	Out io.Writer
}

// Run writes "+ <command>" to Out.
func (r *DryRunner) Run(ctx context.Context, cmd Command) error {
	ctxlog.FromContext(ctx).Info("Dry run: skipping command.", "cmdline", cmd.String(), "dir", cmd.Dir)
	if r.Out != nil {
		fmt.Fprintf(r.Out, "+ %s\n", cmd.String())
	}
	return nil
}
