// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package procexec starts and supervises the OS processes of a unit's codes.
// Each process gets its stdout and stderr captured to per-code artifacts in
// the unit directory, and termination is a signal followed by a bounded grace
// period before the process is killed.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	// StdoutPrefix is the artifact name prefix for a code's captured stdout
	StdoutPrefix = "codar.workflow.stdout."

	// StderrPrefix is the artifact name prefix for a code's captured stderr
	StderrPrefix = "codar.workflow.stderr."

	// DefaultGracePeriod is how long a signaled process gets to exit cleanly
	// before it is killed
	DefaultGracePeriod = 10 * time.Second
)

// Cmd represents one code's process launch
type Cmd struct {
	// Name is the code name; it suffixes the stdout/stderr artifact names
	Name string

	// BinPath is the binary to execute (the launcher when one is used)
	BinPath string

	// CmdArgs is the full argument vector
	CmdArgs []string

	// ExecDir is the directory where to execute the command; the capture
	// artifacts are created there
	ExecDir string

	// Env is extra environment appended to the current process environment
	Env []string

	// GracePeriod is how long the process gets between the termination
	// signal and the kill (0 means DefaultGracePeriod)
	GracePeriod time.Duration
}

// Result represents the outcome of one supervised process
type Result struct {
	// Name is the code name the result belongs to
	Name string

	// ExitCode is the process exit code; -1 when the process was killed or
	// did not exit normally
	ExitCode int

	// TimedOut indicates the process was terminated because its context expired
	TimedOut bool

	// Err is the Go error associated to the wait, nil on a zero exit
	Err error
}

// Proc is a started process under supervision
type Proc struct {
	name   string
	cmd    *exec.Cmd
	ctx    context.Context
	stdout *os.File
	stderr *os.File
}

// Start launches a code's process with its output captured. The context
// controls the process lifetime: on cancellation or deadline the process is
// sent SIGTERM and killed after the grace period.
func Start(ctx context.Context, c *Cmd) (*Proc, error) {
	grace := c.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}

	stdout, err := os.Create(c.StdoutPath())
	if err != nil {
		return nil, fmt.Errorf("unable to create stdout capture for %s: %w", c.Name, err)
	}
	stderr, err := os.Create(c.StderrPath())
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("unable to create stderr capture for %s: %w", c.Name, err)
	}

	cmd := exec.CommandContext(ctx, c.BinPath, c.CmdArgs...)
	cmd.Dir = c.ExecDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, err
	}

	return &Proc{name: c.Name, cmd: cmd, ctx: ctx, stdout: stdout, stderr: stderr}, nil
}

// StdoutPath returns the path of the code's stdout capture artifact.
func (c *Cmd) StdoutPath() string {
	return filepath.Join(c.ExecDir, StdoutPrefix+c.Name)
}

// StderrPath returns the path of the code's stderr capture artifact.
func (c *Cmd) StderrPath() string {
	return filepath.Join(c.ExecDir, StderrPrefix+c.Name)
}

// Pid returns the process identifier of the started process.
func (p *Proc) Pid() int {
	return p.cmd.Process.Pid
}

// Terminate asks the process to exit. The grace handling set up at Start
// still applies through the context; Terminate is for killing siblings of a
// failed code.
func (p *Proc) Terminate() {
	if p.cmd.Process != nil {
		p.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// Wait blocks until the process exits and returns its outcome, closing the
// capture artifacts.
func (p *Proc) Wait() Result {
	res := Result{Name: p.name}

	err := p.cmd.Wait()
	p.stdout.Close()
	p.stderr.Close()

	if err == nil {
		res.ExitCode = 0
		return res
	}

	res.Err = err
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if p.ctx.Err() != nil && errors.Is(p.ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	return res
}
