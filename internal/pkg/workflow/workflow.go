// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package workflow supervises the execution of a group's unit list under a
// shared resource budget. Units are admitted strictly in list order, run
// concurrently within the budget, and are resumable: a unit recorded as
// completed is never launched again.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
	"github.com/codarcode/cheetah/internal/pkg/fob"
	"github.com/codarcode/cheetah/internal/pkg/procexec"
	"github.com/codarcode/cheetah/internal/pkg/status"
)

const (
	// WalltimeFileName is the per-unit elapsed-time record
	WalltimeFileName = "codar.cheetah.walltime.txt"

	// JobIDFileName is the group-level file identifying the supervising
	// process, read by external monitor tooling
	JobIDFileName = "codar.cheetah.jobid.txt"
)

// Runner executes one group's unit list. The budget is owned exclusively by
// the runner; admission decrements it and completion increments it, so the
// sum of running allocations never exceeds the budget.
type Runner struct {
	// GroupDir is the group directory (status file, jobid file)
	GroupDir string

	// Units is the ordered unit list for the group
	Units []fob.Descriptor

	// MaxProcs is the group's process-slot budget (0 means unbounded)
	MaxProcs int

	// MaxNodes is the group's node budget (0 means unbounded)
	MaxNodes int

	// Mode is the runner-mode selector recorded in the jobid file
	Mode string

	// GracePeriod is how long a terminated unit's processes get to exit
	// before being killed
	GracePeriod time.Duration

	// Status records every unit transition
	Status *status.Recorder

	// Log is the workflow logger
	Log *zap.Logger

	procSem *semaphore.Weighted
	nodeSem *semaphore.Weighted
}

// Report is the final outcome of one group execution
type Report struct {
	// Total is the number of units in the group
	Total int

	// Skipped is the number of units skipped because a previous invocation
	// completed them
	Skipped int

	// Completed is the number of units that completed in this invocation
	Completed int

	// Failed is the number of units that failed in this invocation
	Failed int
}

// AllDone reports whether every unit of the group is completed, counting
// units skipped on resume.
func (r *Report) AllDone() bool {
	return r.Skipped+r.Completed == r.Total
}

func (r *Runner) validate() error {
	if r.Status == nil {
		return fmt.Errorf("no status recorder")
	}
	for i := range r.Units {
		u := &r.Units[i]
		if r.MaxProcs > 0 && u.Procs > r.MaxProcs {
			return fmt.Errorf("unit %s needs %d process slots but the group budget is %d",
				u.Name, u.Procs, r.MaxProcs)
		}
		if r.MaxNodes > 0 && u.Nodes > r.MaxNodes {
			return fmt.Errorf("unit %s needs %d nodes but the group budget is %d",
				u.Name, u.Nodes, r.MaxNodes)
		}
	}
	return nil
}

func (r *Runner) writeJobID() {
	mode := r.Mode
	if mode == "" {
		mode = "local"
	}
	path := filepath.Join(r.GroupDir, JobIDFileName)
	content := fmt.Sprintf("%s:%d\n", mode, os.Getpid())
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.Log.Warn("unable to write jobid file", zap.String("path", path), zap.Error(err))
	}
}

// Run executes the group. Admission is in ascending (run, iteration) order; a
// unit launches only when the running allocations plus its own fit the
// budget. A failed unit does not stop the group, a failed launch does. The
// returned error is nil unless the group hit a fatal condition; partial
// completion is reported through the Report and the persisted status.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report
	report.Total = len(r.Units)

	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if err := r.validate(); err != nil {
		return report, err
	}
	if r.MaxProcs > 0 {
		r.procSem = semaphore.NewWeighted(int64(r.MaxProcs))
	}
	if r.MaxNodes > 0 {
		r.nodeSem = semaphore.NewWeighted(int64(r.MaxNodes))
	}
	r.writeJobID()

	// A launch failure cancels this context with the launch error as cause,
	// which both stops admission and terminates in-flight units.
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var mu sync.Mutex
	g := new(errgroup.Group)

	for i := range r.Units {
		u := &r.Units[i]

		if st, ok := r.Status.Get(u.Name); ok && st.State == status.Completed {
			r.Log.Info("skipping completed unit", zap.String("unit", u.Name))
			report.Skipped++
			continue
		}
		if err := r.Status.Update(u.Name, func(s *status.Unit) {
			*s = status.Unit{State: status.Pending}
		}); err != nil {
			return report, err
		}

		if err := r.acquire(runCtx, u); err != nil {
			// Admission stopped: either the user interrupt or a fatal
			// launch error from an in-flight unit.
			break
		}

		g.Go(func() error {
			defer r.release(u)

			err := r.runUnit(runCtx, u)
			var launchErr *cheetaherr.UnitLaunchError
			if errors.As(err, &launchErr) {
				cancel(launchErr)
				return err
			}

			mu.Lock()
			if err != nil {
				report.Failed++
			} else {
				report.Completed++
			}
			mu.Unlock()
			// Runtime failures are recorded, not escalated; the group
			// keeps scheduling the remaining units.
			return nil
		})
	}

	err := g.Wait()
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, ctx.Err()) {
		return report, cause
	}
	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	r.Log.Info("group execution finished",
		zap.Int("total", report.Total),
		zap.Int("skipped", report.Skipped),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (r *Runner) acquire(ctx context.Context, u *fob.Descriptor) error {
	if r.procSem != nil {
		if err := r.procSem.Acquire(ctx, int64(u.Procs)); err != nil {
			return err
		}
	}
	if r.nodeSem != nil {
		if err := r.nodeSem.Acquire(ctx, int64(u.Nodes)); err != nil {
			if r.procSem != nil {
				r.procSem.Release(int64(u.Procs))
			}
			return err
		}
	}
	return nil
}

func (r *Runner) release(u *fob.Descriptor) {
	if r.nodeSem != nil {
		r.nodeSem.Release(int64(u.Nodes))
	}
	if r.procSem != nil {
		r.procSem.Release(int64(u.Procs))
	}
}

func envSlice(env map[string]string) []string {
	var out []string
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func codeCommand(code *fob.Code) (string, []string) {
	if code.Launcher == "" {
		return code.Exe, code.Args
	}
	args := append([]string{}, code.LauncherArgs...)
	args = append(args, code.Exe)
	args = append(args, code.Args...)
	return code.Launcher, args
}

// runUnit launches all codes of one unit, waits for all of them and records
// the outcome. The returned error is a UnitLaunchError when a process could
// not be started at all, a UnitRuntimeFailure when one exited non-zero or the
// unit timed out, nil on success.
func (r *Runner) runUnit(ctx context.Context, u *fob.Descriptor) error {
	log := r.Log.With(zap.String("unit", u.Name))

	if err := os.MkdirAll(u.WorkingDir, 0755); err != nil {
		return &cheetaherr.UnitLaunchError{Unit: u.Name, Err: err}
	}

	start := time.Now()
	if err := r.Status.Update(u.Name, func(s *status.Unit) {
		s.State = status.Running
		s.StartTime = start
	}); err != nil {
		return err
	}

	unitCtx := ctx
	var unitCancel context.CancelFunc
	if u.Timeout > 0 {
		unitCtx, unitCancel = context.WithTimeout(ctx, u.Timeout)
	} else {
		unitCtx, unitCancel = context.WithCancel(ctx)
	}
	defer unitCancel()

	// Launch every code of the unit; they form one scheduling atom.
	var procs []*procexec.Proc
	for c := range u.Codes {
		code := &u.Codes[c]
		bin, args := codeCommand(code)
		cmd := procexec.Cmd{
			Name:        code.Name,
			BinPath:     bin,
			CmdArgs:     args,
			ExecDir:     u.WorkingDir,
			Env:         envSlice(code.Env),
			GracePeriod: r.GracePeriod,
		}
		log.Info("launching code", zap.String("code", code.Name),
			zap.String("bin", bin), zap.Strings("args", args))

		p, err := procexec.Start(unitCtx, &cmd)
		if err != nil {
			for _, started := range procs {
				started.Terminate()
				started.Wait()
			}
			launchErr := &cheetaherr.UnitLaunchError{Unit: u.Name, Code: code.Name, Err: err}
			r.recordFailure(u, start, map[string]int{code.Name: -1}, "launch failed")
			return launchErr
		}
		procs = append(procs, p)

		if code.SleepAfter > 0 {
			select {
			case <-unitCtx.Done():
			case <-time.After(code.SleepAfter):
			}
		}
	}

	// Multiplexed wait over the live process set.
	results := make(chan procexec.Result, len(procs))
	for _, p := range procs {
		go func(p *procexec.Proc) {
			results <- p.Wait()
		}(p)
	}

	exitCodes := make(map[string]int, len(procs))
	var failure *cheetaherr.UnitRuntimeFailure
	for range procs {
		res := <-results
		exitCodes[res.Name] = res.ExitCode
		if res.ExitCode != 0 && failure == nil {
			failure = &cheetaherr.UnitRuntimeFailure{
				Unit:     u.Name,
				Code:     res.Name,
				ExitCode: res.ExitCode,
				TimedOut: res.TimedOut,
			}
			if u.KillOnPartialFailure {
				// Take the whole unit down; remaining waits pick up the
				// terminated siblings.
				unitCancel()
			}
		}
	}

	end := time.Now()
	r.writeWalltime(u, end.Sub(start))

	if failure != nil {
		reason := "failed"
		if failure.TimedOut {
			reason = "timeout"
		} else if ctx.Err() != nil {
			reason = "killed"
		}
		log.Warn("unit failed", zap.String("reason", reason),
			zap.Any("exit_codes", exitCodes))
		r.recordFailure(u, start, exitCodes, reason)
		return failure
	}

	sizes := outputSizes(u)
	if err := r.Status.Update(u.Name, func(s *status.Unit) {
		s.State = status.Completed
		s.Reason = "succeeded"
		s.EndTime = end
		s.ExitCodes = exitCodes
		s.OutputSizes = sizes
	}); err != nil {
		return err
	}
	log.Info("unit completed", zap.Duration("walltime", end.Sub(start)))
	return nil
}

func (r *Runner) recordFailure(u *fob.Descriptor, start time.Time, exitCodes map[string]int, reason string) {
	err := r.Status.Update(u.Name, func(s *status.Unit) {
		s.State = status.Failed
		s.Reason = reason
		s.StartTime = start
		s.EndTime = time.Now()
		s.ExitCodes = exitCodes
	})
	if err != nil {
		r.Log.Error("unable to record unit failure", zap.String("unit", u.Name), zap.Error(err))
	}
}

func (r *Runner) writeWalltime(u *fob.Descriptor, elapsed time.Duration) {
	path := filepath.Join(u.WorkingDir, WalltimeFileName)
	content := fmt.Sprintf("%.3f\n", elapsed.Seconds())
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.Log.Warn("unable to write walltime file", zap.String("path", path), zap.Error(err))
	}
}

func outputSizes(u *fob.Descriptor) map[string]int64 {
	if len(u.Outputs) == 0 {
		return nil
	}
	sizes := make(map[string]int64, len(u.Outputs))
	for _, out := range u.Outputs {
		info, err := os.Stat(filepath.Join(u.WorkingDir, out))
		if err != nil {
			sizes[out] = -1
			continue
		}
		sizes[out] = info.Size()
	}
	return sizes
}
