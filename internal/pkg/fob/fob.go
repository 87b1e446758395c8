// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fob builds and serializes unit descriptors. A FOB is the set of
// coupled application processes that form one experiment run; it is created
// once at campaign-generation time and immutable thereafter.
package fob

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/codarcode/cheetah/internal/pkg/backend"
	"github.com/codarcode/cheetah/internal/pkg/machines"
	"github.com/codarcode/cheetah/internal/pkg/sweep"
)

// Code is one application process group of a unit, with its launcher mapping
// already resolved
type Code struct {
	// Name identifies the code within its unit, e.g. "simulation" or "analysis"
	Name string `json:"name"`

	// Exe is the path to the application binary
	Exe string `json:"exe"`

	// Args is the application argument vector
	Args []string `json:"args"`

	// NProcs is the number of processes (ranks) the code runs with
	NProcs int `json:"nprocs"`

	// Launcher is the launcher binary that starts the code ("" for direct spawn)
	Launcher string `json:"launcher,omitempty"`

	// LauncherArgs is the launcher argument vector placed before the
	// application command
	LauncherArgs []string `json:"launcher_args,omitempty"`

	// Nodes is the number of nodes the code occupies
	Nodes int `json:"nodes"`

	// Env is extra environment for the code's processes
	Env map[string]string `json:"env,omitempty"`

	// SleepAfter is how long the runner pauses after starting the code
	// before starting the next one (lets coupling channels come up)
	SleepAfter time.Duration `json:"sleep_after,omitempty"`
}

// Descriptor is the executable launch specification for one experiment: its
// stable name, its coupled codes and the group-relative resources it consumes
type Descriptor struct {
	// Name is the unit's stable unique name, derived from the run and
	// iteration identifiers; it also names the unit's directory and is the
	// identity key used for resume matching
	Name string `json:"name"`

	// RunID is the index of the unit's parameter assignment
	RunID int `json:"run_id"`

	// IterationID is the unit's repetition index
	IterationID int `json:"iteration_id"`

	// Codes is the ordered list of coupled application processes
	Codes []Code `json:"codes"`

	// WorkingDir is the unit's directory
	WorkingDir string `json:"working_dir"`

	// Nodes is the number of nodes the unit consumes from the group budget
	Nodes int `json:"nodes"`

	// Procs is the number of process slots the unit consumes from the group budget
	Procs int `json:"procs"`

	// Timeout bounds the unit's runtime (0 means no bound)
	Timeout time.Duration `json:"timeout,omitempty"`

	// KillOnPartialFailure makes the runner terminate sibling codes as soon
	// as one code of the unit fails
	KillOnPartialFailure bool `json:"kill_on_partial_failure,omitempty"`

	// Outputs is the list of declared output artifacts (relative to
	// WorkingDir) whose sizes are recorded on completion
	Outputs []string `json:"outputs,omitempty"`

	// Params is the unit's parameter assignment, kept so the descriptor is
	// self-contained for post-processing
	Params map[string]string `json:"params,omitempty"`
}

// Template describes one coupled application of a sweep group before
// parameter substitution
type Template struct {
	// Name identifies the code within the group
	Name string

	// Exe is the path to the application binary
	Exe string

	// Args is the application argument vector; entries may reference sweep
	// parameters as ${name}
	Args []string

	// NProcsParam is the name of the sweep parameter holding the code's rank
	// count ("" means one process)
	NProcsParam string

	// RanksPerNodeParam is the name of the sweep parameter holding the
	// code's node layout ("" means pack to machine capacity)
	RanksPerNodeParam string

	// GPUsPerRank is the number of GPUs each rank binds (resource-set
	// launchers only)
	GPUsPerRank int

	// Env is extra environment for the code's processes
	Env map[string]string

	// SleepAfter is how long to pause after starting the code
	SleepAfter time.Duration

	// Outputs is the list of output artifacts the code declares
	Outputs []string
}

// Options gathers the group-level settings applied to every built descriptor
type Options struct {
	// GroupDir is the group directory under which unit directories live
	GroupDir string

	// Timeout bounds each unit's runtime (0 means no bound)
	Timeout time.Duration

	// KillOnPartialFailure terminates sibling codes when one code fails
	KillOnPartialFailure bool
}

// UnitName derives the stable unit name from a run and iteration identifier.
// The name doubles as the on-disk directory and the resume key, so it must
// come out identical on every invocation.
func UnitName(runID int, iterationID int) string {
	return "run-" + strconv.Itoa(runID) + ".iteration-" + strconv.Itoa(iterationID)
}

func intParam(a *sweep.Assignment, name string, fallback int) (int, error) {
	if name == "" {
		return fallback, nil
	}
	v := a.Get(name)
	if v == "" {
		return 0, fmt.Errorf("assignment does not carry parameter %s", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %s is not an integer: %s", name, v)
	}
	return n, nil
}

func buildCode(tmpl *Template, a *sweep.Assignment, profile *machines.Profile) (Code, error) {
	var code Code

	nprocs, err := intParam(a, tmpl.NProcsParam, 1)
	if err != nil {
		return code, err
	}
	rpn, err := intParam(a, tmpl.RanksPerNodeParam, 0)
	if err != nil {
		return code, err
	}

	req := backend.Request{
		NProcs:       nprocs,
		RanksPerNode: rpn,
		GPUsPerRank:  tmpl.GPUsPerRank,
	}
	plan, err := backend.Map(&req, profile)
	if err != nil {
		return code, err
	}

	args := make([]string, len(tmpl.Args))
	for i, arg := range tmpl.Args {
		args[i] = os.Expand(arg, a.Get)
	}

	code.Name = tmpl.Name
	code.Exe = tmpl.Exe
	code.Args = args
	code.NProcs = nprocs
	code.Launcher = plan.Launcher
	code.LauncherArgs = plan.Args
	code.Nodes = plan.Nodes
	code.Env = tmpl.Env
	code.SleepAfter = tmpl.SleepAfter
	return code, nil
}

// Build merges a group's expanded assignments with the backend mapping and
// naming rules, producing one self-contained descriptor per experiment in
// assignment order. Directory materialization is left to the caller.
func Build(templates []Template, assignments []sweep.Assignment, profile *machines.Profile, opts Options) ([]Descriptor, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("no code templates")
	}

	descriptors := make([]Descriptor, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]

		d := Descriptor{
			Name:                 UnitName(a.RunID, a.IterationID),
			RunID:                a.RunID,
			IterationID:          a.IterationID,
			Timeout:              opts.Timeout,
			KillOnPartialFailure: opts.KillOnPartialFailure,
			Params:               make(map[string]string, len(a.Params)),
		}
		d.WorkingDir = filepath.Join(opts.GroupDir, d.Name)
		for j, p := range a.Params {
			d.Params[p] = a.Values[j]
		}

		for t := range templates {
			code, err := buildCode(&templates[t], a, profile)
			if err != nil {
				return nil, fmt.Errorf("unit %s, code %s: %w", d.Name, templates[t].Name, err)
			}
			d.Codes = append(d.Codes, code)
			d.Nodes += code.Nodes
			d.Procs += code.NProcs
			for _, out := range templates[t].Outputs {
				d.Outputs = append(d.Outputs, out)
			}
		}

		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}
