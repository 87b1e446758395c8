// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sweep

import (
	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
)

// Param is one parameter of a sweep: a name and the ordered list of candidate
// values to sweep over
type Param struct {
	// Name identifies the parameter within its sweep
	Name string `yaml:"name" json:"name"`

	// Values is the ordered list of candidate values
	Values []string `yaml:"values" json:"values"`
}

// Sweep is one cartesian-product parameter space
type Sweep struct {
	// Name identifies the sweep within its group
	Name string `yaml:"name" json:"name"`

	// Params is the ordered list of parameters; the rightmost parameter
	// varies fastest during expansion
	Params []Param `yaml:"parameters" json:"parameters"`

	// Repetitions is the number of times each parameter assignment is run
	Repetitions int `yaml:"repetitions" json:"repetitions"`
}

// Group is an ordered collection of sweeps sharing one batch allocation
type Group struct {
	// Name identifies the sweep group within its campaign
	Name string `yaml:"name" json:"name"`

	// Sweeps is the ordered list of sweeps; sweeps are concatenated, not
	// interleaved, when assigning run identifiers
	Sweeps []Sweep `yaml:"sweeps" json:"sweeps"`

	// Walltime is the walltime requested for the group's allocation
	Walltime string `yaml:"walltime" json:"walltime"`

	// MaxProcs is the group's process-slot budget
	MaxProcs int `yaml:"max_procs" json:"max_procs"`

	// Nodes is the group's node budget
	Nodes int `yaml:"nodes" json:"nodes"`
}

// Assignment is one concrete assignment of every parameter of one sweep,
// identified by (RunID, IterationID)
type Assignment struct {
	// RunID is the zero-based index into the cartesian product of the
	// sweep's parameter-value lists, in declaration order
	RunID int

	// IterationID is the zero-based repetition index
	IterationID int

	// Params is the name of each parameter in declaration order
	Params []string

	// Values is the value assigned to each parameter, index-aligned with Params
	Values []string
}

// Get returns the value assigned to the named parameter, or "" when the
// assignment does not carry it.
func (a *Assignment) Get(param string) string {
	for i, p := range a.Params {
		if p == param {
			return a.Values[i]
		}
	}
	return ""
}

func validate(s *Sweep) error {
	if len(s.Params) == 0 {
		return &cheetaherr.InvalidSweepError{Sweep: s.Name, Reason: "no parameters declared"}
	}
	if s.Repetitions < 1 {
		return &cheetaherr.InvalidSweepError{Sweep: s.Name, Reason: "repetitions must be at least 1"}
	}
	seen := make(map[string]bool)
	for _, p := range s.Params {
		if len(p.Values) == 0 {
			return &cheetaherr.InvalidSweepError{Sweep: s.Name, Param: p.Name, Reason: "empty value list"}
		}
		if seen[p.Name] {
			return &cheetaherr.InvalidSweepError{Sweep: s.Name, Param: p.Name, Reason: "duplicate parameter name"}
		}
		seen[p.Name] = true
	}
	return nil
}

// Expand computes the ordered list of assignments for one sweep: the cartesian
// product of the parameter-value lists in declaration order, the rightmost
// parameter varying fastest, each product entry replicated Repetitions times
// with RunID held constant across repetitions. Expansion is pure; re-running
// it on an unchanged sweep yields an identical ordering, which is what makes
// resumed campaigns keep their unit numbering.
func Expand(s *Sweep) ([]Assignment, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}

	total := 1
	for _, p := range s.Params {
		total *= len(p.Values)
	}

	assignments := make([]Assignment, 0, total*s.Repetitions)
	indices := make([]int, len(s.Params))
	for runID := 0; runID < total; runID++ {
		values := make([]string, len(s.Params))
		for i, p := range s.Params {
			values[i] = p.Values[indices[i]]
		}
		for iter := 0; iter < s.Repetitions; iter++ {
			assignments = append(assignments, Assignment{
				RunID:       runID,
				IterationID: iter,
				Params:      names,
				Values:      values,
			})
		}

		// Advance the rightmost index first (row-major enumeration)
		for i := len(indices) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(s.Params[i].Values) {
				break
			}
			indices[i] = 0
		}
	}

	return assignments, nil
}

// ExpandGroup expands every sweep of a group and concatenates the results,
// offsetting run identifiers so that (RunID, IterationID) is unique across
// the whole group.
func ExpandGroup(g *Group) ([]Assignment, error) {
	var all []Assignment
	offset := 0
	for i := range g.Sweeps {
		assignments, err := Expand(&g.Sweeps[i])
		if err != nil {
			return nil, err
		}
		maxRun := -1
		for _, a := range assignments {
			a.RunID += offset
			if a.RunID > maxRun {
				maxRun = a.RunID
			}
			all = append(all, a)
		}
		offset = maxRun + 1
	}
	return all, nil
}
