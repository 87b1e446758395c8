// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package campaign ties the expansion pipeline together: it loads and
// validates a campaign specification, expands each group into its unit list
// and materializes group directories with everything the workflow runner and
// external tools consume.
package campaign

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codarcode/cheetah/internal/pkg/sweep"
)

// CodeSpec declares one coupled application of a campaign
type CodeSpec struct {
	// Name identifies the code; it suffixes the per-code output artifacts
	Name string `yaml:"name"`

	// Exe is the path to the application binary
	Exe string `yaml:"exe"`

	// Args is the application argument vector; entries may reference sweep
	// parameters as ${name}
	Args []string `yaml:"args"`

	// NProcsParam names the sweep parameter holding the code's rank count
	NProcsParam string `yaml:"nprocs_param"`

	// RanksPerNodeParam names the sweep parameter holding the node layout
	RanksPerNodeParam string `yaml:"ranks_per_node_param"`

	// GPUsPerRank is the number of GPUs each rank binds
	GPUsPerRank int `yaml:"gpus_per_rank"`

	// Env is extra environment for the code's processes
	Env map[string]string `yaml:"env"`

	// SleepAfter is how long to pause after starting the code before
	// starting the next one, in seconds
	SleepAfter float64 `yaml:"sleep_after"`

	// Outputs is the list of output artifacts the code declares, relative
	// to the unit directory
	Outputs []string `yaml:"outputs"`
}

// GroupSpec declares one sweep group of a campaign
type GroupSpec struct {
	// Name identifies the group; it names the group directory
	Name string `yaml:"name"`

	// Sweeps is the ordered list of sweeps sharing the group's allocation
	Sweeps []sweep.Sweep `yaml:"sweeps"`

	// Walltime is the allocation walltime, "HH:MM:SS" or a duration string
	Walltime string `yaml:"walltime"`

	// MaxProcs is the group's process-slot budget
	MaxProcs int `yaml:"max_procs"`

	// Nodes is the group's node budget
	Nodes int `yaml:"nodes"`

	// Timeout bounds each unit's runtime, "HH:MM:SS" or a duration string
	Timeout string `yaml:"timeout"`

	// KillOnPartialFailure terminates a unit's sibling codes when one code fails
	KillOnPartialFailure bool `yaml:"kill_on_partial_failure"`
}

// Spec is the validated campaign specification
type Spec struct {
	// Name is the campaign name
	Name string `yaml:"name"`

	// Machine is the target machine name
	Machine string `yaml:"machine"`

	// Codes is the ordered list of coupled applications every unit launches
	Codes []CodeSpec `yaml:"codes"`

	// Groups is the ordered list of sweep groups
	Groups []GroupSpec `yaml:"groups"`
}

// LoadSpec reads a campaign specification file. Unknown keys are rejected and
// the specification is validated eagerly, before any expansion or resource
// use.
func LoadSpec(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open campaign specification %s: %w", path, err)
	}
	defer f.Close()

	var spec Spec
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("unable to parse campaign specification %s: %w", path, err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the specification for the mistakes that must surface before
// execution begins: missing names, empty code or group lists, unparsable
// walltimes and malformed sweeps.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("campaign has no name")
	}
	if len(s.Codes) == 0 {
		return fmt.Errorf("campaign %s declares no codes", s.Name)
	}
	for _, c := range s.Codes {
		if c.Name == "" || c.Exe == "" {
			return fmt.Errorf("campaign %s: every code needs a name and an exe", s.Name)
		}
	}
	if len(s.Groups) == 0 {
		return fmt.Errorf("campaign %s declares no groups", s.Name)
	}
	for i := range s.Groups {
		g := &s.Groups[i]
		if g.Name == "" {
			return fmt.Errorf("campaign %s: group %d has no name", s.Name, i)
		}
		if g.Walltime != "" {
			if _, err := ParseWalltime(g.Walltime); err != nil {
				return fmt.Errorf("group %s: %w", g.Name, err)
			}
		}
		if g.Timeout != "" {
			if _, err := ParseWalltime(g.Timeout); err != nil {
				return fmt.Errorf("group %s: %w", g.Name, err)
			}
		}
		// Expansion validates the sweeps themselves; running it here keeps
		// the whole specification eagerly checked in one pass.
		if _, err := sweep.ExpandGroup(g.SweepGroup()); err != nil {
			return err
		}
	}
	return nil
}

// SweepGroup returns the group's expansion-facing view.
func (g *GroupSpec) SweepGroup() *sweep.Group {
	return &sweep.Group{
		Name:     g.Name,
		Sweeps:   g.Sweeps,
		Walltime: g.Walltime,
		MaxProcs: g.MaxProcs,
		Nodes:    g.Nodes,
	}
}

// ParseWalltime parses a walltime string, accepting the scheduler-style
// "HH:MM:SS" form and Go duration strings.
func ParseWalltime(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		sec, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, fmt.Errorf("invalid walltime: %s", s)
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid walltime: %s", s)
	}
	return d, nil
}
