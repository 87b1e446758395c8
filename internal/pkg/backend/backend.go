// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"fmt"

	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
	"github.com/codarcode/cheetah/internal/pkg/machines"
)

const (
	// SrunID is the value set to Backend.ID for Slurm-style PMI launchers
	SrunID = "srun"

	// AprunID is the value set to Backend.ID for Cray ALPS launchers
	AprunID = "aprun"

	// JsrunID is the value set to Backend.ID for resource-set launchers on
	// machines with non-uniform node architecture
	JsrunID = "jsrun"

	// LocalID is the value set to Backend.ID when no scheduler is available
	// and processes are spawned directly
	LocalID = "local"

	// NoneID is the runner-mode selector value that maps to the local backend
	NoneID = "none"
)

// Request is the abstract per-code resource request that gets mapped onto a
// concrete launcher invocation
type Request struct {
	// NProcs is the total number of processes (ranks) to launch
	NProcs int

	// RanksPerNode is the requested node layout; 0 means pack nodes to the
	// machine's capacity
	RanksPerNode int

	// CoresPerRank is the number of cores to bind per rank (resource-set
	// launchers only; 0 means 1)
	CoresPerRank int

	// GPUsPerRank is the number of GPUs to bind per rank (resource-set
	// launchers only)
	GPUsPerRank int
}

// Plan is the concrete launch mapping for one code: the launcher binary, the
// launcher-specific argument vector to place before the application command,
// and the number of nodes the code occupies
type Plan struct {
	// Launcher is the launcher binary ("" for direct spawn)
	Launcher string

	// Args is the launcher argument vector
	Args []string

	// Nodes is the number of nodes the mapped code occupies
	Nodes int
}

// ArgsFn is a "function pointer" that computes the launcher argument vector
// for a request on a given machine
type ArgsFn func(*machines.Profile, *Request) ([]string, error)

// NodesFn is a "function pointer" that computes how many nodes a request
// occupies on a given machine
type NodesFn func(*machines.Profile, *Request) (int, error)

// Backend is the structure representing a specific launch backend
type Backend struct {
	// ID identifies the backend kind
	ID string

	// Launcher is the launcher binary associated with the backend
	Launcher string

	// Args is the function that computes the launcher argument vector
	Args ArgsFn

	// Nodes is the function that computes the node footprint of a request
	Nodes NodesFn
}

// Load resolves a backend kind by name. The set of kinds is closed; adding a
// new launcher means adding one new file with its Args/Nodes functions and
// one entry here.
func Load(kind string) (Backend, error) {
	switch kind {
	case SrunID:
		return SrunLoad(), nil
	case AprunID:
		return AprunLoad(), nil
	case JsrunID:
		return JsrunLoad(), nil
	case LocalID, NoneID, "":
		return LocalLoad(), nil
	}
	return Backend{}, fmt.Errorf("unknown backend kind: %s", kind)
}

// Detect returns the backend associated with a machine profile.
func Detect(profile *machines.Profile) (Backend, error) {
	b, err := Load(profile.Scheduler)
	if err != nil {
		return b, fmt.Errorf("machine %s: %w", profile.Name, err)
	}
	return b, nil
}

// Map validates a request against a machine profile and computes the concrete
// launch plan for it through the machine's backend.
func Map(req *Request, profile *machines.Profile) (Plan, error) {
	var plan Plan

	if req.NProcs < 1 {
		return plan, &cheetaherr.UnsupportedResourceShapeError{
			Machine: profile.Name,
			Reason:  "request has no processes",
		}
	}

	if profile.ProcessesPerNode < 1 {
		return plan, &cheetaherr.UnsupportedResourceShapeError{
			Machine: profile.Name,
			Reason:  "machine profile declares no per-node process capacity",
		}
	}

	b, err := Detect(profile)
	if err != nil {
		return plan, err
	}

	nodes, err := b.Nodes(profile, req)
	if err != nil {
		return plan, err
	}

	args, err := b.Args(profile, req)
	if err != nil {
		return plan, err
	}

	plan.Launcher = b.Launcher
	plan.Args = args
	plan.Nodes = nodes
	return plan, nil
}

// ranksPerNode resolves the effective node layout of a request, checking it
// against the machine's per-node capacity.
func ranksPerNode(profile *machines.Profile, req *Request) (int, error) {
	rpn := req.RanksPerNode
	if rpn == 0 {
		rpn = profile.ProcessesPerNode
		if req.NProcs < rpn {
			rpn = req.NProcs
		}
	}
	if rpn > profile.ProcessesPerNode {
		return 0, &cheetaherr.UnsupportedResourceShapeError{
			Machine: profile.Name,
			Reason: fmt.Sprintf("%d ranks per node requested but nodes hold %d processes",
				rpn, profile.ProcessesPerNode),
		}
	}
	return rpn, nil
}

func divCeil(a, b int) int {
	return (a + b - 1) / b
}
