// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"strconv"

	"github.com/codarcode/cheetah/internal/pkg/machines"
)

// AprunArgs computes the aprun argument vector for a request. ALPS figures
// node counts out from the task count and per-node placement, so only -n/-N
// are emitted.
func AprunArgs(profile *machines.Profile, req *Request) ([]string, error) {
	rpn, err := ranksPerNode(profile, req)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-n", strconv.Itoa(req.NProcs),
		"-N", strconv.Itoa(rpn),
	}
	return args, nil
}

// AprunNodes computes the node footprint of a request under ALPS placement.
func AprunNodes(profile *machines.Profile, req *Request) (int, error) {
	rpn, err := ranksPerNode(profile, req)
	if err != nil {
		return 0, err
	}
	return divCeil(req.NProcs, rpn), nil
}

// AprunLoad returns the aprun backend with all its "function pointers" set.
func AprunLoad() Backend {
	var b Backend
	b.ID = AprunID
	b.Launcher = "aprun"
	b.Args = AprunArgs
	b.Nodes = AprunNodes
	return b
}
