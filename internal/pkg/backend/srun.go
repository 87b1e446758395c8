// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"strconv"

	"github.com/codarcode/cheetah/internal/pkg/machines"
)

// SrunArgs computes the srun argument vector for a request: explicit task
// count, per-node placement and node count within the group's shared
// allocation.
func SrunArgs(profile *machines.Profile, req *Request) ([]string, error) {
	rpn, err := ranksPerNode(profile, req)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-n", strconv.Itoa(req.NProcs),
		"--ntasks-per-node=" + strconv.Itoa(rpn),
		"--nodes=" + strconv.Itoa(divCeil(req.NProcs, rpn)),
	}
	return args, nil
}

// SrunNodes computes the node footprint of a request under srun placement.
func SrunNodes(profile *machines.Profile, req *Request) (int, error) {
	rpn, err := ranksPerNode(profile, req)
	if err != nil {
		return 0, err
	}
	return divCeil(req.NProcs, rpn), nil
}

// SrunLoad returns the srun backend with all its "function pointers" set.
func SrunLoad() Backend {
	var b Backend
	b.ID = SrunID
	b.Launcher = "srun"
	b.Args = SrunArgs
	b.Nodes = SrunNodes
	return b
}
