// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"strconv"

	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
	"github.com/codarcode/cheetah/internal/pkg/machines"
)

// jsrunShape is the resolved resource-set geometry for a request: how many
// resource sets, and what each set binds.
type jsrunShape struct {
	sets        int
	ranksPerSet int
	coresPerSet int
	gpusPerSet  int
	setsPerNode int
}

// jsrunResolve validates a request against the machine's node architecture
// and computes its resource-set geometry. One resource set per node is used,
// sized by the requested node layout; this is the shape the machine's
// heterogeneous nodes require for explicit rank/GPU/core binding.
func jsrunResolve(profile *machines.Profile, req *Request) (jsrunShape, error) {
	var shape jsrunShape

	rpn, err := ranksPerNode(profile, req)
	if err != nil {
		return shape, err
	}

	cores := req.CoresPerRank
	if cores == 0 {
		cores = 1
	}

	shape.ranksPerSet = rpn
	shape.coresPerSet = cores * rpn
	shape.gpusPerSet = req.GPUsPerRank * rpn
	shape.sets = divCeil(req.NProcs, rpn)
	shape.setsPerNode = 1

	if shape.gpusPerSet > profile.GPUsPerNode {
		return shape, &cheetaherr.UnsupportedResourceShapeError{
			Machine: profile.Name,
			Reason: "resource set needs " + strconv.Itoa(shape.gpusPerSet) +
				" GPUs but nodes hold " + strconv.Itoa(profile.GPUsPerNode),
		}
	}

	return shape, nil
}

// JsrunArgs computes the jsrun argument vector for a request: number of
// resource sets and per-set rank, core and GPU binding.
func JsrunArgs(profile *machines.Profile, req *Request) ([]string, error) {
	shape, err := jsrunResolve(profile, req)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-n", strconv.Itoa(shape.sets),
		"-a", strconv.Itoa(shape.ranksPerSet),
		"-c", strconv.Itoa(shape.coresPerSet),
		"-g", strconv.Itoa(shape.gpusPerSet),
		"-r", strconv.Itoa(shape.setsPerNode),
	}
	return args, nil
}

// JsrunNodes computes the node footprint of a request under resource-set
// placement.
func JsrunNodes(profile *machines.Profile, req *Request) (int, error) {
	shape, err := jsrunResolve(profile, req)
	if err != nil {
		return 0, err
	}
	return divCeil(shape.sets, shape.setsPerNode), nil
}

// JsrunLoad returns the jsrun backend with all its "function pointers" set.
func JsrunLoad() Backend {
	var b Backend
	b.ID = JsrunID
	b.Launcher = "jsrun"
	b.Args = JsrunArgs
	b.Nodes = JsrunNodes
	return b
}
