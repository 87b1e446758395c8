// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"github.com/codarcode/cheetah/internal/pkg/machines"
)

// LocalArgs computes the argument vector for the no-scheduler backend. There
// is no launcher, so the vector is empty and the application command is
// spawned directly.
func LocalArgs(profile *machines.Profile, req *Request) ([]string, error) {
	return nil, nil
}

// LocalNodes computes the node footprint of a request when there is no
// allocation: everything runs on the one local node.
func LocalNodes(profile *machines.Profile, req *Request) (int, error) {
	return 1, nil
}

// LocalLoad returns the local backend with all its "function pointers" set.
// This is the default backend; nothing is probed because direct spawn always
// works, and if a real scheduler is wanted the machine profile selects it.
func LocalLoad() Backend {
	var b Backend
	b.ID = LocalID
	b.Args = LocalArgs
	b.Nodes = LocalNodes
	return b
}
