// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package campaign

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env is the environment contract a group execution consumes from its
// collaborators: the submission machinery exports these (see group-env.sh)
// before invoking the workflow runner.
type Env struct {
	// Machine is the target machine name
	Machine string `env:"CODAR_CHEETAH_MACHINE" envDefault:"local"`

	// LogLevel is the workflow log level
	LogLevel string `env:"CODAR_WORKFLOW_LOG_LEVEL" envDefault:"info"`

	// RunnerMode selects the backend kind, or "none" for direct local spawn
	RunnerMode string `env:"CODAR_WORKFLOW_RUNNER" envDefault:"none"`

	// MaxProcs is the group's process-slot budget (0 means unbounded)
	MaxProcs int `env:"CODAR_CHEETAH_GROUP_MAX_PROCS"`

	// MaxNodes is the group's node budget (0 means unbounded)
	MaxNodes int `env:"CODAR_CHEETAH_GROUP_NODES"`

	// MachineConfig is the path to the machine-specific key=value
	// configuration hook, sourced before launch
	MachineConfig string `env:"CODAR_CHEETAH_MACHINE_CONFIG"`
}

// LoadEnv parses the group environment contract from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("unable to parse group environment: %w", err)
	}
	return e, nil
}
