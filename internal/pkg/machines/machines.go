// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package machines

import (
	"fmt"
	"os"
	"runtime"

	"github.com/gvallee/kv/pkg/kv"
	"gopkg.in/yaml.v3"
)

// Profile describes a target system: which scheduler launches jobs on it and
// what a node can hold. Profiles are read-only input to the backend mapper.
type Profile struct {
	// Name is the machine name, e.g. "titan" or "summit"
	Name string `yaml:"name"`

	// Scheduler is the backend kind used on the machine ("srun", "aprun",
	// "jsrun" or "local")
	Scheduler string `yaml:"scheduler"`

	// ProcessesPerNode is the number of processes a node can host
	ProcessesPerNode int `yaml:"processes_per_node"`

	// GPUsPerNode is the number of GPUs per node (0 on homogeneous machines)
	GPUsPerNode int `yaml:"gpus_per_node"`

	// NodeExclusive indicates whether the scheduler hands out whole nodes
	NodeExclusive bool `yaml:"node_exclusive"`
}

// Options gathers the machine-specific scheduler options loaded from the
// machine configuration hook (a key=value file sourced before launch).
type Options struct {
	// Account is the allocation account/project to charge
	Account string

	// Queue is the submission queue/partition
	Queue string

	// Constraint is a scheduler-specific node constraint expression
	Constraint string

	// License is a scheduler-specific license request
	License string
}

const (
	// AccountKey is the key used in the machine configuration file for the account to charge
	AccountKey = "account"

	// QueueKey is the key used in the machine configuration file for the submission queue
	QueueKey = "queue"

	// ConstraintKey is the key used in the machine configuration file for node constraints
	ConstraintKey = "constraint"

	// LicenseKey is the key used in the machine configuration file for license requests
	LicenseKey = "license"
)

var builtin = []Profile{
	{Name: "titan", Scheduler: "aprun", ProcessesPerNode: 16, NodeExclusive: true},
	{Name: "theta", Scheduler: "aprun", ProcessesPerNode: 64, NodeExclusive: true},
	{Name: "cori", Scheduler: "srun", ProcessesPerNode: 32, NodeExclusive: true},
	{Name: "summit", Scheduler: "jsrun", ProcessesPerNode: 42, GPUsPerNode: 6, NodeExclusive: true},
	{Name: "local", Scheduler: "local", ProcessesPerNode: runtime.NumCPU()},
}

// Get returns the built-in profile for a machine name.
func Get(name string) (Profile, error) {
	for _, p := range builtin {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown machine: %s", name)
}

// Load reads a machine profile from a YAML file. Unknown keys are rejected so
// a typo in a profile fails before any expansion or execution starts.
func Load(path string) (Profile, error) {
	var p Profile

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("unable to open machine profile %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("unable to parse machine profile %s: %w", path, err)
	}

	if p.Name == "" {
		return p, fmt.Errorf("machine profile %s does not set a name", path)
	}
	if p.Scheduler == "" {
		return p, fmt.Errorf("machine profile %s does not set a scheduler", path)
	}
	if p.ProcessesPerNode < 1 {
		return p, fmt.Errorf("machine profile %s: processes_per_node must be at least 1", path)
	}

	return p, nil
}

// LoadOptions reads the machine-specific scheduler options from a key=value
// configuration file. A missing file is not an error; all options are optional.
func LoadOptions(path string) (Options, error) {
	var opts Options

	if path == "" {
		return opts, nil
	}
	if _, err := os.Stat(path); err != nil {
		return opts, nil
	}

	kvs, err := kv.LoadKeyValueConfig(path)
	if err != nil {
		return opts, fmt.Errorf("unable to load machine configuration from %s: %w", path, err)
	}

	opts.Account = kv.GetValue(kvs, AccountKey)
	opts.Queue = kv.GetValue(kvs, QueueKey)
	opts.Constraint = kv.GetValue(kvs, ConstraintKey)
	opts.License = kv.GetValue(kvs, LicenseKey)

	return opts, nil
}
