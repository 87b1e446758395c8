// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package status persists per-unit run state. The status file is the
// authoritative record for resume and report generation, and it may be read
// at any time by external tools while the workflow is running, so every
// update replaces the file atomically.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the name of the status file in a group directory
const FileName = "codar.workflow.status.json"

// State is the lifecycle state of one unit
type State string

const (
	// Pending is the state of a unit that has not been admitted yet
	Pending State = "pending"

	// Running is the state of a unit whose processes have been launched
	Running State = "running"

	// Completed is the state of a unit whose processes all exited successfully
	Completed State = "completed"

	// Failed is the state of a unit with at least one non-zero exit or a timeout
	Failed State = "failed"
)

// Unit is the persisted status of one unit
type Unit struct {
	// State is the unit's lifecycle state
	State State `json:"state"`

	// Reason records why a unit ended up in a terminal state
	Reason string `json:"reason,omitempty"`

	// StartTime is when the unit's first process was launched
	StartTime time.Time `json:"start_time,omitzero"`

	// EndTime is when the unit's last process exited
	EndTime time.Time `json:"end_time,omitzero"`

	// ExitCodes maps each code name to its process exit code
	ExitCodes map[string]int `json:"exit_codes,omitempty"`

	// OutputSizes maps each declared output artifact to its size in bytes,
	// recorded on completion
	OutputSizes map[string]int64 `json:"output_sizes,omitempty"`
}

// Walltime returns the unit's wall-clock duration, or 0 while it is running.
func (u *Unit) Walltime() time.Duration {
	if u.StartTime.IsZero() || u.EndTime.IsZero() {
		return 0
	}
	return u.EndTime.Sub(u.StartTime)
}

// Recorder tracks unit states for one group and persists every transition
type Recorder struct {
	path  string
	mu    sync.Mutex
	units map[string]Unit
}

// NewRecorder creates a recorder for a group's status file, recovering any
// previously persisted state. A missing file means a fresh campaign.
func NewRecorder(path string) (*Recorder, error) {
	units, err := Load(path)
	if err != nil {
		return nil, err
	}
	if units == nil {
		units = make(map[string]Unit)
	}
	return &Recorder{path: path, units: units}, nil
}

// Load reads a status file into a unit-name → status map. A missing file is
// not an error and yields an empty map.
func Load(path string) (map[string]Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Unit), nil
		}
		return nil, fmt.Errorf("unable to read status file %s: %w", path, err)
	}

	units := make(map[string]Unit)
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, fmt.Errorf("unable to parse status file %s: %w", path, err)
	}
	return units, nil
}

// Get returns the recorded status of a unit.
func (r *Recorder) Get(name string) (Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[name]
	return u, ok
}

// Update applies a mutation to one unit's status and persists the whole map.
func (r *Recorder) Update(name string, fn func(*Unit)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.units[name]
	fn(&u)
	r.units[name] = u
	return r.flushLocked()
}

// flushLocked rewrites the status file atomically. Callers hold r.mu.
func (r *Recorder) flushLocked() error {
	data, err := json.MarshalIndent(r.units, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode status: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary status file: %w", err)
	}
	_, err = tmp.Write(append(data, '\n'))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to write status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to replace status file %s: %w", r.path, err)
	}
	return nil
}

// Summary is the aggregate view of a status map used by status reporting
type Summary struct {
	// Total is the number of tracked units
	Total int

	// Counts maps each state to the number of units in it
	Counts map[State]int

	// ExitCodes maps each observed exit code to its number of occurrences
	ExitCodes map[int]int

	// Failed is the sorted list of failed unit names
	Failed []string
}

// Summarize aggregates a status map by state and exit code.
func Summarize(units map[string]Unit) Summary {
	s := Summary{
		Counts:    make(map[State]int),
		ExitCodes: make(map[int]int),
	}
	for name, u := range units {
		s.Total++
		s.Counts[u.State]++
		for _, rc := range u.ExitCodes {
			s.ExitCodes[rc]++
		}
		if u.State == Failed {
			s.Failed = append(s.Failed, name)
		}
	}
	sort.Strings(s.Failed)
	return s
}
