// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cheetaherr

import (
	"fmt"
)

// InvalidSweepError reports a malformed parameter declaration. It is fatal at
// expansion time, before any execution begins.
type InvalidSweepError struct {
	// Sweep is the name of the sweep with the invalid declaration
	Sweep string

	// Param is the name of the offending parameter, when one can be identified
	Param string

	// Reason describes what is wrong with the declaration
	Reason string
}

func (e *InvalidSweepError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid sweep %s: %s", e.Sweep, e.Reason)
	}
	return fmt.Sprintf("invalid sweep %s: parameter %s: %s", e.Sweep, e.Param, e.Reason)
}

// UnsupportedResourceShapeError reports a resource request that the target
// machine cannot satisfy. It is fatal for the affected sweep only.
type UnsupportedResourceShapeError struct {
	// Machine is the name of the machine profile the request was mapped against
	Machine string

	// Reason describes why the shape cannot be satisfied
	Reason string
}

func (e *UnsupportedResourceShapeError) Error() string {
	return fmt.Sprintf("unsupported resource shape on %s: %s", e.Machine, e.Reason)
}

// UnitLaunchError reports that the backend could not even start a unit's
// processes. It is escalated as group-fatal since it likely indicates a broken
// allocation or environment rather than a per-unit data issue.
type UnitLaunchError struct {
	// Unit is the name of the unit that could not be launched
	Unit string

	// Code is the name of the code whose launch failed
	Code string

	// Err is the underlying launch error
	Err error
}

func (e *UnitLaunchError) Error() string {
	return fmt.Sprintf("unable to launch %s for unit %s: %s", e.Code, e.Unit, e.Err)
}

func (e *UnitLaunchError) Unwrap() error {
	return e.Err
}

// UnitRuntimeFailure reports that a launched process exited with a non-zero
// code or that the unit exceeded its timeout. It is recorded per unit and is
// not fatal to the group.
type UnitRuntimeFailure struct {
	// Unit is the name of the failed unit
	Unit string

	// Code is the name of the code that failed
	Code string

	// ExitCode is the process exit code (-1 when the process did not exit normally)
	ExitCode int

	// TimedOut indicates the unit exceeded its configured timeout
	TimedOut bool
}

func (e *UnitRuntimeFailure) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("unit %s timed out", e.Unit)
	}
	return fmt.Sprintf("unit %s: code %s exited with %d", e.Unit, e.Code, e.ExitCode)
}
