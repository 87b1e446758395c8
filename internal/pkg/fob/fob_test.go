// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package fob

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codarcode/cheetah/internal/pkg/machines"
	"github.com/codarcode/cheetah/internal/pkg/sweep"
)

func localProfile() *machines.Profile {
	return &machines.Profile{Name: "local", Scheduler: "local", ProcessesPerNode: 8}
}

func testAssignments(t *testing.T) []sweep.Assignment {
	t.Helper()
	assignments, err := sweep.Expand(&sweep.Sweep{
		Name: "s",
		Params: []sweep.Param{
			{Name: "np", Values: []string{"1", "2"}},
			{Name: "scale", Values: []string{"10"}},
		},
		Repetitions: 2,
	})
	require.NoError(t, err)
	return assignments
}

func testTemplates() []Template {
	return []Template{
		{
			Name:        "simulation",
			Exe:         "/opt/app/heat",
			Args:        []string{"--scale", "${scale}", "out.bp"},
			NProcsParam: "np",
			Outputs:     []string{"out.bp"},
		},
		{
			Name: "analysis",
			Exe:  "/opt/app/stage",
			Args: []string{"out.bp"},
		},
	}
}

func TestUnitName(t *testing.T) {
	assert.Equal(t, "run-0.iteration-0", UnitName(0, 0))
	assert.Equal(t, "run-12.iteration-3", UnitName(12, 3))
}

func TestBuildNamesAndOrder(t *testing.T) {
	units, err := Build(testTemplates(), testAssignments(t), localProfile(),
		Options{GroupDir: "/camp/g"})
	require.NoError(t, err)
	require.Len(t, units, 4)

	names := []string{
		"run-0.iteration-0",
		"run-0.iteration-1",
		"run-1.iteration-0",
		"run-1.iteration-1",
	}
	for i, want := range names {
		assert.Equal(t, want, units[i].Name)
		assert.Equal(t, filepath.Join("/camp/g", want), units[i].WorkingDir)
	}
}

func TestBuildMergesParametersAndResources(t *testing.T) {
	units, err := Build(testTemplates(), testAssignments(t), localProfile(),
		Options{GroupDir: "/camp/g"})
	require.NoError(t, err)

	u := units[2] // run-1: np=2
	require.Len(t, u.Codes, 2)
	assert.Equal(t, []string{"--scale", "10", "out.bp"}, u.Codes[0].Args)
	assert.Equal(t, 2, u.Codes[0].NProcs)
	assert.Equal(t, 1, u.Codes[1].NProcs)
	assert.Equal(t, 3, u.Procs)
	assert.Equal(t, []string{"out.bp"}, u.Outputs)
	assert.Equal(t, "2", u.Params["np"])
	assert.Equal(t, "10", u.Params["scale"])
}

func TestBuildDeterministic(t *testing.T) {
	first, err := Build(testTemplates(), testAssignments(t), localProfile(),
		Options{GroupDir: "/camp/g"})
	require.NoError(t, err)
	second, err := Build(testTemplates(), testAssignments(t), localProfile(),
		Options{GroupDir: "/camp/g"})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("rebuild differs (-first +second):\n%s", diff)
	}
}

func TestBuildMissingParameter(t *testing.T) {
	templates := []Template{{Name: "sim", Exe: "/bin/app", NProcsParam: "procs"}}
	_, err := Build(templates, testAssignments(t), localProfile(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "procs")
}

func TestFileRoundTrip(t *testing.T) {
	units, err := Build(testTemplates(), testAssignments(t), localProfile(),
		Options{GroupDir: "/camp/g"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteFile(path, units))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(units, loaded); diff != "" {
		t.Fatalf("unit list changed across encode/decode (-wrote +read):\n%s", diff)
	}
}
