// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
	"github.com/codarcode/cheetah/internal/pkg/fob"
	"github.com/codarcode/cheetah/internal/pkg/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// shellUnit builds a single-code unit running a shell script in its own
// directory under groupDir.
func shellUnit(groupDir string, runID int, script string) fob.Descriptor {
	name := fob.UnitName(runID, 0)
	return fob.Descriptor{
		Name:        name,
		RunID:       runID,
		IterationID: 0,
		WorkingDir:  filepath.Join(groupDir, name),
		Procs:       1,
		Nodes:       1,
		Codes: []fob.Code{
			{Name: "main", Exe: "/bin/sh", Args: []string{"-c", script}, NProcs: 1, Nodes: 1},
		},
	}
}

func newTestRunner(t *testing.T, groupDir string, units []fob.Descriptor, maxProcs int) *Runner {
	t.Helper()
	recorder, err := status.NewRecorder(filepath.Join(groupDir, status.FileName))
	require.NoError(t, err)
	return &Runner{
		GroupDir:    groupDir,
		Units:       units,
		MaxProcs:    maxProcs,
		GracePeriod: time.Second,
		Status:      recorder,
	}
}

func TestRunAllComplete(t *testing.T) {
	groupDir := t.TempDir()
	units := []fob.Descriptor{
		shellUnit(groupDir, 0, "echo zero"),
		shellUnit(groupDir, 1, "echo one"),
		shellUnit(groupDir, 2, "echo two"),
	}

	runner := newTestRunner(t, groupDir, units, 2)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.AllDone())

	persisted, err := status.Load(filepath.Join(groupDir, status.FileName))
	require.NoError(t, err)
	for _, u := range units {
		st, ok := persisted[u.Name]
		require.True(t, ok, u.Name)
		assert.Equal(t, status.Completed, st.State, u.Name)
		assert.Equal(t, 0, st.ExitCodes["main"])

		out, err := os.ReadFile(filepath.Join(u.WorkingDir, "codar.workflow.stdout.main"))
		require.NoError(t, err)
		assert.NotEmpty(t, out)
		assert.FileExists(t, filepath.Join(u.WorkingDir, WalltimeFileName))
	}
	assert.FileExists(t, filepath.Join(groupDir, JobIDFileName))
}

func TestResumeSkipsCompletedUnits(t *testing.T) {
	groupDir := t.TempDir()
	marker := filepath.Join(groupDir, "launches.txt")
	script := "echo launched >> " + marker
	units := []fob.Descriptor{
		shellUnit(groupDir, 0, script),
		shellUnit(groupDir, 1, script),
	}

	runner := newTestRunner(t, groupDir, units, 2)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.AllDone())

	// A second invocation on the same persisted status must not re-launch
	// anything.
	resumed := newTestRunner(t, groupDir, units, 2)
	report, err = resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Completed)
	assert.True(t, report.AllDone())

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "launched\nlaunched\n", string(data))
}

func TestFailureDoesNotStopGroup(t *testing.T) {
	groupDir := t.TempDir()
	units := []fob.Descriptor{
		shellUnit(groupDir, 0, "true"),
		shellUnit(groupDir, 1, "exit 3"),
		shellUnit(groupDir, 2, "true"),
	}

	runner := newTestRunner(t, groupDir, units, 1)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.AllDone())

	persisted, err := status.Load(filepath.Join(groupDir, status.FileName))
	require.NoError(t, err)
	assert.Equal(t, status.Completed, persisted["run-0.iteration-0"].State)
	assert.Equal(t, status.Failed, persisted["run-1.iteration-0"].State)
	assert.Equal(t, 3, persisted["run-1.iteration-0"].ExitCodes["main"])
	assert.Equal(t, status.Completed, persisted["run-2.iteration-0"].State)
}

func TestBudgetSerializesAdmissionInOrder(t *testing.T) {
	groupDir := t.TempDir()
	units := []fob.Descriptor{
		shellUnit(groupDir, 0, "sleep 0.2"),
		shellUnit(groupDir, 1, "sleep 0.2"),
		shellUnit(groupDir, 2, "sleep 0.2"),
	}

	runner := newTestRunner(t, groupDir, units, 1)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.AllDone())

	// With a budget of one slot the units must have run one at a time in
	// declaration order: each unit starts only after its predecessor ended.
	persisted, err := status.Load(filepath.Join(groupDir, status.FileName))
	require.NoError(t, err)
	for i := 1; i < len(units); i++ {
		prev := persisted[units[i-1].Name]
		cur := persisted[units[i].Name]
		assert.False(t, cur.StartTime.Before(prev.EndTime),
			"%s started before %s ended", units[i].Name, units[i-1].Name)
	}
}

func TestUnitTimeout(t *testing.T) {
	groupDir := t.TempDir()
	u := shellUnit(groupDir, 0, "sleep 30")
	u.Timeout = 100 * time.Millisecond

	runner := newTestRunner(t, groupDir, []fob.Descriptor{u}, 1)
	runner.GracePeriod = 200 * time.Millisecond

	start := time.Now()
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, report.Failed)

	st, ok := runner.Status.Get(u.Name)
	require.True(t, ok)
	assert.Equal(t, status.Failed, st.State)
	assert.Equal(t, "timeout", st.Reason)
}

func TestLaunchErrorIsGroupFatal(t *testing.T) {
	groupDir := t.TempDir()
	broken := shellUnit(groupDir, 0, "true")
	broken.Codes[0].Exe = "/nonexistent/launcher"
	units := []fob.Descriptor{
		broken,
		shellUnit(groupDir, 1, "sleep 0.1"),
	}

	runner := newTestRunner(t, groupDir, units, 1)
	_, err := runner.Run(context.Background())
	var launchErr *cheetaherr.UnitLaunchError
	require.True(t, errors.As(err, &launchErr), "expected UnitLaunchError, got %v", err)
	assert.Equal(t, broken.Name, launchErr.Unit)
}

func TestKillOnPartialFailure(t *testing.T) {
	groupDir := t.TempDir()
	name := fob.UnitName(0, 0)
	u := fob.Descriptor{
		Name:                 name,
		WorkingDir:           filepath.Join(groupDir, name),
		Procs:                2,
		Nodes:                1,
		KillOnPartialFailure: true,
		Codes: []fob.Code{
			{Name: "failing", Exe: "/bin/sh", Args: []string{"-c", "exit 1"}, NProcs: 1},
			{Name: "sibling", Exe: "/bin/sh", Args: []string{"-c", "sleep 30"}, NProcs: 1},
		},
	}

	runner := newTestRunner(t, groupDir, []fob.Descriptor{u}, 2)
	runner.GracePeriod = 200 * time.Millisecond

	start := time.Now()
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second, "sibling was not terminated")
	assert.Equal(t, 1, report.Failed)

	st, ok := runner.Status.Get(name)
	require.True(t, ok)
	assert.Equal(t, 1, st.ExitCodes["failing"])
}

func TestSiblingKeepsRunningByDefault(t *testing.T) {
	groupDir := t.TempDir()
	name := fob.UnitName(0, 0)
	u := fob.Descriptor{
		Name:       name,
		WorkingDir: filepath.Join(groupDir, name),
		Procs:      2,
		Nodes:      1,
		Codes: []fob.Code{
			{Name: "failing", Exe: "/bin/sh", Args: []string{"-c", "exit 1"}, NProcs: 1},
			{Name: "sibling", Exe: "/bin/sh", Args: []string{"-c", "sleep 0.3; echo done"}, NProcs: 1},
		},
	}

	runner := newTestRunner(t, groupDir, []fob.Descriptor{u}, 2)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	// The sibling ran to completion and its exit code is recorded alongside
	// the failure.
	st, ok := runner.Status.Get(name)
	require.True(t, ok)
	assert.Equal(t, status.Failed, st.State)
	assert.Equal(t, 0, st.ExitCodes["sibling"])

	out, err := os.ReadFile(filepath.Join(u.WorkingDir, "codar.workflow.stdout.sibling"))
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(out))
}

func TestInterruptStopsAdmission(t *testing.T) {
	groupDir := t.TempDir()
	units := []fob.Descriptor{
		shellUnit(groupDir, 0, "sleep 30"),
		shellUnit(groupDir, 1, "true"),
	}

	runner := newTestRunner(t, groupDir, units, 1)
	runner.GracePeriod = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Run(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	// The second unit was never admitted.
	st, ok := runner.Status.Get(units[1].Name)
	require.True(t, ok)
	assert.Equal(t, status.Pending, st.State)
	assert.NoFileExists(t, filepath.Join(units[1].WorkingDir, "codar.workflow.stdout.main"))
}

func TestOutputArtifactSizesRecorded(t *testing.T) {
	groupDir := t.TempDir()
	u := shellUnit(groupDir, 0, "printf 12345 > out.bp")
	u.Outputs = []string{"out.bp", "missing.bp"}

	runner := newTestRunner(t, groupDir, []fob.Descriptor{u}, 1)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.AllDone())

	st, ok := runner.Status.Get(u.Name)
	require.True(t, ok)
	assert.Equal(t, int64(5), st.OutputSizes["out.bp"])
	assert.Equal(t, int64(-1), st.OutputSizes["missing.bp"])
}

func TestOversizedUnitIsRejectedUpFront(t *testing.T) {
	groupDir := t.TempDir()
	u := shellUnit(groupDir, 0, "true")
	u.Procs = 4

	runner := newTestRunner(t, groupDir, []fob.Descriptor{u}, 2)
	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
}
