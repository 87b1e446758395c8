// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gvallee/go_util/pkg/util"

	"github.com/codarcode/cheetah/internal/pkg/cheetaherr"
	"github.com/codarcode/cheetah/internal/pkg/fob"
	"github.com/codarcode/cheetah/internal/pkg/machines"
	"github.com/codarcode/cheetah/internal/pkg/sweep"
)

const (
	// RunParamsTxtName is the per-unit record of the code command lines
	RunParamsTxtName = "codar.cheetah.run-params.txt"

	// RunParamsJSONName is the per-unit descriptor record for post-processing
	RunParamsJSONName = "codar.cheetah.run-params.json"

	// GroupEnvFileName is the group environment file sourced before launch
	GroupEnvFileName = "group-env.sh"
)

// Generate expands every group of a campaign under campaignDir and
// materializes the group directories: unit directories, per-unit parameter
// records, the group's fobs.json and the group environment file. Generation
// is idempotent with respect to naming: regenerating an unchanged
// specification reproduces the same unit names and ordering. A sweep whose
// resource shape the machine cannot satisfy does not stop generation of its
// siblings; the per-sweep errors come back joined after every group has been
// materialized.
func Generate(spec *Spec, profile *machines.Profile, schedOpts *machines.Options, campaignDir string) error {
	var errs []error
	for i := range spec.Groups {
		if err := generateGroup(spec, &spec.Groups[i], profile, schedOpts, campaignDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GroupDir returns the directory of one group within a campaign directory.
func GroupDir(campaignDir string, spec *Spec, group string) string {
	return filepath.Join(campaignDir, spec.Name, group)
}

// ExpandGroupUnits expands one group into its ordered unit list without
// touching the filesystem. Sweeps are mapped independently: a sweep whose
// resource shape the machine cannot satisfy is dropped and reported, sibling
// sweeps keep their run identifiers and still get mapped. The returned units
// are valid even when the error is non-nil.
func ExpandGroupUnits(spec *Spec, g *GroupSpec, profile *machines.Profile, groupDir string) ([]fob.Descriptor, error) {
	var timeout time.Duration
	var err error
	if g.Timeout != "" {
		timeout, err = ParseWalltime(g.Timeout)
		if err != nil {
			return nil, err
		}
	}

	templates := make([]fob.Template, len(spec.Codes))
	for i, c := range spec.Codes {
		templates[i] = fob.Template{
			Name:              c.Name,
			Exe:               c.Exe,
			Args:              c.Args,
			NProcsParam:       c.NProcsParam,
			RanksPerNodeParam: c.RanksPerNodeParam,
			GPUsPerRank:       c.GPUsPerRank,
			Env:               c.Env,
			SleepAfter:        time.Duration(c.SleepAfter * float64(time.Second)),
			Outputs:           c.Outputs,
		}
	}

	opts := fob.Options{
		GroupDir:             groupDir,
		Timeout:              timeout,
		KillOnPartialFailure: g.KillOnPartialFailure,
	}

	// Run identifiers advance over every sweep, mapped or not, so that the
	// surviving units keep the names they would have with all sweeps valid.
	var units []fob.Descriptor
	var sweepErrs []error
	offset := 0
	for i := range g.Sweeps {
		s := &g.Sweeps[i]
		assignments, err := sweep.Expand(s)
		if err != nil {
			return nil, err
		}
		maxRun := -1
		for j := range assignments {
			assignments[j].RunID += offset
			if assignments[j].RunID > maxRun {
				maxRun = assignments[j].RunID
			}
		}
		offset = maxRun + 1

		built, err := fob.Build(templates, assignments, profile, opts)
		if err != nil {
			var shape *cheetaherr.UnsupportedResourceShapeError
			if errors.As(err, &shape) {
				sweepErrs = append(sweepErrs, fmt.Errorf("sweep %s dropped: %w", s.Name, err))
				continue
			}
			return nil, fmt.Errorf("sweep %s: %w", s.Name, err)
		}
		units = append(units, built...)
	}

	return units, errors.Join(sweepErrs...)
}

func generateGroup(spec *Spec, g *GroupSpec, profile *machines.Profile, schedOpts *machines.Options, campaignDir string) error {
	groupDir := GroupDir(campaignDir, spec, g.Name)
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		return fmt.Errorf("unable to create group directory %s: %w", groupDir, err)
	}

	// A non-nil sweepErr still comes with the units of the sweeps that did
	// map; those get materialized so the group stays runnable.
	units, sweepErr := ExpandGroupUnits(spec, g, profile, groupDir)
	if units == nil && sweepErr != nil {
		return sweepErr
	}

	for i := range units {
		if err := materializeUnit(&units[i]); err != nil {
			return err
		}
	}

	if err := fob.WriteFile(filepath.Join(groupDir, fob.FileName), units); err != nil {
		return err
	}

	if err := writeGroupEnv(spec, g, profile, schedOpts, groupDir); err != nil {
		return err
	}

	return sweepErr
}

// materializeUnit creates a unit's directory and its parameter records: the
// command lines as text and the full descriptor as JSON.
func materializeUnit(d *fob.Descriptor) error {
	if err := os.MkdirAll(d.WorkingDir, 0755); err != nil {
		return fmt.Errorf("unable to create unit directory %s: %w", d.WorkingDir, err)
	}

	var lines []string
	for _, code := range d.Codes {
		argv := []string{code.Exe}
		if code.Launcher != "" {
			argv = append([]string{code.Launcher}, code.LauncherArgs...)
			argv = append(argv, code.Exe)
		}
		argv = append(argv, code.Args...)
		quoted := make([]string, len(argv))
		for i, a := range argv {
			quoted[i] = shellQuote(a)
		}
		lines = append(lines, strings.Join(quoted, " "))
	}
	txtPath := filepath.Join(d.WorkingDir, RunParamsTxtName)
	if err := os.WriteFile(txtPath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", txtPath, err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode unit %s: %w", d.Name, err)
	}
	jsonPath := filepath.Join(d.WorkingDir, RunParamsJSONName)
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", jsonPath, err)
	}

	return nil
}

// writeGroupEnv writes the group environment file consumed by submission
// scripts, unless one already exists from a previous generation. The
// machine's scheduler options ride along so submission scripts can charge
// the right account and pick the right queue.
func writeGroupEnv(spec *Spec, g *GroupSpec, profile *machines.Profile, schedOpts *machines.Options, groupDir string) error {
	path := filepath.Join(groupDir, GroupEnvFileName)
	if util.FileExists(path) {
		return nil
	}

	walltime := time.Duration(0)
	if g.Walltime != "" {
		walltime, _ = ParseWalltime(g.Walltime)
	}

	var b strings.Builder
	b.WriteString("export CODAR_CHEETAH_CAMPAIGN_NAME=\"codar.cheetah." + spec.Name + "\"\n")
	b.WriteString("export CODAR_CHEETAH_GROUP_NAME=\"" + g.Name + "\"\n")
	b.WriteString("export CODAR_CHEETAH_MACHINE=\"" + profile.Name + "\"\n")
	b.WriteString("export CODAR_WORKFLOW_RUNNER=\"" + profile.Scheduler + "\"\n")
	b.WriteString("export CODAR_CHEETAH_GROUP_WALLTIME=\"" + strconv.Itoa(int(walltime.Seconds())) + "\"\n")
	b.WriteString("export CODAR_CHEETAH_GROUP_MAX_PROCS=\"" + strconv.Itoa(g.MaxProcs) + "\"\n")
	b.WriteString("export CODAR_CHEETAH_GROUP_NODES=\"" + strconv.Itoa(g.Nodes) + "\"\n")
	b.WriteString("export CODAR_CHEETAH_GROUP_PPN=\"" + strconv.Itoa(profile.ProcessesPerNode) + "\"\n")

	if schedOpts != nil {
		if schedOpts.Account != "" {
			b.WriteString("export CODAR_CHEETAH_SCHEDULER_ACCOUNT=\"" + schedOpts.Account + "\"\n")
		}
		if schedOpts.Queue != "" {
			b.WriteString("export CODAR_CHEETAH_SCHEDULER_QUEUE=\"" + schedOpts.Queue + "\"\n")
		}
		if schedOpts.Constraint != "" {
			b.WriteString("export CODAR_CHEETAH_SCHEDULER_CONSTRAINT=\"" + schedOpts.Constraint + "\"\n")
		}
		if schedOpts.License != "" {
			b.WriteString("export CODAR_CHEETAH_SCHEDULER_LICENSE=\"" + schedOpts.License + "\"\n")
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0755); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}

// shellQuote quotes one argument for inclusion in a shell command line.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]#~%{}`!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
