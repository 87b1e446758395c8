// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codarcode/cheetah/internal/pkg/status"
)

func newStatusCmd() *cobra.Command {
	var showFailed bool

	cmd := &cobra.Command{
		Use:   "status [group-dir...]",
		Short: "Summarize the persisted unit states of one or more groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, groupDir := range args {
				units, err := status.Load(filepath.Join(groupDir, status.FileName))
				if err != nil {
					return err
				}

				s := status.Summarize(units)
				if s.Total == 0 {
					fmt.Fprintf(out, "%s: not started\n", groupDir)
					continue
				}

				done := s.Counts[status.Completed]
				failed := s.Counts[status.Failed]
				inFlight := s.Counts[status.Running] + s.Counts[status.Pending]
				switch {
				case inFlight > 0:
					fmt.Fprintf(out, "%s: in progress, %d/%d done\n",
						groupDir, done+failed, s.Total)
				case failed > 0:
					fmt.Fprintf(out, "%s: done, %d/%d failed\n", groupDir, failed, s.Total)
				default:
					fmt.Fprintf(out, "%s: done\n", groupDir)
				}

				if showFailed && len(s.Failed) > 0 {
					for _, name := range s.Failed {
						u := units[name]
						fmt.Fprintf(out, "  %s: %s", name, u.Reason)
						codes := make([]string, 0, len(u.ExitCodes))
						for c := range u.ExitCodes {
							codes = append(codes, c)
						}
						sort.Strings(codes)
						for _, c := range codes {
							fmt.Fprintf(out, " %s=%d", c, u.ExitCodes[c])
						}
						fmt.Fprintln(out)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFailed, "failed", false, "list failed units with their exit codes")

	return cmd
}
