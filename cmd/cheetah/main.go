// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "cheetah",
		Short:         "Experiment-campaign harness for coupled HPC applications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCreateCampaignCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cheetah: %s\n", err)
		os.Exit(1)
	}
}
