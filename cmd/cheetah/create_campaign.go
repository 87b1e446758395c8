// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codarcode/cheetah/internal/pkg/campaign"
	"github.com/codarcode/cheetah/internal/pkg/machines"
)

func newCreateCampaignCmd() *cobra.Command {
	var specPath string
	var outputDir string
	var machineName string
	var profilePath string
	var machineConfig string

	cmd := &cobra.Command{
		Use:   "create-campaign",
		Short: "Expand a campaign specification into group directories and unit lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := campaign.LoadSpec(specPath)
			if err != nil {
				return err
			}

			name := machineName
			if name == "" {
				name = spec.Machine
			}

			var profile machines.Profile
			if profilePath != "" {
				profile, err = machines.Load(profilePath)
			} else {
				profile, err = machines.Get(name)
			}
			if err != nil {
				return err
			}

			if machineConfig == "" {
				genv, err := campaign.LoadEnv()
				if err != nil {
					return err
				}
				machineConfig = genv.MachineConfig
			}
			schedOpts, err := machines.LoadOptions(machineConfig)
			if err != nil {
				return err
			}

			if err := campaign.Generate(spec, &profile, &schedOpts, outputDir); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "campaign %s created under %s (machine %s, scheduler %s)\n",
				spec.Name, outputDir, profile.Name, profile.Scheduler)
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "", "path to the campaign specification file")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "campaign output directory")
	cmd.Flags().StringVarP(&machineName, "machine", "m", "", "target machine (overrides the campaign spec)")
	cmd.Flags().StringVar(&profilePath, "machine-profile", "", "path to a machine profile file")
	cmd.Flags().StringVar(&machineConfig, "machine-config", "", "path to the machine scheduler-options file (account, queue, ...)")
	cmd.MarkFlagRequired("spec")

	return cmd
}
