// Copyright (c) 2026, CODAR contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codarcode/cheetah/internal/pkg/campaign"
	"github.com/codarcode/cheetah/internal/pkg/fob"
	"github.com/codarcode/cheetah/internal/pkg/status"
	"github.com/codarcode/cheetah/internal/pkg/workflow"
)

// workflowLogName is the runner's own log file in the group directory
const workflowLogName = "codar.FOBrun.log"

func newWorkflowLogger(groupDir string, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr", filepath.Join(groupDir, workflowLogName)}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newRunCmd() *cobra.Command {
	var groupDir string
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute (or resume) the unit list of one sweep group",
		RunE: func(cmd *cobra.Command, args []string) error {
			genv, err := campaign.LoadEnv()
			if err != nil {
				return err
			}

			units, err := fob.ReadFile(filepath.Join(groupDir, fob.FileName))
			if err != nil {
				return err
			}

			recorder, err := status.NewRecorder(filepath.Join(groupDir, status.FileName))
			if err != nil {
				return err
			}

			logger, err := newWorkflowLogger(groupDir, genv.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := workflow.Runner{
				GroupDir:    groupDir,
				Units:       units,
				MaxProcs:    genv.MaxProcs,
				MaxNodes:    genv.MaxNodes,
				Mode:        genv.RunnerMode,
				GracePeriod: grace,
				Status:      recorder,
				Log:         logger,
			}

			report, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			if !report.AllDone() {
				return fmt.Errorf("%d of %d units failed", report.Failed, report.Total)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "all %d units completed (%d resumed as already done)\n",
				report.Total, report.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&groupDir, "group-dir", "g", ".", "group directory containing "+fob.FileName)
	cmd.Flags().DurationVar(&grace, "grace-period", 10*time.Second, "grace between SIGTERM and SIGKILL for terminated units")

	return cmd
}
