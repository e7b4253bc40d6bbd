// Copyright 2025 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package cmd

import (
	"context"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/internal/pipeline"
	"github.com/sorintlab/lockwarden/internal/services/warden"
)

var cmdDetect = &cobra.Command{
	Use:   "detect",
	Short: "inspect and classify the locks for the provided keys",
	Long: `Inspect and classify the locks for the provided keys.

The classified states are exported to the invoking pipeline as outputs.
The command exits non zero when an active lock is found: the caller must
stop and let the holder finish.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := detect(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type detectOptions struct {
	keys               []string
	all                bool
	outputsFile        string
	staleThreshold     time.Duration
	conservativeWindow time.Duration
}

var detectOpts detectOptions

func init() {
	flags := cmdDetect.Flags()

	flags.StringSliceVarP(&detectOpts.keys, "key", "k", nil, "lock key to evaluate. This option can be repeated multiple times")
	flags.BoolVar(&detectOpts.all, "all", false, "evaluate every key in the store matching the configured filters")
	flags.StringVar(&detectOpts.outputsFile, "outputs-file", "", "file the pipeline outputs are appended to (stdout when not provided)")
	flags.DurationVar(&detectOpts.staleThreshold, "stale-threshold", 0, "override the configured stale threshold")
	flags.DurationVar(&detectOpts.conservativeWindow, "conservative-window", 0, "override the configured conservative window")

	cmdLockwarden.AddCommand(cmdDetect)
}

func detect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := loadConfig([]string{"warden"})
	if err != nil {
		return err
	}

	keys, err := resolveKeys(gc, detectOpts.keys, detectOpts.all)
	if err != nil {
		return err
	}

	if err := applyClassifierOverrides(gc, detectOpts.staleThreshold, detectOpts.conservativeWindow); err != nil {
		return err
	}

	w, err := warden.NewWarden(ctx, log.Logger, gc)
	if err != nil {
		return errors.Wrapf(err, "failed to setup warden")
	}

	res, err := w.Detect(ctx, keys)
	if err != nil {
		return errors.WithStack(err)
	}

	outputsFile := detectOpts.outputsFile
	if outputsFile == "" {
		outputsFile = gc.Warden.Outputs.File
	}

	if outputsFile != "" {
		path, err := homedir.Expand(outputsFile)
		if err != nil {
			return errors.Wrapf(err, "cannot expand outputs file path %q", outputsFile)
		}
		if err := pipeline.AppendOutputsFile(path, res, gc.Warden.Outputs.DetailsTemplate); err != nil {
			return errors.WithStack(err)
		}
	} else {
		if err := pipeline.WriteOutputs(os.Stdout, res, gc.Warden.Outputs.DetailsTemplate); err != nil {
			return errors.WithStack(err)
		}
	}

	if res.ActiveLocksFound {
		log.Warn().Msgf("active locks found, the holder must finish or the lock must age before anything can be released")
		os.Exit(1)
	}

	if res.StaleLocksFound {
		log.Info().Msgf("stale locks found, tokens pending approval: %v", res.PendingTokens)
	}

	return nil
}
