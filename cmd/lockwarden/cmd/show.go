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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/internal/objectstorage"
	"github.com/sorintlab/lockwarden/internal/services/warden"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

var cmdShow = &cobra.Command{
	Use:   "show",
	Short: "show the lock state and artifact metadata for the provided keys",
	Run: func(cmd *cobra.Command, args []string) {
		if err := show(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type showOptions struct {
	keys               []string
	all                bool
	full               bool
	staleThreshold     time.Duration
	conservativeWindow time.Duration
}

var showOpts showOptions

func init() {
	flags := cmdShow.Flags()

	flags.StringSliceVarP(&showOpts.keys, "key", "k", nil, "lock key to show. This option can be repeated multiple times")
	flags.BoolVar(&showOpts.all, "all", false, "show every key in the store matching the configured filters")
	flags.BoolVar(&showOpts.full, "full", false, "also print the full lock record")
	flags.DurationVar(&showOpts.staleThreshold, "stale-threshold", 0, "override the configured stale threshold")
	flags.DurationVar(&showOpts.conservativeWindow, "conservative-window", 0, "override the configured conservative window")

	cmdLockwarden.AddCommand(cmdShow)
}

func show(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := loadConfig([]string{"warden"})
	if err != nil {
		return err
	}

	keys, err := resolveKeys(gc, showOpts.keys, showOpts.all)
	if err != nil {
		return err
	}

	if err := applyClassifierOverrides(gc, showOpts.staleThreshold, showOpts.conservativeWindow); err != nil {
		return err
	}

	w, err := warden.NewWarden(ctx, log.Logger, gc)
	if err != nil {
		return errors.Wrapf(err, "failed to setup warden")
	}

	if len(keys) == 0 {
		keys, err = w.ListKeys(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	activeFound := false
	for _, key := range keys {
		state, info, err := w.Show(ctx, key)
		if err != nil {
			return errors.WithStack(err)
		}

		if err := printLockState(state, info, showOpts.full); err != nil {
			return err
		}

		if state.Classification == types.ClassificationActive {
			activeFound = true
		}
	}

	if activeFound {
		os.Exit(1)
	}

	return nil
}

func printLockState(state *types.LockState, info *objectstorage.ObjectInfo, full bool) error {
	fmt.Printf("%s: Classification: %s, Reason: %s\n", state.Key, state.Classification, state.Reason)

	if state.Record != nil {
		fmt.Printf("\tToken: %s, Operation: %s, Who: %s\n", state.Record.ID, state.Record.Operation, state.Record.Who)
		if state.AgeKnown {
			fmt.Printf("\tCreated: %s, Age: %s\n", state.Record.Created.Format(time.RFC3339), state.Age.Round(time.Second))
		}
	}

	if info != nil {
		fmt.Printf("\tArtifact: %s, Size: %d, LastModified: %s\n", info.Path, info.Size, info.LastModified.Format(time.RFC3339))
	}

	if !full {
		return nil
	}

	if state.Record != nil {
		prettyJSON, err := json.MarshalIndent(state.Record, "", "\t")
		if err != nil {
			return errors.Wrapf(err, "failed to convert lock record to json")
		}
		fmt.Printf("%s\n", prettyJSON)
	} else if len(state.Raw) > 0 {
		fmt.Printf("%s\n", state.Raw)
	}

	return nil
}
