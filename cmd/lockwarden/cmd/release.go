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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/internal/services/warden"
	"github.com/sorintlab/lockwarden/services/warden/types"
)

var cmdRelease = &cobra.Command{
	Use:   "release",
	Short: "release stale locks whose tokens were approved",
	Long: `Release stale locks whose tokens were approved.

Every release re-reads and re-classifies the lock first and sends the
approved token with the delete, so a lock that became active again or
changed holder since detection is left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := release(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type releaseOptions struct {
	keys               []string
	all                bool
	tokens             []string
	grant              string
	approvalsFile      string
	interactive        bool
	staleThreshold     time.Duration
	conservativeWindow time.Duration
}

var releaseOpts releaseOptions

func init() {
	flags := cmdRelease.Flags()

	flags.StringSliceVarP(&releaseOpts.keys, "key", "k", nil, "lock key to release. This option can be repeated multiple times")
	flags.BoolVar(&releaseOpts.all, "all", false, "consider every key in the store matching the configured filters")
	flags.StringSliceVar(&releaseOpts.tokens, "token", nil, "approved lock token. This option can be repeated multiple times")
	flags.StringVar(&releaseOpts.grant, "grant", "", "signed release grant carrying the approved tokens")
	flags.StringVar(&releaseOpts.approvalsFile, "approvals-file", "", "yaml file listing the approved tokens under the approvals key")
	flags.BoolVarP(&releaseOpts.interactive, "interactive", "i", false, "run a detection pass and confirm every stale lock on the terminal before releasing it")
	flags.DurationVar(&releaseOpts.staleThreshold, "stale-threshold", 0, "override the configured stale threshold")
	flags.DurationVar(&releaseOpts.conservativeWindow, "conservative-window", 0, "override the configured conservative window")

	cmdLockwarden.AddCommand(cmdRelease)
}

func release(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := loadConfig([]string{"warden"})
	if err != nil {
		return err
	}

	keys, err := resolveKeys(gc, releaseOpts.keys, releaseOpts.all)
	if err != nil {
		return err
	}

	if err := applyClassifierOverrides(gc, releaseOpts.staleThreshold, releaseOpts.conservativeWindow); err != nil {
		return err
	}

	w, err := warden.NewWarden(ctx, log.Logger, gc)
	if err != nil {
		return errors.Wrapf(err, "failed to setup warden")
	}

	approvals := warden.NewApprovals(releaseOpts.tokens...)

	if releaseOpts.approvalsFile != "" {
		path, err := homedir.Expand(releaseOpts.approvalsFile)
		if err != nil {
			return errors.Wrapf(err, "cannot expand approvals file path %q", releaseOpts.approvalsFile)
		}
		tokens, err := warden.LoadApprovalsFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load approvals file")
		}
		for _, token := range tokens {
			approvals.Add(token)
		}
	}

	if releaseOpts.grant != "" {
		tokens, err := warden.VerifyGrant(w.GrantSigningData(), releaseOpts.grant)
		if err != nil {
			return errors.Wrapf(err, "failed to verify release grant")
		}
		for _, token := range tokens {
			approvals.Add(token)
		}
	}

	if releaseOpts.interactive {
		tokens, err := confirmStaleLocks(ctx, w, keys)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(tokens) == 0 && approvals.Size() == 0 {
			log.Info().Msgf("no lock confirmed for release")
			return nil
		}
		for _, token := range tokens {
			approvals.Add(token)
		}
	}

	if approvals.Size() == 0 {
		return errors.Errorf("no approved token provided, use --token, --grant, --approvals-file or --interactive")
	}

	res, err := w.Release(ctx, keys, approvals)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, release := range res.Releases {
		switch release.Outcome {
		case types.ReleaseOutcomeReleased:
			log.Info().Msgf("released lock for key %q with token %q", release.Key, release.Token)
		default:
			log.Warn().Msgf("lock for key %q not released: %s", release.Key, release.Reason)
		}
	}

	if !res.AllReleased {
		return errors.Errorf("not all approved locks were released, re-run detection")
	}

	return nil
}

// confirmStaleLocks runs a detection pass and asks on the terminal, one
// lock at a time, whether the stale lock should be released. It returns
// the tokens of the confirmed locks.
func confirmStaleLocks(ctx context.Context, w *warden.Warden, keys []string) ([]string, error) {
	res, err := w.Detect(ctx, keys)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if res.ActiveLocksFound {
		return nil, errors.Errorf("active locks found, the holder must finish or the lock must age before anything can be released")
	}

	tokens := []string{}
	reader := bufio.NewReader(os.Stdin)
	for _, state := range res.Locks {
		if state.Classification != types.ClassificationStale || state.Record == nil || state.Record.ID == "" {
			continue
		}

		fmt.Printf("%s: %s\n", state.Key, state.Reason)
		fmt.Printf("\tToken: %s, Operation: %s, Who: %s\n", state.Record.ID, state.Record.Operation, state.Record.Who)
		if state.AgeKnown {
			fmt.Printf("\tCreated: %s, Age: %s\n", state.Record.Created.Format(time.RFC3339), state.Age.Round(time.Second))
		}
		fmt.Printf("release this lock? [y/N]: ")

		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "failed to read answer")
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			tokens = append(tokens, state.Record.ID)
		default:
			log.Info().Msgf("skipping lock for key %q", state.Key)
		}
	}

	return tokens, nil
}
