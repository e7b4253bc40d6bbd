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
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/internal/services/warden"
)

var cmdApprove = &cobra.Command{
	Use:   "approve",
	Short: "generate a signed release grant for stale lock tokens",
	Long: `Generate a signed release grant for stale lock tokens.

Without --token a detection pass runs first and the tokens pending
approval are taken from it. The grant is printed on stdout and can be
passed to the release command on another machine.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := approve(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type approveOptions struct {
	keys               []string
	all                bool
	tokens             []string
	staleThreshold     time.Duration
	conservativeWindow time.Duration
}

var approveOpts approveOptions

func init() {
	flags := cmdApprove.Flags()

	flags.StringSliceVarP(&approveOpts.keys, "key", "k", nil, "lock key to evaluate. This option can be repeated multiple times")
	flags.BoolVar(&approveOpts.all, "all", false, "evaluate every key in the store matching the configured filters")
	flags.StringSliceVar(&approveOpts.tokens, "token", nil, "lock token to approve. This option can be repeated multiple times")
	flags.DurationVar(&approveOpts.staleThreshold, "stale-threshold", 0, "override the configured stale threshold")
	flags.DurationVar(&approveOpts.conservativeWindow, "conservative-window", 0, "override the configured conservative window")

	cmdLockwarden.AddCommand(cmdApprove)
}

func approve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := loadConfig([]string{"warden"})
	if err != nil {
		return err
	}

	if err := applyClassifierOverrides(gc, approveOpts.staleThreshold, approveOpts.conservativeWindow); err != nil {
		return err
	}

	w, err := warden.NewWarden(ctx, log.Logger, gc)
	if err != nil {
		return errors.Wrapf(err, "failed to setup warden")
	}

	tokens := approveOpts.tokens
	if len(tokens) == 0 {
		keys, err := resolveKeys(gc, approveOpts.keys, approveOpts.all)
		if err != nil {
			return err
		}

		res, err := w.Detect(ctx, keys)
		if err != nil {
			return errors.WithStack(err)
		}
		if res.ActiveLocksFound {
			return errors.Errorf("active locks found, nothing can be approved")
		}
		tokens = res.PendingTokens
	}

	if len(tokens) == 0 {
		return errors.Errorf("no tokens pending approval")
	}

	grant, err := warden.GenerateGrant(w.GrantSigningData(), tokens)
	if err != nil {
		return errors.Wrapf(err, "failed to generate release grant")
	}

	for _, token := range tokens {
		log.Info().Msgf("approving release of token %q", token)
	}

	fmt.Println(grant)

	return nil
}
