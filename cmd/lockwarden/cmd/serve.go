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

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/internal/services/lockserver"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "run the lockserver api",
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

func init() {
	cmdLockwarden.AddCommand(cmdServe)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := loadConfig([]string{"lockserver"})
	if err != nil {
		return err
	}

	ls, err := lockserver.NewLockserver(ctx, log.Logger, gc)
	if err != nil {
		return errors.Wrapf(err, "failed to start lockserver")
	}

	errCh := make(chan error)

	go func() { errCh <- ls.Run(ctx) }()

	return <-errCh
}
