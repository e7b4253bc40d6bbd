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
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/sorintlab/lockwarden/cmd"
	"github.com/sorintlab/lockwarden/internal/services/config"
)

func init() {
	cw := zerolog.ConsoleWriter{
		Out:                 os.Stderr,
		TimeFormat:          time.RFC3339Nano,
		FormatErrFieldValue: errors.FormatErrFieldValue,
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.With().Stack().Caller().Logger().Level(zerolog.InfoLevel).Output(cw)
}

var cmdLockwarden = &cobra.Command{
	Use:     "lockwarden",
	Short:   "lockwarden",
	Version: cmd.Version,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		if lockwardenOpts.debug {
			log.Logger = log.Level(zerolog.DebugLevel)
		}
		if lockwardenOpts.detailedErrors {
			zerolog.ErrorMarshalFunc = errors.ErrorMarshalFunc
		}
	},
	Run: func(c *cobra.Command, args []string) {
		if err := c.Help(); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type lockwardenOptions struct {
	config         string
	debug          bool
	detailedErrors bool
}

var lockwardenOpts lockwardenOptions

func init() {
	flags := cmdLockwarden.PersistentFlags()

	flags.StringVar(&lockwardenOpts.config, "config", "", "config file path")
	flags.BoolVarP(&lockwardenOpts.debug, "debug", "d", false, "debug")
	flags.BoolVar(&lockwardenOpts.detailedErrors, "detailed-errors", false, "enabled detailed errors logging")
}

func loadConfig(componentsNames []string) (*config.Config, error) {
	if lockwardenOpts.config == "" {
		return nil, errors.Errorf("no config file provided, use --config")
	}

	configPath, err := homedir.Expand(lockwardenOpts.config)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot expand config file path %q", lockwardenOpts.config)
	}

	c, err := config.Parse(configPath, componentsNames)
	if err != nil {
		return nil, errors.Wrapf(err, "config error")
	}

	return c, nil
}

// resolveKeys returns the resource keys an invocation evaluates: the --key
// flags when given, the configured warden keys otherwise. all means a full
// store scan and returns no keys.
func resolveKeys(gc *config.Config, keys []string, all bool) ([]string, error) {
	if all {
		return nil, nil
	}
	if len(keys) == 0 {
		keys = gc.Warden.Keys
	}
	if len(keys) == 0 {
		return nil, errors.Errorf("no key provided, use --key, --all or the warden keys configuration")
	}

	return keys, nil
}

// applyClassifierOverrides applies the classifier threshold flags over the
// loaded config, keeping the validated relation between them.
func applyClassifierOverrides(gc *config.Config, staleThreshold, conservativeWindow time.Duration) error {
	if staleThreshold != 0 {
		gc.Warden.StaleThreshold = staleThreshold
	}
	if conservativeWindow != 0 {
		gc.Warden.ConservativeWindow = conservativeWindow
	}

	if gc.Warden.StaleThreshold <= 0 || gc.Warden.ConservativeWindow <= 0 {
		return errors.Errorf("classifier thresholds must be greater than zero")
	}
	if gc.Warden.ConservativeWindow > gc.Warden.StaleThreshold {
		return errors.Errorf("conservative window can't be greater than the stale threshold")
	}

	return nil
}

func Execute() {
	if err := cmdLockwarden.Execute(); err != nil {
		os.Exit(1)
	}
}
