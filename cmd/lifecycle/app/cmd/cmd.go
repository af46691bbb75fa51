/*
Copyright 2024 The Lifecycle Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"io"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbosity  string
	configFile string
)

// NewLifecycleCommand builds the root command of the lifecycle CLI.
func NewLifecycleCommand(out, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Deploys ephemeral pull-request environments",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// ambient .env is optional; flags and the config file win
			_ = godotenv.Load()

			level, err := logrus.ParseLevel(verbosity)
			if err != nil {
				return errors.Wrapf(err, "parsing verbosity %q", verbosity)
			}
			logrus.SetLevel(level)
			logrus.SetOutput(stderr)
			return nil
		},
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.SetOut(out)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(NewCmdDeploy(out))
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&verbosity, "verbosity", "v", logrus.InfoLevel.String(), "log level (debug, info, warn, error)")
	fs.StringVarP(&configFile, "config", "c", "lifecycle.yaml", "path to the global configuration file")
}
