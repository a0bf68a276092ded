// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kernmod/bpfloader/pkg/logging"
)

// Vp is the viper instance every subcommand's flags are bound into, so
// BPFLOADCTL_-prefixed environment variables override defaults the
// same way the teacher's daemon and operator commands do.
var Vp = viper.New()

const envPrefix = "BPFLOADCTL"

// bindEnv registers name with Vp under envPrefix, matching the
// teacher's regOpts.BindEnv convention.
func bindEnv(name string) {
	_ = Vp.BindEnv(name)
}

// NewRootCommand builds the bpfloadctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bpfloadctl",
		Short: "Load and inspect bytecode ELF objects",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(Vp.GetString("log-level"))
			if err != nil {
				return err
			}
			logging.DefaultLogger.SetLevel(level)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "logging level (debug, info, warn, error)")
	Vp.SetEnvPrefix(envPrefix)
	bindEnv("log-level")
	_ = Vp.BindPFlags(flags)

	root.AddCommand(newLoadCommand(), newInspectCommand())
	return root
}
