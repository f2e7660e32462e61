// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command eval validates a pipeline config and prints the resolved step graph.
// It provides a way to test a configuration file without executing any commands.
//
// Usage:
//
//	conveyor eval --config /path/to/config
package eval

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codeactual/conveyor/internal/pipeline"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	ConfigPath string

	// Dump prints the finalized Config struct in addition to the step graph.
	Dump bool
}

// bindFlags binds the flags to Handler fields.
func (h *Handler) bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&h.ConfigPath, "config", "c", "", "viper-readable config file")
	fs.BoolVar(&h.Dump, "dump", false, "print the finalized config struct")
}

func (h *Handler) run() error {
	cfg, err := pipeline.ReadConfigFile(h.ConfigPath)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, step := range cfg.Step {
		fmt.Printf("[%s]", step.Label)
		if len(step.Upstream) > 0 {
			fmt.Printf(" after [%s]", strings.Join(step.Upstream, ", "))
		}
		if step.WaitForPath != "" {
			fmt.Printf(" waits for [%s]", step.WaitForPath)
		}
		fmt.Printf("\n\t%s\n", step.Cmd)
	}

	if h.Dump {
		spew.Dump(cfg)
	}

	return nil
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	h := &Handler{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Validate a pipeline config and print the resolved step graph",
		Example: strings.Join([]string{
			"conveyor eval --config /path/to/config",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.run()
		},
	}
	h.bindFlags(cmd.Flags())
	return cmd
}
