// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command run executes the pipeline defined in the config file, prints a per-step
// report, and optionally stores the session for later inspection.
//
// Usage:
//
//	conveyor run --config /path/to/config
package run

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	cage_time "github.com/codeactual/conveyor/internal/cage/time"
	"github.com/codeactual/conveyor/internal/conveyor"
	"github.com/codeactual/conveyor/internal/pipeline"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	ConfigPath string

	// SessionPath overrides the config's Data.Session.File destination.
	SessionPath string

	Verbose bool
}

// bindFlags binds the flags to Handler fields.
func (h *Handler) bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&h.ConfigPath, "config", "c", "", "viper-readable config file")
	fs.StringVar(&h.SessionPath, "session", "", "write the run session to this file")
	fs.BoolVarP(&h.Verbose, "verbose", "v", false, "log queue and step activity to stderr")
}

func (h *Handler) run() error {
	cfg, err := pipeline.ReadConfigFile(h.ConfigPath)
	if err != nil {
		return errors.WithStack(err)
	}
	if h.SessionPath != "" {
		cfg.Data.Session.File = h.SessionPath
	}

	log := zap.NewNop()
	if h.Verbose {
		log, err = zap.NewDevelopment()
		if err != nil {
			return errors.Wrap(err, "failed to create logger")
		}
	}

	clock := cage_time.RealClock{}
	runner := pipeline.Runner{Log: log, Clock: clock}

	res, err := runner.Run(cfg)
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Print(pipeline.FormatResult(res))

	if cfg.Data.Session.File != "" {
		if err = pipeline.WriteSession(cfg.Data.Session.File, pipeline.NewSession(clock, res)); err != nil {
			return errors.WithStack(err)
		}
	}

	for _, step := range res.Step {
		if step.Status == conveyor.StatusFailed {
			fmt.Fprintf(os.Stderr, "step [%s] failed", step.Label)
			if len(step.Stderr) > 0 {
				fmt.Fprintf(os.Stderr, "\n\nlast stderr:\n%s", step.Stderr)
			}
			fmt.Fprintln(os.Stderr)
			os.Exit(1)
		}
	}

	return nil
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	h := &Handler{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured pipeline",
		Example: strings.Join([]string{
			"conveyor run --config /path/to/config",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.run()
		},
	}
	h.bindFlags(cmd.Flags())
	return cmd
}
