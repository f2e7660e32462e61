// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"os"
	"time"

	"github.com/pkg/errors"
	std_viper "github.com/spf13/viper"

	cage_file "github.com/codeactual/conveyor/internal/cage/os/file"
)

const (
	// DefaultStepTimeout is the default Step.Timeout value.
	DefaultStepTimeout = "15m"

	// DefaultMaxIterations bounds a pipeline run so steps which defer forever, e.g. on a
	// path that never appears, cannot spin the queue indefinitely.
	DefaultMaxIterations = 1000

	// dataDirPerm is the default permissions granted for new directories.
	dataDirPerm = 0700

	// dataFilePerm is the default permissions granted for new files.
	dataFilePerm = 0600
)

// SessionConfig defines how to store the run report.
//
// Its config section is Data.Session.
type SessionConfig struct {
	File string
}

// DataConfig defines how to store program state.
//
// Its config section is Data.
type DataConfig struct {
	// Session defines how to store the run report.
	Session SessionConfig
}

// Step defines one command of the pipeline.
type Step struct {
	// Id is user-defined, ideally short, and must be unique in the config file.
	//
	// It is optional and defaults to Label; it supports Upstream references.
	Id string

	// Label is displayed to users in output for reference/debugging/etc. and also
	// provides documentation in the config file on the intent.
	//
	// It is a required field.
	Label string

	// Cmd holds the command string to execute.
	//
	// It is a required field.
	Cmd string

	// Dir is the working directory. It must exist if set.
	Dir string

	// Env holds "KEY=VALUE" pairs to overwrite in the current environment.
	Env []string

	// Timeout is a time.Duration compatible string that defines how long to wait before
	// killing the step's command.
	Timeout string

	// Upstream holds Id values of steps that must complete before this step runs.
	// A step may only reference steps declared earlier in the file.
	Upstream []string

	// WaitForPath defers the step until the file/directory exists, re-checking on every
	// processing round.
	WaitForPath string

	// timeout is the parsed version of Timeout.
	timeout time.Duration
}

// GetTimeout returns the parsed value of Timeout.
func (s Step) GetTimeout() time.Duration {
	return s.timeout
}

// Config defines the structure of a config file.
type Config struct {
	// Data defines how to store program state.
	Data DataConfig

	// Step defines the pipeline's commands in submission order.
	Step []Step

	// TimingQueueLength selects how many per-phase elapsed-time samples to retain per
	// command type. Zero selects the engine default; negative disables capture.
	TimingQueueLength int

	// MaxIterations bounds the number of queue iterations in one run.
	MaxIterations int
}

// ReadConfigFile converts a file to a Config value.
func ReadConfigFile(name string) (c Config, err error) {
	file := std_viper.New()
	file.SetConfigFile(name)
	if err = file.ReadInConfig(); err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file [%s]", name)
	}

	err = file.Unmarshal(&c)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to unmarshal config from file [%s]", name)
	}

	err = FinalizeConfig(&c)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	return c, err
}

// FinalizeConfig validates and finalizes Config fields.
func FinalizeConfig(c *Config) error {
	// Validate the session file path early (vs. the post-run write) by ensuring the path
	// is writable and intermediate directories exist.
	if c.Data.Session.File != "" {
		f, err := cage_file.CreateFileAll(c.Data.Session.File, os.O_WRONLY, dataFilePerm, dataDirPerm)
		if err != nil {
			return errors.Wrapf(err, "failed to init session file [%s]", c.Data.Session.File)
		}
		defer f.Close() //nolint:errcheck
	}

	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}

	if len(c.Step) == 0 {
		return errors.New("config defines no [Step] list")
	}

	uniqueId := map[string]bool{}

	for n := range c.Step {
		s := &c.Step[n]

		if s.Label == "" {
			return errors.Errorf("step %d is missing a [Label] field", n)
		}
		if s.Cmd == "" {
			return errors.Errorf("step [%s] is missing a [Cmd] field", s.Label)
		}
		if s.Id == "" {
			s.Id = s.Label
		}
		if uniqueId[s.Id] {
			return errors.Errorf("step Id [%s] is used more than once", s.Id)
		}

		if s.Dir != "" {
			exists, fi, err := cage_file.Exists(s.Dir)
			if err != nil {
				return errors.Wrapf(err, "failed to verify step [%s] dir [%s] exists", s.Label, s.Dir)
			}
			if !exists || !fi.IsDir() {
				return errors.Errorf("step [%s] dir [%s] is not a directory", s.Label, s.Dir)
			}
		}

		if s.Timeout == "" {
			s.Timeout = DefaultStepTimeout
		}
		var timeoutErr error
		s.timeout, timeoutErr = time.ParseDuration(s.Timeout)
		if timeoutErr != nil {
			return errors.Wrapf(timeoutErr, "failed to parse step [%s] Timeout [%s]", s.Label, s.Timeout)
		}

		// Upstream references must resolve to earlier steps so one pass can wire each
		// step's dependencies at construction time.
		for _, u := range s.Upstream {
			if u == s.Id {
				return errors.Errorf("step [%s] lists itself as upstream", s.Label)
			}
			if !uniqueId[u] {
				return errors.Errorf("step [%s] upstream [%s] does not match an earlier step Id", s.Label, u)
			}
		}

		uniqueId[s.Id] = true
	}

	return nil
}
