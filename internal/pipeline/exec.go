// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	cage_zap "github.com/codeactual/conveyor/internal/cage/log/zap"
	cage_file "github.com/codeactual/conveyor/internal/cage/os/file"
	cage_shell "github.com/codeactual/conveyor/internal/cage/shell"
	"github.com/codeactual/conveyor/internal/conveyor"
)

// ExecResponse carries the outputs of one executed step.
type ExecResponse struct {
	conveyor.ResponseRecord

	// Stdout is collected from the command execution.
	Stdout string

	// Stderr is collected from the command execution.
	Stderr string
}

// ExecCommand runs one pipeline step's shell command through the engine.
//
// It defers while Step.WaitForPath does not exist, never self-cancels, and reports
// failure if the process cannot start, exits non-zero, or exceeds Step.Timeout.
type ExecCommand struct {
	conveyor.Base

	// Step is the configuration the command was built from.
	Step Step

	// Log receives debug-level messages.
	Log *zap.Logger

	resp *ExecResponse
}

// NewExecCommand returns a submittable command for one step.
func NewExecCommand(step Step, log *zap.Logger, deps ...conveyor.DependencyEntry) *ExecCommand {
	if log == nil {
		log = zap.NewNop()
	}
	c := &ExecCommand{Step: step, Log: log, resp: &ExecResponse{}}
	c.Init(c.resp, deps...)
	return c
}

// ExecResponse returns the response with its concrete type.
func (c *ExecCommand) ExecResponse() *ExecResponse {
	return c.resp
}

// ShouldDefer waits for Step.WaitForPath if one is configured.
func (c *ExecCommand) ShouldDefer() conveyor.DeferVerdict {
	if c.Step.WaitForPath == "" {
		return conveyor.NoDefer()
	}
	exists, _, err := cage_file.Exists(c.Step.WaitForPath)
	if err != nil {
		// Surface the stat problem through execution instead of deferring forever.
		return conveyor.NoDefer()
	}
	if !exists {
		return conveyor.DeferNow(fmt.Sprintf("waiting for path [%s]", c.Step.WaitForPath))
	}
	return conveyor.NoDefer()
}

// Execute runs the step's command and collects its output.
func (c *ExecCommand) Execute() conveyor.ExecuteVerdict {
	args, err := cage_shell.Parse(c.Step.Cmd)
	if err != nil {
		return conveyor.Failure(err.Error())
	}

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if timeout := c.Step.GetTimeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	proc := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204
	if c.Step.Dir != "" {
		proc.Dir = c.Step.Dir
	}
	if len(c.Step.Env) > 0 {
		proc.Env = append(os.Environ(), c.Step.Env...)
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()
	c.resp.Stdout = stdout.String()
	c.resp.Stderr = stderr.String()

	c.Log.Debug("step command finished",
		cage_zap.Tag("pipeline"),
		zap.String("step", c.Step.Label),
		zap.String("cmd", c.Step.Cmd),
		zap.Bool("errored", runErr != nil),
	)

	if runErr != nil {
		return conveyor.Failure(errors.Wrapf(runErr, "step [%s] command failed", c.Step.Label).Error())
	}
	return conveyor.Success()
}

var _ conveyor.Command = (*ExecCommand)(nil)
