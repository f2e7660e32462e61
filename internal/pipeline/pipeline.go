// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pipeline turns a config file of shell steps with upstream dependencies into
// commands on the conveyor engine and runs them to a report.
package pipeline

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	cage_zap "github.com/codeactual/conveyor/internal/cage/log/zap"
	cage_time "github.com/codeactual/conveyor/internal/cage/time"
	"github.com/codeactual/conveyor/internal/conveyor"
)

// StepResult summarizes one step after a run.
type StepResult struct {
	// Id is a copy of Step.Id.
	Id string

	// Label is a copy of Step.Label.
	Label string

	// Status is the step's lifecycle status when the run ended.
	Status conveyor.ResponseStatus

	// Reason is the cause recorded with the step's last logged phase, if any.
	Reason string

	// Stdout is collected from the command execution.
	Stdout string

	// Stderr is collected from the command execution.
	Stderr string
}

// Result aggregates one pipeline run.
type Result struct {
	// Queue holds the engine's per-call counters and command log.
	Queue conveyor.QueueProcessResponse

	// Step holds one result per configured step, in config order.
	Step []StepResult

	// Timing holds per-command-type phase statistics.
	Timing map[string]conveyor.TimingStats
}

// Runner submits a pipeline's steps to a fresh queue and drains it.
type Runner struct {
	// Log receives debug/info-level messages.
	Log *zap.Logger

	// Clock supports timestamp mocking for tests.
	Clock cage_time.Clock
}

// Run executes the pipeline described by a finalized Config.
//
// Upstream references become engine dependencies with the default policy (defer while
// the upstream is unfinished, cancel if it fails or cancels), so a failed step cascades
// into cancellation of everything downstream of it.
func (r *Runner) Run(cfg Config) (Result, error) {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if r.Clock == nil {
		r.Clock = cage_time.RealClock{}
	}

	queue := conveyor.NewCommandQueue(conveyor.QueueConfig{
		Log:               r.Log,
		Clock:             r.Clock,
		TimingQueueLength: cfg.TimingQueueLength,
	})

	byId := make(map[string]*ExecCommand, len(cfg.Step))
	cmds := make([]*ExecCommand, 0, len(cfg.Step))
	for _, step := range cfg.Step {
		deps := make([]conveyor.DependencyEntry, 0, len(step.Upstream))
		for _, u := range step.Upstream {
			upstream, ok := byId[u]
			if !ok {
				return Result{}, errors.Errorf("step [%s] upstream [%s] not found; was the config finalized?", step.Label, u)
			}
			deps = append(deps, conveyor.DependOn(upstream))
		}

		cmd := NewExecCommand(step, r.Log, deps...)
		byId[step.Id] = cmd
		cmds = append(cmds, cmd)
		queue.Submit(cmd)
	}

	r.Log.Info("pipeline submitted",
		cage_zap.Tag("pipeline"),
		zap.Int("steps", len(cmds)),
		zap.Int("maxIterations", cfg.MaxIterations),
	)

	queueRes := queue.ProcessAll(cfg.MaxIterations)

	res := Result{
		Queue:  queueRes,
		Timing: queue.TimingData(),
	}

	lastReason := map[string]string{}
	for _, entry := range queueRes.CommandLog {
		if entry.Reason != nil {
			lastReason[entry.CommandID] = entry.Reason.ReasonString()
		}
	}

	for _, cmd := range cmds {
		res.Step = append(res.Step, StepResult{
			Id:     cmd.Step.Id,
			Label:  cmd.Step.Label,
			Status: cmd.Response().Status(),
			Reason: lastReason[cmd.ID()],
			Stdout: cmd.ExecResponse().Stdout,
			Stderr: cmd.ExecResponse().Stderr,
		})
	}

	return res, nil
}
