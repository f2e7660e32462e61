// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cage_time_mocks "github.com/codeactual/conveyor/internal/cage/time/mocks"
	"github.com/codeactual/conveyor/internal/conveyor"
	"github.com/codeactual/conveyor/internal/pipeline"
)

func fixtureResult() pipeline.Result {
	return pipeline.Result{
		Queue: conveyor.QueueProcessResponse{
			NumCommandsProcessed: 2,
			NumSuccesses:         1,
			NumFailures:          1,
		},
		Step: []pipeline.StepResult{
			{Id: "greet", Label: "Greet", Status: conveyor.StatusCompleted, Stdout: "hello\n"},
			{Id: "boom", Label: "Boom", Status: conveyor.StatusFailed, Reason: "step [Boom] command failed: exit status 1"},
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "conveyor_session")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()

	clock := new(cage_time_mocks.Clock)
	clock.On("Now").Return(time.Date(2020, 3, 15, 10, 30, 0, 0, time.UTC))

	expected := pipeline.NewSession(clock, fixtureResult())
	require.Exactly(t, pipeline.SessionVersion, expected.Version)
	require.Exactly(t, "20200315-1030", expected.Finished)

	name := filepath.Join(dir, "session.gob")
	require.NoError(t, pipeline.WriteSession(name, expected))

	actual, err := pipeline.ReadSession(name)
	require.NoError(t, err)
	require.Exactly(t, expected, actual)
}

func TestReadSessionMissing(t *testing.T) {
	_, err := pipeline.ReadSession("./testdata/does_not_exist.gob")
	require.Error(t, err)
}

func TestFormatResult(t *testing.T) {
	out := pipeline.FormatResult(fixtureResult())

	require.Contains(t, out, "processed 2 command(s): 1 succeeded, 1 failed, 0 canceled, 0 deferred")
	require.Contains(t, out, "[Greet] completed")
	require.Contains(t, out, "[Boom] failed (step [Boom] command failed: exit status 1)")
}

func TestFormatResultTiming(t *testing.T) {
	res := fixtureResult()
	res.Timing = map[string]conveyor.TimingStats{
		"ExecCommand": {
			ExecuteTiming: conveyor.PhaseTimingStats{Count: 1, AvgElapsedMs: 1500},
		},
	}

	out := pipeline.FormatResult(res)
	require.Contains(t, out, "timing (avg per phase):")
	require.Contains(t, out, "[ExecCommand]")
	require.Contains(t, out, "1 second")
}

func TestFormatResultIterationBound(t *testing.T) {
	res := fixtureResult()
	res.Queue.ReachedMaxIterations = true

	out := pipeline.FormatResult(res)
	require.Contains(t, out, "iteration bound")
}
