// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conveyor provides a single-threaded cooperative command-execution engine: a FIFO
// queue of user-defined commands, each run through a fixed lifecycle (dependency check,
// defer check, cancel check, execute), with deferral re-entry, inter-command dependencies,
// value-threading command chains, lifecycle callbacks, per-phase timing capture, and a
// structured log of every phase evaluation.
package conveyor

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Phase identifies one step of the command lifecycle in log entries and timing data.
type Phase string

const (
	// PhaseDependencyCheck combines the statuses of a command's predecessors into one action.
	PhaseDependencyCheck Phase = "dependency_check"

	// PhaseShouldDefer asks the command whether it is ready to run.
	PhaseShouldDefer Phase = "should_defer"

	// PhaseShouldCancel asks the command whether it still needs to run.
	PhaseShouldCancel Phase = "should_cancel"

	// PhaseExecute performs the command's work.
	PhaseExecute Phase = "execute"
)

// commandName returns the bare type name of the command implementation, e.g. "SayHelloCommand".
//
// It keys timing data and labels log entries.
func commandName(cmd Command) string {
	t := reflect.TypeOf(cmd)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// commandSummary describes a command for use in dependency-check reasons and logs.
func commandSummary(cmd Command) string {
	return fmt.Sprintf("%s[%s] status=%s", commandName(cmd), cmd.base().ID(), cmd.Response().Status())
}

// callbackName resolves the function name of a registered callback for CallbackOutcome records.
func callbackName(cb interface{}) string {
	f := runtime.FuncForPC(reflect.ValueOf(cb).Pointer())
	if f == nil {
		return "unknown"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}
	return name
}

// panicText converts a recovered panic value to the reason string recorded in logs.
func panicText(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r)
}
