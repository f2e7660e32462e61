// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor

// DependencyAction is the outcome of evaluating one or more predecessors, ordered by
// severity: ActionProceed < ActionDefer < ActionCancel. The combined action over
// multiple dependencies is the maximum individual action.
type DependencyAction int

const (
	// ActionProceed allows the lifecycle to advance to the defer check.
	ActionProceed DependencyAction = iota

	// ActionDefer re-queues the command until predecessors make progress.
	ActionDefer

	// ActionCancel terminates the command because a predecessor cannot complete.
	ActionCancel
)

// String returns the lowercase name of the action.
func (a DependencyAction) String() string {
	switch a {
	case ActionProceed:
		return "proceed"
	case ActionDefer:
		return "defer"
	case ActionCancel:
		return "cancel"
	}
	return "unknown"
}

// DependencyEntry selects how to treat one predecessor that has not finished yet.
//
// OnCreated applies while the predecessor is StatusCreated, OnPending while it is
// StatusPending. Terminal predecessor statuses are not configurable: COMPLETED always
// proceeds, CANCELED and FAILED always cancel.
type DependencyEntry struct {
	// Target is the predecessor command. Identity is the object reference.
	Target Command

	// OnCreated is the action while Target has never been processed.
	OnCreated DependencyAction

	// OnPending is the action while Target is deferred.
	OnPending DependencyAction
}

// DependOn returns an entry with the default policy: defer while the target is
// CREATED or PENDING.
func DependOn(target Command) DependencyEntry {
	return DependencyEntry{Target: target, OnCreated: ActionDefer, OnPending: ActionDefer}
}

// DependencyResult is the combined outcome of a dependency check.
type DependencyResult struct {
	// Action is the most severe individual action.
	Action DependencyAction

	// Reason belongs to one contributing entry at the maximum severity (the first such),
	// wrapped in ReasonByDependencyCheck. It is nil when Action is ActionProceed.
	Reason Reason
}

// checkDependencies is a pure function over the predecessor statuses and the entries'
// policy knobs.
func checkDependencies(entries []DependencyEntry) DependencyResult {
	res := DependencyResult{Action: ActionProceed}
	for _, e := range entries {
		action, reason := e.evaluate()
		if action > res.Action {
			res.Action = action
			res.Reason = reason
		}
	}
	return res
}

// evaluate maps one predecessor's current status to an action and reason.
func (e DependencyEntry) evaluate() (DependencyAction, Reason) {
	switch e.Target.Response().Status() {
	case StatusCanceled, StatusFailed:
		return ActionCancel, ReasonByDependencyCheck{Reason: "Canceled due to dependency: " + commandSummary(e.Target)}
	case StatusCreated:
		return e.policy(e.OnCreated)
	case StatusPending:
		return e.policy(e.OnPending)
	}
	return ActionProceed, nil
}

// policy applies an OnCreated/OnPending knob to a non-terminal predecessor.
func (e DependencyEntry) policy(action DependencyAction) (DependencyAction, Reason) {
	switch action {
	case ActionCancel:
		return ActionCancel, ReasonByDependencyCheck{Reason: "Canceled due to dependency: " + commandSummary(e.Target)}
	case ActionDefer:
		return ActionDefer, ReasonByDependencyCheck{Reason: "Deferred due to dependency: " + commandSummary(e.Target)}
	}
	return ActionProceed, nil
}
