// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor

import (
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
)

// DeferCallback receives the verdict of a defer check that deferred the command.
type DeferCallback func(DeferVerdict)

// CancelCallback receives the verdict of a cancel check (or dependency evaluation, or a
// panicking defer/cancel check) that canceled the command.
type CancelCallback func(CancelVerdict)

// ExecuteCallback receives the verdict of the command's execution, success or failure.
type ExecuteCallback func(ExecuteVerdict)

// Command is one unit of work with a fixed three-phase lifecycle.
//
// Implementations embed Base, call Base.Init from their constructor with the response
// they own, and implement Execute. ShouldDefer and ShouldCancel have proceed-by-default
// implementations provided by Base and may be overridden.
type Command interface {
	// Response returns the record owned by this command. The reference is stable across
	// the command's lifetime.
	Response() Response

	// ShouldDefer decides whether the command is ready to run in this round.
	ShouldDefer() DeferVerdict

	// ShouldCancel decides whether the command still needs to run.
	ShouldCancel() CancelVerdict

	// Execute performs the command's work. Put payload in the command's response,
	// not in the verdict.
	Execute() ExecuteVerdict

	base() *Base
}

// Base carries the state the queue needs from every command: identity, the owned
// response, the dependency list, and the per-phase callback lists.
//
// Embed it by value; the queue reaches it through the Command interface.
type Base struct {
	id        string
	resp      Response
	deps      []DependencyEntry
	onDefer   []DeferCallback
	onCancel  []CancelCallback
	onExecute []ExecuteCallback

	// ingested is set by the queue on the command's first pop.
	ingested bool
}

// Init binds the command's response and dependencies and assigns its identity.
//
// It must be called exactly once, from the command constructor, before submission.
// A nil response or a dependency without a target is a configuration error and panics.
func (b *Base) Init(resp Response, deps ...DependencyEntry) {
	if resp == nil {
		panic(errors.New("command response must not be nil"))
	}
	for i, d := range deps {
		if d.Target == nil {
			panic(errors.Errorf("dependency entry %d has no target command", i))
		}
	}
	b.id = ksuid.New().String()
	b.resp = resp
	b.deps = append([]DependencyEntry{}, deps...)
	resp.record().status = StatusCreated
}

// ID returns the command's ksuid, assigned at Init.
func (b *Base) ID() string {
	return b.id
}

// Response returns the record owned by this command.
func (b *Base) Response() Response {
	return b.resp
}

// Dependencies returns a copy of the command's dependency entries.
func (b *Base) Dependencies() []DependencyEntry {
	return append([]DependencyEntry{}, b.deps...)
}

// CheckDependencies combines the current statuses of all predecessors into a single
// action, by maximum severity.
func (b *Base) CheckDependencies() DependencyResult {
	return checkDependencies(b.deps)
}

// ShouldDefer proceeds by default. Override to wait on external conditions.
func (b *Base) ShouldDefer() DeferVerdict {
	return NoDefer()
}

// ShouldCancel proceeds by default. Override to drop work that became unnecessary.
func (b *Base) ShouldCancel() CancelVerdict {
	return NoCancel()
}

// AddOnDeferCallback registers a callback fired after each deferral, in registration order.
func (b *Base) AddOnDeferCallback(cb DeferCallback) {
	b.onDefer = append(b.onDefer, cb)
}

// AddOnCancelCallback registers a callback fired after a cancellation, in registration order.
func (b *Base) AddOnCancelCallback(cb CancelCallback) {
	b.onCancel = append(b.onCancel, cb)
}

// AddOnExecuteCallback registers a callback fired after execution, in registration order.
func (b *Base) AddOnExecuteCallback(cb ExecuteCallback) {
	b.onExecute = append(b.onExecute, cb)
}

func (b *Base) base() *Base {
	return b
}
