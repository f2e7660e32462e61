// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor

import (
	"fmt"

	"github.com/pkg/errors"
)

// ChainStep is one link of a chain: build turns the value threaded so far into the next
// command, extract pulls the next value out of that command's completed response.
//
// The value is untyped; a chain of steps In -> T1 -> ... -> Out is a documentation
// contract between each extract and the following build.
type ChainStep struct {
	build   func(value interface{}) Command
	extract func(resp Response) interface{}
}

// CommandChainBuilder assembles a chain command fluently: Start records the seed value
// and the first step, each Then appends another step, Build binds the chain to a queue.
//
// Calling Then or Build on an unstarted builder is a configuration error and panics
// eagerly, at configuration time rather than during queue processing.
type CommandChainBuilder struct {
	seed    interface{}
	steps   []ChainStep
	started bool
}

// NewCommandChainBuilder returns an empty builder.
func NewCommandChainBuilder() *CommandChainBuilder {
	return &CommandChainBuilder{}
}

// Start records the initial value and the first step.
func (b *CommandChainBuilder) Start(seed interface{}, build func(value interface{}) Command, extract func(resp Response) interface{}) *CommandChainBuilder {
	if b.started {
		panic(errors.New("chain builder: Start called twice"))
	}
	b.seed = seed
	b.started = true
	return b.append(build, extract)
}

// Then appends another step. It panics if Start has not been called.
func (b *CommandChainBuilder) Then(build func(value interface{}) Command, extract func(resp Response) interface{}) *CommandChainBuilder {
	if !b.started {
		panic(errors.New("chain builder: Then called before Start"))
	}
	return b.append(build, extract)
}

func (b *CommandChainBuilder) append(build func(value interface{}) Command, extract func(resp Response) interface{}) *CommandChainBuilder {
	if build == nil || extract == nil {
		panic(errors.Errorf("chain builder: step %d requires both a build and an extract function", len(b.steps)))
	}
	b.steps = append(b.steps, ChainStep{build: build, extract: extract})
	return b
}

// Build returns a chain command bound to the queue. Submit it like any other command.
func (b *CommandChainBuilder) Build(q *CommandQueue) *ChainCommand {
	if !b.started {
		panic(errors.New("chain builder: Build called before Start"))
	}
	if q == nil {
		panic(errors.New("chain builder: Build requires a queue"))
	}
	c := &ChainCommand{
		queue: q,
		steps: append([]ChainStep{}, b.steps...),
		value: b.seed,
		resp:  &ChainResponse{},
	}
	c.Init(c.resp)
	return c
}

// ChainResponse is the record owned by a chain command.
type ChainResponse struct {
	ResponseRecord

	// OutputData is the value produced by the final step's extract on a fully-successful
	// run, and nil if any step failed or canceled.
	OutputData interface{}
}

// ChainCommand is a composite command that submits its steps to the queue one at a time,
// threading a value through each step's extract into the next step's build.
//
// The chain body is popped exactly once: its execute phase submits the first step and
// parks the chain at StatusPending (counted as the chain's one deferral). Completion
// callbacks on each child submit the next step and finally write the chain's terminal
// status, so a fully-successful N-step run costs N+1 processed commands. A child that
// ends CANCELED or FAILED fails the chain with nil OutputData.
//
// Register callbacks on the chain before submission as with any command; its execute
// callbacks fire when the chain is finalized. A child whose build or extract function
// panics mid-chain leaves the chain at StatusPending; keep those functions total.
type ChainCommand struct {
	Base

	queue *CommandQueue
	steps []ChainStep
	resp  *ChainResponse

	// value is the seed, then each step's extracted output.
	value interface{}

	// next indexes the step to submit, child holds the in-flight step's command.
	next  int
	child Command
}

// OutputData returns the chain's final value, or nil before completion and on failure.
func (c *ChainCommand) OutputData() interface{} {
	return c.resp.OutputData
}

// Execute submits the first step and hands the chain's outcome off to the step
// completion callbacks.
func (c *ChainCommand) Execute() ExecuteVerdict {
	c.submitNext()
	return executeHandedOff(fmt.Sprintf("running step 1 of %d", len(c.steps)))
}

func (c *ChainCommand) submitNext() {
	child := c.steps[c.next].build(c.value)
	child.base().AddOnExecuteCallback(func(ExecuteVerdict) { c.advance() })
	child.base().AddOnCancelCallback(func(CancelVerdict) { c.advance() })
	c.child = child
	c.queue.Submit(child)
}

// advance runs inside a child's terminal callback: on completion it extracts the next
// value and submits the next step (or finalizes the chain); on child cancellation or
// failure it fails the chain.
func (c *ChainCommand) advance() {
	child := c.child
	switch child.Response().Status() {
	case StatusCompleted:
		c.value = c.steps[c.next].extract(child.Response())
		c.next++
		if c.next < len(c.steps) {
			c.submitNext()
			return
		}
		c.resp.OutputData = c.value
		c.finalize(StatusCompleted, Success())
	case StatusCanceled, StatusFailed:
		c.resp.OutputData = nil
		c.finalize(StatusFailed, Failure(fmt.Sprintf("chain step %d ended %s: %s",
			c.next+1, child.Response().Status(), commandSummary(child))))
	}
}

// finalize writes the chain's terminal status and fires its execute callbacks with the
// closing verdict. Callback panics are quarantined as usual.
func (c *ChainCommand) finalize(status ResponseStatus, v ExecuteVerdict) {
	c.resp.setStatus(status)
	c.queue.fireExecuteCallbacks(&c.Base, v)
}

var _ Command = (*ChainCommand)(nil)
