// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor_test

import (
	"fmt"
	std_time "time"

	"github.com/pkg/errors"

	"github.com/codeactual/conveyor/internal/conveyor"
)

// stepClock is a Clock whose time only moves when a command advances it, making phase
// timing deterministic.
type stepClock struct {
	now std_time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: std_time.Date(2020, 3, 15, 10, 30, 0, 0, std_time.UTC)}
}

func (c *stepClock) Now() std_time.Time {
	return c.now
}

func (c *stepClock) Advance(d std_time.Duration) {
	c.now = c.now.Add(d)
}

// SayHelloArgs configures SayHelloCommand.
type SayHelloArgs struct {
	Name string
}

// SayHelloResponse carries the greeting produced by SayHelloCommand.
type SayHelloResponse struct {
	conveyor.ResponseRecord

	Message string
}

// SayHelloCommand greets the configured name, or fails if there is none.
type SayHelloCommand struct {
	conveyor.Base

	Args SayHelloArgs
	resp *SayHelloResponse
}

func NewSayHelloCommand(args SayHelloArgs) *SayHelloCommand {
	c := &SayHelloCommand{Args: args, resp: &SayHelloResponse{}}
	c.Init(c.resp)
	return c
}

func (c *SayHelloCommand) Execute() conveyor.ExecuteVerdict {
	if c.Args.Name == "" {
		return conveyor.Failure("Cannot say hello to no one.")
	}
	c.resp.Message = fmt.Sprintf("Hello, %s!", c.Args.Name)
	return conveyor.Success()
}

// ExternalSystem is state mutated by tests to drive WaitToHelloCommand's hooks.
type ExternalSystem struct {
	Name   string
	Cancel bool
}

// WaitToHelloResponse carries the greeting produced by WaitToHelloCommand.
type WaitToHelloResponse struct {
	conveyor.ResponseRecord

	Message string
}

// WaitToHelloCommand defers until the external system provides a name, and cancels if
// the external system requests it.
type WaitToHelloCommand struct {
	conveyor.Base

	External *ExternalSystem
	resp     *WaitToHelloResponse
}

func NewWaitToHelloCommand(external *ExternalSystem) *WaitToHelloCommand {
	c := &WaitToHelloCommand{External: external, resp: &WaitToHelloResponse{}}
	c.Init(c.resp)
	return c
}

func (c *WaitToHelloCommand) ShouldDefer() conveyor.DeferVerdict {
	if c.External.Name == "" && !c.External.Cancel {
		return conveyor.DeferNow("Name is required to say hello.")
	}
	return conveyor.NoDefer()
}

func (c *WaitToHelloCommand) ShouldCancel() conveyor.CancelVerdict {
	if c.External.Cancel {
		return conveyor.CancelNow("External system requested cancellation.")
	}
	return conveyor.NoCancel()
}

func (c *WaitToHelloCommand) Execute() conveyor.ExecuteVerdict {
	c.resp.Message = fmt.Sprintf("Hello, %s!", c.External.Name)
	return conveyor.Success()
}

// DoAnythingArgs configures DoAnythingCommand to defer, cancel, or fail on demand.
type DoAnythingArgs struct {
	DeferTimes int
	Cancel     bool
	Fail       bool
}

// DoAnythingCommand exercises every lifecycle outcome from one type.
type DoAnythingCommand struct {
	conveyor.Base

	Args DoAnythingArgs
}

func NewDoAnythingCommand(args DoAnythingArgs, deps ...conveyor.DependencyEntry) *DoAnythingCommand {
	c := &DoAnythingCommand{Args: args}
	c.Init(&conveyor.ResponseRecord{}, deps...)
	return c
}

func (c *DoAnythingCommand) ShouldDefer() conveyor.DeferVerdict {
	if c.Args.DeferTimes > 0 {
		c.Args.DeferTimes--
		return conveyor.DeferNow(fmt.Sprintf("Deferred with %d times remaining.", c.Args.DeferTimes))
	}
	return conveyor.NoDefer()
}

func (c *DoAnythingCommand) ShouldCancel() conveyor.CancelVerdict {
	if c.Args.Cancel {
		return conveyor.CancelNow("Command was canceled.")
	}
	return conveyor.NoCancel()
}

func (c *DoAnythingCommand) Execute() conveyor.ExecuteVerdict {
	if c.Args.Fail {
		return conveyor.Failure("Command execution failed.")
	}
	return conveyor.Success()
}

// RunFunctionCommand invokes the configured function during execution, e.g. to submit
// more work mid-call.
type RunFunctionCommand struct {
	conveyor.Base

	fn func()
}

func NewRunFunctionCommand(fn func()) *RunFunctionCommand {
	c := &RunFunctionCommand{fn: fn}
	c.Init(&conveyor.ResponseRecord{})
	return c
}

func (c *RunFunctionCommand) Execute() conveyor.ExecuteVerdict {
	if c.fn != nil {
		c.fn()
	}
	return conveyor.Success()
}

// PanicArgs selects which hook of PanicCommand panics.
type PanicArgs struct {
	DeferTimes    int
	Cancel        bool
	PanicInDefer  bool
	PanicInCancel bool
	PanicInExec   bool
	Message       string
}

// PanicCommand throws from lifecycle hooks to exercise the exception shield.
type PanicCommand struct {
	conveyor.Base

	Args PanicArgs
}

func NewPanicCommand(args PanicArgs) *PanicCommand {
	if args.Message == "" {
		args.Message = "An error occurred in the command."
	}
	c := &PanicCommand{Args: args}
	c.Init(&conveyor.ResponseRecord{})
	return c
}

func (c *PanicCommand) ShouldDefer() conveyor.DeferVerdict {
	if c.Args.PanicInDefer {
		panic(errors.New(c.Args.Message))
	}
	if c.Args.DeferTimes > 0 {
		c.Args.DeferTimes--
		return conveyor.DeferNow("Defer requested by command.")
	}
	return conveyor.NoDefer()
}

func (c *PanicCommand) ShouldCancel() conveyor.CancelVerdict {
	if c.Args.PanicInCancel {
		panic(errors.New(c.Args.Message))
	}
	if c.Args.Cancel {
		return conveyor.CancelNow("Command was canceled by user request.")
	}
	return conveyor.NoCancel()
}

func (c *PanicCommand) Execute() conveyor.ExecuteVerdict {
	if c.Args.PanicInExec {
		panic(errors.New(c.Args.Message))
	}
	return conveyor.Success()
}

// AdvanceArgs configures how far AdvanceCommand moves the test clock per phase.
type AdvanceArgs struct {
	DeferMs  int
	CancelMs int
	ExecMs   int
}

// AdvanceCommand simulates phase work by advancing a stepClock, giving timing tests
// exact elapsed values.
type AdvanceCommand struct {
	conveyor.Base

	Args  AdvanceArgs
	clock *stepClock
}

func NewAdvanceCommand(clock *stepClock, args AdvanceArgs) *AdvanceCommand {
	c := &AdvanceCommand{Args: args, clock: clock}
	c.Init(&conveyor.ResponseRecord{})
	return c
}

func (c *AdvanceCommand) ShouldDefer() conveyor.DeferVerdict {
	c.clock.Advance(std_time.Duration(c.Args.DeferMs) * std_time.Millisecond)
	return conveyor.NoDefer()
}

func (c *AdvanceCommand) ShouldCancel() conveyor.CancelVerdict {
	c.clock.Advance(std_time.Duration(c.Args.CancelMs) * std_time.Millisecond)
	return conveyor.NoCancel()
}

func (c *AdvanceCommand) Execute() conveyor.ExecuteVerdict {
	c.clock.Advance(std_time.Duration(c.Args.ExecMs) * std_time.Millisecond)
	return conveyor.Success()
}

// AddOneArgs configures AddOneCommand.
type AddOneArgs struct {
	Number       int
	ShouldCancel bool
	ShouldFail   bool
}

// AddOneResponse carries the increment result.
type AddOneResponse struct {
	conveyor.ResponseRecord

	Result int
}

// AddOneCommand increments its input, with switches to cancel or fail instead.
type AddOneCommand struct {
	conveyor.Base

	Args AddOneArgs
	resp *AddOneResponse
}

func NewAddOneCommand(args AddOneArgs) *AddOneCommand {
	c := &AddOneCommand{Args: args, resp: &AddOneResponse{}}
	c.Init(c.resp)
	return c
}

func (c *AddOneCommand) ShouldCancel() conveyor.CancelVerdict {
	if c.Args.ShouldCancel {
		return conveyor.CancelNow("Command was cancelled")
	}
	return conveyor.NoCancel()
}

func (c *AddOneCommand) Execute() conveyor.ExecuteVerdict {
	if c.Args.ShouldFail {
		return conveyor.Failure("Command failed")
	}
	c.resp.Result = c.Args.Number + 1
	return conveyor.Success()
}

// commandID reads a command's identity through its embedded Base.
func commandID(cmd conveyor.Command) string {
	type identified interface {
		ID() string
	}
	return cmd.(identified).ID()
}
