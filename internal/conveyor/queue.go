// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	cage_zap "github.com/codeactual/conveyor/internal/cage/log/zap"
	cage_time "github.com/codeactual/conveyor/internal/cage/time"
)

const (
	// DefaultTimingQueueLength is the per-(command type, phase) sample capacity used when
	// QueueConfig leaves TimingQueueLength at zero.
	DefaultTimingQueueLength = 50

	// TimingDisabled turns off timing capture; TimingData then returns an empty map.
	TimingDisabled = -1
)

// CallbackOutcome records whether one user callback completed or panicked.
type CallbackOutcome struct {
	// Name is the callback's function name.
	Name string

	// Errored is true if the callback panicked. The panic never changes the command's
	// status and never aborts the processing loop.
	Errored bool
}

// Succeeded returns true if the callback completed without panicking.
func (o CallbackOutcome) Succeeded() bool {
	return !o.Errored
}

// LogEntry records one phase evaluation of one command.
type LogEntry struct {
	// CommandID is the ksuid of the evaluated command.
	CommandID string

	// CommandName is the command's type name.
	CommandName string

	// Phase identifies the lifecycle step that produced the entry.
	Phase Phase

	// Action is the combined dependency action. It is meaningful only when Phase is
	// PhaseDependencyCheck.
	Action DependencyAction

	// Proceed mirrors the phase verdict: true when the lifecycle advanced past the phase,
	// and for PhaseExecute, true on success.
	Proceed bool

	// Reason is the cause attached to the verdict or action, or nil.
	Reason Reason

	// Callbacks holds one outcome per user callback fired for this phase, in
	// registration order.
	Callbacks []CallbackOutcome

	// TimestampMs is the clock reading, in monotonic milliseconds, when the entry
	// was recorded.
	TimestampMs int64
}

// QueueProcessResponse aggregates the outcomes of one ProcessOnce/ProcessAll call.
//
// NumDeferrals + NumCancellations + NumSuccesses + NumFailures == NumCommandsProcessed.
type QueueProcessResponse struct {
	// NumCommandsProcessed counts each pop of a command from the queue head.
	NumCommandsProcessed int

	// NumIngested counts commands popped for the first time ever during this call.
	NumIngested int

	// NumDeferrals counts pops that ended with the command re-queued (or parked) at
	// StatusPending.
	NumDeferrals int

	// NumCancellations counts pops that ended at StatusCanceled.
	NumCancellations int

	// NumSuccesses counts pops that ended at StatusCompleted.
	NumSuccesses int

	// NumFailures counts pops that ended at StatusFailed.
	NumFailures int

	// ReachedMaxIterations is true if the iteration bound was consumed while unprocessed
	// work remained.
	ReachedMaxIterations bool

	// CommandLog holds every phase evaluation performed during the call, in order.
	CommandLog []LogEntry
}

// QueueConfig selects the queue's collaborators.
type QueueConfig struct {
	// Log receives debug/info-level progress messages. Defaults to a no-op logger.
	Log *zap.Logger

	// Clock provides timestamps and phase timing. Defaults to the real clock.
	// Contract: monotonic millisecond timestamps.
	Clock cage_time.Clock

	// TimingQueueLength is the per-(command type, phase) sample capacity. Zero selects
	// DefaultTimingQueueLength; TimingDisabled (or any negative value) disables capture.
	TimingQueueLength int
}

// CommandQueue is a strictly-FIFO, single-threaded command scheduler.
//
// It is not safe for concurrent use, by design: all suspension is synchronous, and
// deferral is logical re-queueing. Command hooks and callbacks must not call Submit's
// processing counterparts (ProcessOnce/ProcessAll) re-entrantly; submitting new
// commands from hooks and callbacks is supported.
type CommandQueue struct {
	log       *zap.Logger
	clock     cage_time.Clock
	timingLen int

	// items holds queued commands in FIFO order.
	items []Command

	// queued indexes queue membership by command identity for O(1) re-add checks.
	queued map[*Base]struct{}

	// timings holds per-command-type phase rings, keyed by type name.
	timings map[string]*commandTimings
}

// NewCommandQueue returns an empty queue.
func NewCommandQueue(cfg QueueConfig) *CommandQueue {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = cage_time.RealClock{}
	}
	if cfg.TimingQueueLength == 0 {
		cfg.TimingQueueLength = DefaultTimingQueueLength
	}
	return &CommandQueue{
		log:       cfg.Log,
		clock:     cfg.Clock,
		timingLen: cfg.TimingQueueLength,
		queued:    map[*Base]struct{}{},
		timings:   map[string]*commandTimings{},
	}
}

// Submit appends the command to the queue tail and returns its response reference.
//
// Submitting a command whose status is terminal, or one already in the queue, is a
// queueing no-op; the response is still returned. Submitting an uninitialized command
// is a configuration error and panics.
func (q *CommandQueue) Submit(cmd Command) Response {
	b := q.validate(cmd)

	resp := b.resp
	if resp.Status().Terminal() {
		q.log.Debug("submission skipped: terminal status",
			cage_zap.Tag("queue"),
			zap.String("command", commandSummary(cmd)),
		)
		return resp
	}
	if _, ok := q.queued[b]; ok {
		q.log.Debug("submission skipped: already queued",
			cage_zap.Tag("queue"),
			zap.String("command", commandSummary(cmd)),
		)
		return resp
	}

	q.queued[b] = struct{}{}
	q.items = append(q.items, cmd)

	q.log.Debug("command submitted",
		cage_zap.Tag("queue"),
		zap.String("command", commandSummary(cmd)),
		zap.Int("queueLen", len(q.items)),
	)
	return resp
}

// SubmitMany submits each command in order and returns the response references in the
// same order.
func (q *CommandQueue) SubmitMany(cmds ...Command) []Response {
	responses := make([]Response, 0, len(cmds))
	for _, cmd := range cmds {
		responses = append(responses, q.Submit(cmd))
	}
	return responses
}

// Len returns the current number of queued commands.
func (q *CommandQueue) Len() int {
	return len(q.items)
}

// TimingData returns per-command-type phase statistics, keyed by command type name.
// It is empty when timing capture is disabled.
func (q *CommandQueue) TimingData() map[string]TimingStats {
	out := make(map[string]TimingStats, len(q.timings))
	for name, t := range q.timings {
		out[name] = t.stats()
	}
	return out
}

// ProcessOnce drains the queue as it was at call entry, processing each command once.
// Deferrals encountered during the call are re-queued but not re-polled.
//
// maxIterations bounds the number of pops; 0 or less means no bound.
func (q *CommandQueue) ProcessOnce(maxIterations int) QueueProcessResponse {
	var res QueueProcessResponse
	snapshot := len(q.items)
	for snapshot > 0 {
		if maxIterations > 0 && res.NumCommandsProcessed >= maxIterations {
			res.ReachedMaxIterations = true
			break
		}
		snapshot--
		q.runCommand(q.pop(), &res)
	}
	return res
}

// ProcessAll polls repeatedly until the queue is empty or the bound is reached.
// Deferrals are re-polled in later rounds of the same call.
//
// maxTotalIterations bounds the number of pops across all rounds; 0 or less means no
// bound. With no bound, a queue whose remaining commands all defer indefinitely will
// not drain; callers waiting on external conditions should bound the call or use
// ProcessOnce rounds.
func (q *CommandQueue) ProcessAll(maxTotalIterations int) QueueProcessResponse {
	var res QueueProcessResponse
	for len(q.items) > 0 {
		if maxTotalIterations > 0 && res.NumCommandsProcessed >= maxTotalIterations {
			res.ReachedMaxIterations = true
			break
		}
		q.runCommand(q.pop(), &res)
	}
	return res
}

// validate panics on commands that cannot be queued; see Submit.
func (q *CommandQueue) validate(cmd Command) *Base {
	if cmd == nil {
		panic(errors.New("cannot submit a nil command"))
	}
	b := cmd.base()
	if b.resp == nil {
		panic(errors.Errorf("cannot submit %s: Base.Init was not called", commandName(cmd)))
	}
	return b
}

func (q *CommandQueue) pop() Command {
	cmd := q.items[0]
	q.items = q.items[1:]
	delete(q.queued, cmd.base())
	return cmd
}

// requeue returns a deferred command to the tail.
func (q *CommandQueue) requeue(cmd Command) {
	q.queued[cmd.base()] = struct{}{}
	q.items = append(q.items, cmd)
}

// runCommand evaluates the lifecycle phases of one popped command in fixed order:
// dependency check, defer check, cancel check, execute. Each phase either advances,
// re-queues the command, or terminates it; every evaluated phase appends a LogEntry.
func (q *CommandQueue) runCommand(cmd Command, res *QueueProcessResponse) {
	b := cmd.base()
	name := commandName(cmd)

	res.NumCommandsProcessed++
	if !b.ingested {
		b.ingested = true
		res.NumIngested++
	}

	q.log.Debug("command popped",
		cage_zap.Tag("queue"),
		zap.String("command", commandSummary(cmd)),
	)

	// Phase 1: dependency check.
	dep := b.CheckDependencies()
	entry := LogEntry{
		CommandID:   b.id,
		CommandName: name,
		Phase:       PhaseDependencyCheck,
		Action:      dep.Action,
		Proceed:     dep.Action == ActionProceed,
		Reason:      dep.Reason,
		TimestampMs: cage_time.Millis(q.clock.Now()),
	}
	switch dep.Action {
	case ActionCancel:
		b.resp.record().setStatus(StatusCanceled)
		entry.Callbacks = q.fireCancelCallbacks(b, CancelVerdict{verdict: verdict{reason: dep.Reason}})
		res.CommandLog = append(res.CommandLog, entry)
		res.NumCancellations++
		q.logOutcome(cmd, PhaseDependencyCheck, dep.Reason)
		return
	case ActionDefer:
		b.resp.record().setStatus(StatusPending)
		res.CommandLog = append(res.CommandLog, entry)
		q.requeue(cmd)
		res.NumDeferrals++
		q.logOutcome(cmd, PhaseDependencyCheck, dep.Reason)
		return
	}
	res.CommandLog = append(res.CommandLog, entry)

	// Phase 2: defer check.
	deferStart := q.clock.Now()
	deferVerdict, deferPanic, deferPanicked := q.safeShouldDefer(cmd)
	q.recordTiming(name, PhaseShouldDefer, q.clock.Now().Sub(deferStart))
	if deferPanicked {
		q.cancelOnPanic(cmd, res, PhaseShouldDefer, deferPanic)
		return
	}
	if !deferVerdict.Proceed() {
		b.resp.record().setStatus(StatusPending)
		outcomes := q.fireDeferCallbacks(b, deferVerdict)
		res.CommandLog = append(res.CommandLog, LogEntry{
			CommandID:   b.id,
			CommandName: name,
			Phase:       PhaseShouldDefer,
			Reason:      deferVerdict.Reason(),
			Callbacks:   outcomes,
			TimestampMs: cage_time.Millis(q.clock.Now()),
		})
		q.requeue(cmd)
		res.NumDeferrals++
		q.logOutcome(cmd, PhaseShouldDefer, deferVerdict.Reason())
		return
	}
	res.CommandLog = append(res.CommandLog, LogEntry{
		CommandID:   b.id,
		CommandName: name,
		Phase:       PhaseShouldDefer,
		Proceed:     true,
		Reason:      deferVerdict.Reason(),
		TimestampMs: cage_time.Millis(q.clock.Now()),
	})

	// Phase 3: cancel check.
	cancelStart := q.clock.Now()
	cancelVerdict, cancelPanic, cancelPanicked := q.safeShouldCancel(cmd)
	q.recordTiming(name, PhaseShouldCancel, q.clock.Now().Sub(cancelStart))
	if cancelPanicked {
		q.cancelOnPanic(cmd, res, PhaseShouldCancel, cancelPanic)
		return
	}
	if !cancelVerdict.Proceed() {
		b.resp.record().setStatus(StatusCanceled)
		outcomes := q.fireCancelCallbacks(b, cancelVerdict)
		res.CommandLog = append(res.CommandLog, LogEntry{
			CommandID:   b.id,
			CommandName: name,
			Phase:       PhaseShouldCancel,
			Reason:      cancelVerdict.Reason(),
			Callbacks:   outcomes,
			TimestampMs: cage_time.Millis(q.clock.Now()),
		})
		res.NumCancellations++
		q.logOutcome(cmd, PhaseShouldCancel, cancelVerdict.Reason())
		return
	}
	res.CommandLog = append(res.CommandLog, LogEntry{
		CommandID:   b.id,
		CommandName: name,
		Phase:       PhaseShouldCancel,
		Proceed:     true,
		Reason:      cancelVerdict.Reason(),
		TimestampMs: cage_time.Millis(q.clock.Now()),
	})

	// Phase 4: execute.
	execStart := q.clock.Now()
	execVerdict, execPanic, execPanicked := q.safeExecute(cmd)
	q.recordTiming(name, PhaseExecute, q.clock.Now().Sub(execStart))
	if execPanicked {
		execVerdict = Failure(execPanic)
	}

	if execVerdict.handedOff {
		b.resp.record().setStatus(StatusPending)
		res.CommandLog = append(res.CommandLog, LogEntry{
			CommandID:   b.id,
			CommandName: name,
			Phase:       PhaseExecute,
			Reason:      execVerdict.Reason(),
			TimestampMs: cage_time.Millis(q.clock.Now()),
		})
		res.NumDeferrals++
		q.logOutcome(cmd, PhaseExecute, execVerdict.Reason())
		return
	}

	if execVerdict.Proceed() {
		b.resp.record().setStatus(StatusCompleted)
		res.NumSuccesses++
	} else {
		b.resp.record().setStatus(StatusFailed)
		res.NumFailures++
	}
	outcomes := q.fireExecuteCallbacks(b, execVerdict)
	res.CommandLog = append(res.CommandLog, LogEntry{
		CommandID:   b.id,
		CommandName: name,
		Phase:       PhaseExecute,
		Proceed:     execVerdict.Proceed(),
		Reason:      execVerdict.Reason(),
		Callbacks:   outcomes,
		TimestampMs: cage_time.Millis(q.clock.Now()),
	})
	q.logOutcome(cmd, PhaseExecute, execVerdict.Reason())
}

// cancelOnPanic terminates a command whose defer/cancel check panicked. The command is
// treated as canceled with the panic text as the reason, and its cancel callbacks fire.
func (q *CommandQueue) cancelOnPanic(cmd Command, res *QueueProcessResponse, phase Phase, text string) {
	b := cmd.base()
	reason := PlainReason(text)
	b.resp.record().setStatus(StatusCanceled)
	outcomes := q.fireCancelCallbacks(b, CancelVerdict{verdict: verdict{reason: reason}})
	res.CommandLog = append(res.CommandLog, LogEntry{
		CommandID:   b.id,
		CommandName: commandName(cmd),
		Phase:       phase,
		Reason:      reason,
		Callbacks:   outcomes,
		TimestampMs: cage_time.Millis(q.clock.Now()),
	})
	res.NumCancellations++
	q.log.Warn("lifecycle hook panicked",
		cage_zap.Tag("queue", "shield"),
		zap.String("command", commandSummary(cmd)),
		zap.String("phase", string(phase)),
		zap.String("panic", text),
	)
}

func (q *CommandQueue) logOutcome(cmd Command, phase Phase, reason Reason) {
	fields := []zap.Field{
		cage_zap.Tag("queue"),
		zap.String("command", commandSummary(cmd)),
		zap.String("phase", string(phase)),
	}
	if reason != nil {
		fields = append(fields, zap.String("reason", reason.ReasonString()))
	}
	q.log.Debug("phase decided", fields...)
}

func (q *CommandQueue) recordTiming(name string, phase Phase, elapsed time.Duration) {
	if q.timingLen <= 0 {
		return
	}
	t, ok := q.timings[name]
	if !ok {
		t = newCommandTimings(q.timingLen)
		q.timings[name] = t
	}
	t.ring(phase).add(float64(elapsed) / float64(time.Millisecond))
}

// safeShouldDefer shields the queue from panics in the command's defer check.
func (q *CommandQueue) safeShouldDefer(cmd Command) (v DeferVerdict, panicMsg string, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicMsg = panicText(r)
			panicked = true
		}
	}()
	return cmd.ShouldDefer(), "", false
}

// safeShouldCancel shields the queue from panics in the command's cancel check.
func (q *CommandQueue) safeShouldCancel(cmd Command) (v CancelVerdict, panicMsg string, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicMsg = panicText(r)
			panicked = true
		}
	}()
	return cmd.ShouldCancel(), "", false
}

// safeExecute shields the queue from panics in the command's execute hook.
func (q *CommandQueue) safeExecute(cmd Command) (v ExecuteVerdict, panicMsg string, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicMsg = panicText(r)
			panicked = true
		}
	}()
	return cmd.Execute(), "", false
}

func (q *CommandQueue) fireDeferCallbacks(b *Base, v DeferVerdict) []CallbackOutcome {
	outcomes := make([]CallbackOutcome, 0, len(b.onDefer))
	for _, cb := range b.onDefer {
		cb := cb
		outcomes = append(outcomes, q.fireCallback(callbackName(cb), func() { cb(v) }))
	}
	return outcomes
}

func (q *CommandQueue) fireCancelCallbacks(b *Base, v CancelVerdict) []CallbackOutcome {
	outcomes := make([]CallbackOutcome, 0, len(b.onCancel))
	for _, cb := range b.onCancel {
		cb := cb
		outcomes = append(outcomes, q.fireCallback(callbackName(cb), func() { cb(v) }))
	}
	return outcomes
}

func (q *CommandQueue) fireExecuteCallbacks(b *Base, v ExecuteVerdict) []CallbackOutcome {
	outcomes := make([]CallbackOutcome, 0, len(b.onExecute))
	for _, cb := range b.onExecute {
		cb := cb
		outcomes = append(outcomes, q.fireCallback(callbackName(cb), func() { cb(v) }))
	}
	return outcomes
}

// fireCallback invokes one user callback, quarantining any panic.
func (q *CommandQueue) fireCallback(name string, f func()) (outcome CallbackOutcome) {
	outcome = CallbackOutcome{Name: name}
	defer func() {
		if r := recover(); r != nil {
			outcome.Errored = true
			q.log.Warn("callback panicked",
				cage_zap.Tag("queue", "shield"),
				zap.String("callback", name),
				zap.String("panic", panicText(r)),
			)
		}
	}()
	f()
	return outcome
}
