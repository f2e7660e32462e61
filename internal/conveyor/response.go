// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package conveyor

// ResponseStatus identifies where a command is in its lifecycle.
type ResponseStatus string

const (
	// StatusCreated indicates the command has been constructed but never popped from a queue.
	StatusCreated ResponseStatus = "created"

	// StatusPending indicates the command deferred (or was deferred by a dependency) and
	// waits for another processing round.
	StatusPending ResponseStatus = "pending"

	// StatusCanceled indicates the command ended without executing: by its own cancel
	// check, by a panic in its defer or cancel check, or by its dependency check (a
	// dependency ended in CANCELED/FAILED, or an OnCreated/OnPending policy of cancel).
	StatusCanceled ResponseStatus = "canceled"

	// StatusFailed indicates the command executed and reported failure, or its execute
	// hook panicked.
	StatusFailed ResponseStatus = "failed"

	// StatusCompleted indicates the command executed successfully.
	StatusCompleted ResponseStatus = "completed"
)

// Terminal returns true if no further status transition is possible.
func (s ResponseStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusFailed || s == StatusCompleted
}

// Response is the record a command owns for its lifetime. Submitters receive a stable
// reference from CommandQueue.Submit so they can observe updates after processing.
//
// Command implementations define their own response types by embedding ResponseRecord and
// adding payload fields.
type Response interface {
	// Status returns the command's current lifecycle status.
	Status() ResponseStatus

	record() *ResponseRecord
}

// ResponseRecord holds the lifecycle status shared by all response types.
//
// Embed it (by value) in a command-specific response struct.
type ResponseRecord struct {
	status ResponseStatus
}

// Status returns the command's current lifecycle status.
func (r *ResponseRecord) Status() ResponseStatus {
	return r.status
}

func (r *ResponseRecord) record() *ResponseRecord {
	return r
}

// setStatus writes a new status unless a terminal status was already reached.
func (r *ResponseRecord) setStatus(s ResponseStatus) {
	if r.status.Terminal() {
		return
	}
	r.status = s
}

var _ Response = (*ResponseRecord)(nil)
