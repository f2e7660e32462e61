// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	cage_gob "github.com/codeactual/conveyor/internal/cage/encoding/gob"
	cage_time "github.com/codeactual/conveyor/internal/cage/time"
)

// SessionVersion is included in the encoded Session file to support potential
// compatibility work.
const SessionVersion = 1

// Session is written to file after a run so results can be inspected later.
type Session struct {
	// Version is a copy of the SessionVersion constant when the Session value is created.
	Version int

	// Finished is the run's end date+time in format YYYYMMDD-HHMM.
	Finished string

	// Step holds one result per configured step.
	Step []StepResult
}

// NewSession converts a run result to its storable form.
func NewSession(clock cage_time.Clock, res Result) Session {
	return Session{
		Version:  SessionVersion,
		Finished: cage_time.Datetime(clock),
		Step:     res.Step,
	}
}

// WriteSession encodes the session to the file, replacing prior content.
func WriteSession(name string, s Session) error {
	return errors.WithStack(cage_gob.EncodeToFile(name, s))
}

// ReadSession decodes a session written by WriteSession.
func ReadSession(name string) (s Session, err error) {
	dec, err := cage_gob.DecodeFromFile(name)
	if err != nil {
		return Session{}, errors.WithStack(err)
	}
	if err = dec.Decode(&s); err != nil {
		return Session{}, errors.Wrapf(err, "failed to decode session file [%s]", name)
	}
	return s, nil
}

// FormatResult renders a run result for terminal output.
func FormatResult(res Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "processed %d command(s): %d succeeded, %d failed, %d canceled, %d deferred\n",
		res.Queue.NumCommandsProcessed,
		res.Queue.NumSuccesses,
		res.Queue.NumFailures,
		res.Queue.NumCancellations,
		res.Queue.NumDeferrals,
	)
	if res.Queue.ReachedMaxIterations {
		b.WriteString("stopped at the iteration bound with work remaining\n")
	}

	for _, step := range res.Step {
		fmt.Fprintf(&b, "  [%s] %s", step.Label, step.Status)
		if step.Reason != "" {
			fmt.Fprintf(&b, " (%s)", step.Reason)
		}
		b.WriteString("\n")
	}

	if len(res.Timing) > 0 {
		b.WriteString("timing (avg per phase):\n")

		names := make([]string, 0, len(res.Timing))
		for name := range res.Timing {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			stats := res.Timing[name]
			fmt.Fprintf(&b, "  [%s] defer %s, cancel %s, execute %s\n",
				name,
				avgShort(stats.ShouldDeferTiming.AvgElapsedMs),
				avgShort(stats.ShouldCancelTiming.AvgElapsedMs),
				avgShort(stats.ExecuteTiming.AvgElapsedMs),
			)
		}
	}

	return b.String()
}

func avgShort(ms float64) string {
	return cage_time.DurationShort(time.Duration(ms * float64(time.Millisecond)))
}
