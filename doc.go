// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conveyor contains sub-packages which provide the CLI commands, the command-execution
// engine (internal/conveyor) and the pipeline runner built on it (internal/pipeline), and the
// internal "standard library" (all other internal/*) which is automatically extracted from a
// private monorepo.
package conveyor

// expand godoc content for the base import path
import (
	_ "github.com/codeactual/conveyor/cmd/conveyor/eval"
	_ "github.com/codeactual/conveyor/cmd/conveyor/root"
	_ "github.com/codeactual/conveyor/cmd/conveyor/run"
	_ "github.com/codeactual/conveyor/internal/conveyor"
)
