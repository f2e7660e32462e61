// Copyright (C) 2020 The conveyor Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Root command conveyor hosts the sub-commands which run and evaluate pipeline configs.
//
// Usage:
//
//	conveyor run --config /path/to/config
package root

import (
	"github.com/spf13/cobra"
)

// NewCommand returns the root cobra command instance.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conveyor",
		Short: "Run command pipelines through a cooperative execution queue",
	}
}
