// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	cage_shell "github.com/codeactual/conveyor/internal/cage/shell"
)

func TestParse(t *testing.T) {
	args, err := cage_shell.Parse("go test -run TestParse ./...")
	require.NoError(t, err)
	require.Exactly(t, []string{"go", "test", "-run", "TestParse", "./..."}, args)
}

func TestParseQuoted(t *testing.T) {
	args, err := cage_shell.Parse(`sh -c "echo hello world"`)
	require.NoError(t, err)
	require.Exactly(t, []string{"sh", "-c", "echo hello world"}, args)
}

func TestParseEnvExpansion(t *testing.T) {
	require.NoError(t, os.Setenv("cage_shell_test_subject", "subject.txt"))
	defer func() {
		require.NoError(t, os.Unsetenv("cage_shell_test_subject"))
	}()

	args, err := cage_shell.Parse("cat $cage_shell_test_subject")
	require.NoError(t, err)
	require.Exactly(t, []string{"cat", "subject.txt"}, args)
}

func TestParseEmpty(t *testing.T) {
	_, err := cage_shell.Parse("   ")
	require.Error(t, err)
}
