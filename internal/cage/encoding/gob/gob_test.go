// Copyright (C) 2019 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gob_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cage_gob "github.com/codeactual/conveyor/internal/cage/encoding/gob"
)

type fixture struct {
	Name  string
	Count int
}

func TestEncodeDecodeFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "cage_gob")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, os.RemoveAll(dir))
	}()

	name := filepath.Join(dir, "fixture.gob")
	expected := fixture{Name: "subject", Count: 3}
	require.NoError(t, cage_gob.EncodeToFile(name, expected))

	dec, err := cage_gob.DecodeFromFile(name)
	require.NoError(t, err)

	var actual fixture
	require.NoError(t, dec.Decode(&actual))
	require.Exactly(t, expected, actual)
}

func TestDecodeFromFileMissing(t *testing.T) {
	_, err := cage_gob.DecodeFromFile(filepath.Join("testdata", "does_not_exist.gob"))
	require.Error(t, err)
}
