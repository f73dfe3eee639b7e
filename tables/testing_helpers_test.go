// Copyright 2024 The chainstore Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package tables

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-chainstore/chainstore/internal/mmapfile"
)

func newTestFile(t *testing.T, name string) *mmapfile.File {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, mmapfile.CreateEmpty(path))
	mf, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mf.Close() })
	return mf
}
