// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	storage "github.com/stratforge-ai/stratforge/services/backend/storage/badger"
)

// newTestKV opens an in-memory database for one test.
func newTestKV(t *testing.T) *KV {
	t.Helper()

	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return NewKV(db)
}
