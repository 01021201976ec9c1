// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// DefaultVersionRetention is how many code versions are kept per job.
const DefaultVersionRetention = 10

// VersionStore keeps the append-only, bounded code-version history per job.
//
// The sequence counter survives pruning, so a version's Seq is stable even
// after older versions fall out of the retention window.
type VersionStore struct {
	kv     *KV
	retain int
	now    func() time.Time
}

// NewVersionStore creates a version store keeping the most recent `retain`
// versions per job (<= 0 selects DefaultVersionRetention). now is
// injectable for tests; nil means time.Now.
func NewVersionStore(kv *KV, retain int, now func() time.Time) *VersionStore {
	if retain <= 0 {
		retain = DefaultVersionRetention
	}
	if now == nil {
		now = time.Now
	}
	return &VersionStore{kv: kv, retain: retain, now: now}
}

// Latest returns the most recent version for the job, or nil when the job
// has no versions yet.
func (s *VersionStore) Latest(ctx context.Context, jobID string) (*datatypes.CodeVersion, error) {
	versions, err := s.List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[len(versions)-1], nil
}

// List returns the retained versions for the job, oldest first.
func (s *VersionStore) List(ctx context.Context, jobID string) ([]datatypes.CodeVersion, error) {
	var out []datatypes.CodeVersion
	err := s.kv.View(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, versionPrefix(jobID), func(_, val []byte) error {
			var v datatypes.CodeVersion
			if err := json.Unmarshal(val, &v); err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list versions for job %s: %w", jobID, err)
	}
	return out, nil
}

// Append writes a new version with the given content and diff summary,
// then prunes history beyond the retention bound. Returns the stored
// version.
func (s *VersionStore) Append(ctx context.Context, jobID, content string, diff datatypes.DiffSummary) (*datatypes.CodeVersion, error) {
	var stored datatypes.CodeVersion
	err := s.kv.Update(ctx, func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, versionSeqKey(jobID))
		if err != nil {
			return err
		}

		stored = datatypes.CodeVersion{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Seq:       seq,
			Content:   content,
			Diff:      diff,
			CreatedAt: s.now().UTC(),
		}
		if err := setJSON(txn, versionKey(jobID, seq), &stored); err != nil {
			return err
		}

		// Collect keys that fall outside the retention window. Deleting in
		// the same transaction keeps List consistent with the bound.
		var keys [][]byte
		if err := scanPrefix(txn, versionPrefix(jobID), func(key, _ []byte) error {
			keys = append(keys, key)
			return nil
		}); err != nil {
			return err
		}
		if excess := len(keys) - s.retain; excess > 0 {
			for _, key := range keys[:excess] {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append version for job %s: %w", jobID, err)
	}
	return &stored, nil
}

// nextSeq increments and returns the per-job sequence counter.
func nextSeq(txn *badger.Txn, key []byte) (uint64, error) {
	var seq uint64
	item, err := txn.Get(key)
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			parsed, perr := strconv.ParseUint(string(val), 10, 64)
			if perr != nil {
				return perr
			}
			seq = parsed
			return nil
		})
		if err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
		seq = 0
	default:
		return 0, err
	}

	seq++
	if err := txn.Set(key, []byte(strconv.FormatUint(seq, 10))); err != nil {
		return 0, err
	}
	return seq, nil
}
