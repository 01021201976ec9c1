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
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// JobStore persists generation jobs and the per-account ownership index.
//
// All status changes go through Transition, which enforces the allowed
// edge set inside a single read-write transaction. That makes the state
// machine the store's invariant rather than a caller convention.
type JobStore struct {
	kv  *KV
	now func() time.Time
}

// NewJobStore creates a job store. now is injectable for tests; nil means
// time.Now.
func NewJobStore(kv *KV, now func() time.Time) *JobStore {
	if now == nil {
		now = time.Now
	}
	return &JobStore{kv: kv, now: now}
}

// Create persists a new job and its ownership index entry. If a job with
// the same ID already exists, the existing job is returned unchanged and
// created is false. That upsert guard is what makes re-analysis submission
// replay-safe: job IDs derived from idempotency keys collide on replay.
func (s *JobStore) Create(ctx context.Context, job *datatypes.Job) (stored *datatypes.Job, created bool, err error) {
	err = s.kv.Update(ctx, func(txn *badger.Txn) error {
		var existing datatypes.Job
		getErr := getJSON(txn, jobKey(job.ID), &existing)
		if getErr == nil {
			stored = &existing
			return nil
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		now := s.now().UTC()
		job.CreatedAt = now
		job.UpdatedAt = now
		if err := setJSON(txn, jobKey(job.ID), job); err != nil {
			return err
		}
		if err := txn.Set(jobAcctKey(job.AccountID, job.ID), nil); err != nil {
			return err
		}
		stored = job
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return stored, created, nil
}

// Get returns the job by ID, or datatypes.ErrNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (*datatypes.Job, error) {
	var job datatypes.Job
	err := s.kv.View(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, jobKey(id), &job)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, datatypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// GetOwned returns the job only when it belongs to accountID. Foreign jobs
// are indistinguishable from missing ones (ErrNotFound), so job IDs do not
// leak across accounts.
func (s *JobStore) GetOwned(ctx context.Context, accountID, id string) (*datatypes.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, datatypes.ErrNotFound
	}
	return job, nil
}

// Transition atomically moves the job from status `from` to status `to`,
// applying mutate (may be nil) to the job in between. Returns
// datatypes.ErrInvalidState when the job is not in `from` or when the edge
// is not on the allowed set, and datatypes.ErrNotFound for unknown jobs.
//
// Overlapping callers serialize on the Badger transaction: the loser of a
// conflicting commit retries its read and then observes the wrong status.
func (s *JobStore) Transition(ctx context.Context, id string, from, to datatypes.JobStatus, mutate func(*datatypes.Job)) (*datatypes.Job, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s is not an allowed edge", datatypes.ErrInvalidState, from, to)
	}

	var updated datatypes.Job
	op := func(txn *badger.Txn) error {
		var job datatypes.Job
		if err := getJSON(txn, jobKey(id), &job); err != nil {
			return err
		}
		if job.Status != from {
			return fmt.Errorf("%w: job %s is %s, want %s", datatypes.ErrInvalidState, id, job.Status, from)
		}
		job.Status = to
		if mutate != nil {
			mutate(&job)
		}
		job.UpdatedAt = s.now().UTC()
		updated = job
		return setJSON(txn, jobKey(id), &job)
	}

	err := s.kv.Update(ctx, op)
	if errors.Is(err, badger.ErrConflict) {
		// One retry after a conflicting concurrent transition. The re-read
		// status decides whether we still hold a valid edge.
		err = s.kv.Update(ctx, op)
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, datatypes.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Mutate applies fn to the job while it remains in the expected status,
// without changing the status. Used by the retry loop to record attempt
// failures while the job stays in "generating". Returns ErrInvalidState
// when the status no longer matches.
func (s *JobStore) Mutate(ctx context.Context, id string, expect datatypes.JobStatus, fn func(*datatypes.Job)) (*datatypes.Job, error) {
	var updated datatypes.Job
	err := s.kv.Update(ctx, func(txn *badger.Txn) error {
		var job datatypes.Job
		if err := getJSON(txn, jobKey(id), &job); err != nil {
			return err
		}
		if job.Status != expect {
			return fmt.Errorf("%w: job %s is %s, want %s", datatypes.ErrInvalidState, id, job.Status, expect)
		}
		fn(&job)
		job.UpdatedAt = s.now().UTC()
		updated = job
		return setJSON(txn, jobKey(id), &job)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, datatypes.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListIDsByAccount returns the IDs of all jobs owned by accountID, in key
// order.
func (s *JobStore) ListIDsByAccount(ctx context.Context, accountID string) ([]string, error) {
	prefix := jobAcctPrefix(accountID)
	var ids []string
	err := s.kv.View(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(key, _ []byte) error {
			ids = append(ids, string(key[len(prefix):]))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs for account %s: %w", accountID, err)
	}
	return ids, nil
}

// ListByStatus returns every job whose status is one of the given
// statuses, in key order. This walks all job records; it exists for the
// startup recovery sweep, not for request paths.
func (s *JobStore) ListByStatus(ctx context.Context, statuses ...datatypes.JobStatus) ([]*datatypes.Job, error) {
	want := make(map[datatypes.JobStatus]bool, len(statuses))
	for _, status := range statuses {
		want[status] = true
	}

	var out []*datatypes.Job
	err := s.kv.View(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixJob), func(_, val []byte) error {
			var job datatypes.Job
			if err := json.Unmarshal(val, &job); err != nil {
				return err
			}
			if want[job.Status] {
				out = append(out, &job)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return out, nil
}

// stampReanalyzeAt sets ReanalyzeAt on every job owned by accountID,
// within the caller's transaction. Used by the ledger processor on plan
// purchase so the stamp commits atomically with the ledger mutation.
func stampReanalyzeAt(txn *badger.Txn, accountID string, at int64, now time.Time) error {
	prefix := jobAcctPrefix(accountID)
	return scanPrefix(txn, prefix, func(key, _ []byte) error {
		jobID := string(key[len(prefix):])
		var job datatypes.Job
		if err := getJSON(txn, jobKey(jobID), &job); err != nil {
			return err
		}
		job.ReanalyzeAt = at
		job.UpdatedAt = now
		return setJSON(txn, jobKey(jobID), &job)
	})
}
