// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

func TestLedgerStore_LazyAccountDefault(t *testing.T) {
	s := NewLedgerStore(newTestKV(t), nil)
	ctx := context.Background()

	acct, err := s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, datatypes.PlanFree, acct.Plan)
	require.Zero(t, acct.CoinBalance)

	// The default is not persisted by a read: a later write starts from the
	// same lazy state.
	err = s.Update(ctx, func(tx *LedgerTxn) error {
		a, err := tx.Account("acct-1")
		if err != nil {
			return err
		}
		a.CoinBalance = 7
		return tx.PutAccount(a)
	})
	require.NoError(t, err)

	acct, err = s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 7, acct.CoinBalance)
}

func TestLedgerStore_PutAccountRejectsNegativeBalance(t *testing.T) {
	s := NewLedgerStore(newTestKV(t), nil)

	err := s.Update(context.Background(), func(tx *LedgerTxn) error {
		return tx.PutAccount(&datatypes.LedgerAccount{ID: "acct-1", Plan: datatypes.PlanFree, CoinBalance: -1})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "negative coin balance")
}

func TestLedgerStore_EventDedup(t *testing.T) {
	s := NewLedgerStore(newTestKV(t), nil)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *LedgerTxn) error {
		applied, err := tx.EventApplied("evt-1")
		require.NoError(t, err)
		require.False(t, applied)
		return tx.PutEvent("evt-1", "coins+=5")
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *LedgerTxn) error {
		applied, err := tx.EventApplied("evt-1")
		require.NoError(t, err)
		require.True(t, applied)
		return nil
	})
	require.NoError(t, err)
}

func TestLedgerStore_TransactionRecord(t *testing.T) {
	s := NewLedgerStore(newTestKV(t), nil)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *LedgerTxn) error {
		_, seen, err := tx.Transaction("tx-1")
		require.NoError(t, err)
		require.False(t, seen)
		return tx.PutTransaction(&datatypes.Transaction{
			ID:               "tx-1",
			AccountID:        "acct-1",
			Amount:           2,
			ResultingBalance: 3,
		})
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *LedgerTxn) error {
		rec, seen, err := tx.Transaction("tx-1")
		require.NoError(t, err)
		require.True(t, seen)
		require.EqualValues(t, 3, rec.ResultingBalance)
		require.False(t, rec.ProcessedAt.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestLedgerStore_NotificationsLimit(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	now := func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	s := NewLedgerStore(newTestKV(t), now)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		err := s.Update(ctx, func(tx *LedgerTxn) error {
			return tx.AppendNotification("acct-1", "plan_change", msg)
		})
		require.NoError(t, err)
	}

	all, err := s.ListNotifications(ctx, "acct-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "one", all[0].Message)

	// Limit keeps the newest entries.
	last, err := s.ListNotifications(ctx, "acct-1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.Equal(t, "two", last[0].Message)
	require.Equal(t, "three", last[1].Message)
}

func TestLedgerStore_StampReanalyzeCoversAccountJobs(t *testing.T) {
	kv := newTestKV(t)
	jobs := NewJobStore(kv, nil)
	ledger := NewLedgerStore(kv, nil)
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-2"} {
		_, _, err := jobs.Create(ctx, newJob(id, "acct-1"))
		require.NoError(t, err)
	}
	_, _, err := jobs.Create(ctx, newJob("job-3", "acct-2"))
	require.NoError(t, err)

	at := time.Now().Add(24 * time.Hour).Unix()
	err = ledger.Update(ctx, func(tx *LedgerTxn) error {
		return tx.StampReanalyze("acct-1", at)
	})
	require.NoError(t, err)

	for _, id := range []string{"job-1", "job-2"} {
		job, err := jobs.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, at, job.ReanalyzeAt)
	}
	other, err := jobs.Get(ctx, "job-3")
	require.NoError(t, err)
	require.Zero(t, other.ReanalyzeAt)
}
