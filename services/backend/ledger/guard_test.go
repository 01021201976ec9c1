// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

func seedBalance(t *testing.T, ledgerStore *store.LedgerStore, accountID string, coins int64) {
	t.Helper()
	err := ledgerStore.Update(context.Background(), func(tx *store.LedgerTxn) error {
		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		acct.CoinBalance = coins
		return tx.PutAccount(acct)
	})
	require.NoError(t, err)
}

func TestGuard_Debit(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)
	seedBalance(t, ledgerStore, "acct-1", 10)

	balance, err := guard.Debit(context.Background(), "acct-1", 2, "tx-1")
	require.NoError(t, err)
	require.EqualValues(t, 8, balance)

	acct, err := ledgerStore.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 8, acct.CoinBalance)
}

func TestGuard_InsufficientFundsChangesNothing(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)
	seedBalance(t, ledgerStore, "acct-1", 1)

	_, err := guard.Debit(context.Background(), "acct-1", 2, "tx-1")
	require.ErrorIs(t, err, datatypes.ErrInsufficientFunds)

	acct, err := ledgerStore.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, acct.CoinBalance)

	// The failed attempt recorded no transaction, so a later retry with the
	// same id can still succeed once funds exist.
	seedBalance(t, ledgerStore, "acct-1", 5)
	balance, err := guard.Debit(context.Background(), "acct-1", 2, "tx-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, balance)
}

func TestGuard_ReplayedTxIDDebitsOnce(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)
	seedBalance(t, ledgerStore, "acct-1", 10)

	first, err := guard.Debit(context.Background(), "acct-1", 2, "tx-1")
	require.NoError(t, err)

	// Replay returns the recorded balance without debiting again.
	second, err := guard.Debit(context.Background(), "acct-1", 2, "tx-1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	acct, err := ledgerStore.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 8, acct.CoinBalance)
}

func TestGuard_ReplayFromAnotherAccountIsRejected(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)
	seedBalance(t, ledgerStore, "acct-1", 10)
	seedBalance(t, ledgerStore, "acct-2", 10)

	_, err := guard.Debit(context.Background(), "acct-1", 2, "tx-shared")
	require.NoError(t, err)

	// The recorded transaction belongs to acct-1. A different account
	// presenting the same id must not see acct-1's balance, and must not
	// be debited.
	_, err = guard.Debit(context.Background(), "acct-2", 2, "tx-shared")
	require.ErrorIs(t, err, datatypes.ErrInvalidState)

	acct, err := ledgerStore.GetAccount(context.Background(), "acct-2")
	require.NoError(t, err)
	require.EqualValues(t, 10, acct.CoinBalance)
}

func TestGuard_RejectsBadInput(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)

	_, err := guard.Debit(context.Background(), "acct-1", 0, "tx-1")
	require.Error(t, err)

	_, err = guard.Debit(context.Background(), "acct-1", -3, "tx-1")
	require.Error(t, err)

	_, err = guard.Debit(context.Background(), "acct-1", 1, "")
	require.Error(t, err)
}

func TestGuard_ConcurrentDebitsNeverOverspend(t *testing.T) {
	_, ledgerStore := newTestLedger(t)
	guard := NewGuard(ledgerStore, nil)
	seedBalance(t, ledgerStore, "acct-1", 5)

	const attempts = 20
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = guard.Debit(context.Background(), "acct-1", 1, fmt.Sprintf("tx-%d", i))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, datatypes.ErrInsufficientFunds)
			rejected++
		}
	}
	require.Equal(t, 5, succeeded)
	require.Equal(t, attempts-5, rejected)

	acct, err := ledgerStore.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Zero(t, acct.CoinBalance)
}
