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
	"log/slog"
	"sync"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

// Guard is the single gate in front of every coin-priced action.
//
// Debits for one account are serialized by a per-account mutex, so two
// coincident debits cannot both pass the balance check. The balance write
// and the transaction record commit in one store transaction, so a crash
// cannot separate them.
type Guard struct {
	ledger *store.LedgerStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates a coin guard. logger may be nil (slog default).
func NewGuard(ledger *store.LedgerStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		ledger: ledger,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing writes for one account.
// Locks are never evicted; the population is bounded by active accounts.
func (g *Guard) accountLock(accountID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[accountID] = lock
	}
	return lock
}

// Debit atomically checks and deducts amount coins from the account.
//
// txID is the caller-supplied idempotency key: a replayed txID returns the
// originally recorded resulting balance without debiting again. A txID
// recorded for a different account is rejected rather than replayed, so a
// key collision cannot leak one account's balance to another. A balance
// below amount fails with datatypes.ErrInsufficientFunds and changes
// nothing.
func (g *Guard) Debit(ctx context.Context, accountID string, amount int64, txID string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if txID == "" {
		return 0, fmt.Errorf("transaction id is required")
	}

	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	var balance int64
	err := g.ledger.Update(ctx, func(tx *store.LedgerTxn) error {
		prior, seen, err := tx.Transaction(txID)
		if err != nil {
			return err
		}
		if seen {
			if prior.AccountID != accountID {
				return fmt.Errorf("%w: transaction %s was recorded for a different account", datatypes.ErrInvalidState, txID)
			}
			g.logger.Info("debit replayed, returning recorded balance",
				"account_id", accountID, "tx_id", txID, "balance", prior.ResultingBalance)
			balance = prior.ResultingBalance
			return nil
		}

		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		if acct.CoinBalance < amount {
			return fmt.Errorf("%w: balance %d, need %d", datatypes.ErrInsufficientFunds, acct.CoinBalance, amount)
		}

		acct.CoinBalance -= amount
		balance = acct.CoinBalance

		if err := tx.PutAccount(acct); err != nil {
			return err
		}
		if err := tx.PutTransaction(&datatypes.Transaction{
			ID:               txID,
			AccountID:        accountID,
			Amount:           amount,
			ResultingBalance: balance,
		}); err != nil {
			return err
		}
		return tx.AppendAudit(datatypes.AuditEntry{
			EventID:   txID,
			AccountID: accountID,
			Action:    "debit",
			Before:    fmt.Sprintf("balance=%d", balance+amount),
			After:     fmt.Sprintf("balance=%d", balance),
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
