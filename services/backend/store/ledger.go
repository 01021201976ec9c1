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
	"github.com/google/uuid"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// LedgerStore persists accounts, applied-event records, transactions,
// audit entries, and notifications.
//
// Mutations happen through Update, which hands the caller a LedgerTxn:
// every write enlisted on it commits in one Badger transaction. This is
// what closes the historical crash-between-writes gap between a balance
// update and its transaction record.
type LedgerStore struct {
	kv  *KV
	now func() time.Time
}

// NewLedgerStore creates a ledger store. now is injectable for tests; nil
// means time.Now.
func NewLedgerStore(kv *KV, now func() time.Time) *LedgerStore {
	if now == nil {
		now = time.Now
	}
	return &LedgerStore{kv: kv, now: now}
}

// LedgerTxn scopes ledger operations to a single atomic commit.
type LedgerTxn struct {
	txn *badger.Txn
	now time.Time
}

// Now is the single timestamp for every write in this transaction.
func (t *LedgerTxn) Now() time.Time { return t.now }

// Update runs fn against a LedgerTxn and commits when fn returns nil.
func (s *LedgerStore) Update(ctx context.Context, fn func(tx *LedgerTxn) error) error {
	return s.kv.Update(ctx, func(txn *badger.Txn) error {
		return fn(&LedgerTxn{txn: txn, now: s.now().UTC()})
	})
}

// View runs fn against a read-only LedgerTxn.
func (s *LedgerStore) View(ctx context.Context, fn func(tx *LedgerTxn) error) error {
	return s.kv.View(ctx, func(txn *badger.Txn) error {
		return fn(&LedgerTxn{txn: txn, now: s.now().UTC()})
	})
}

// GetAccount returns the account, or a fresh free-plan zero-balance
// account when none exists yet. Accounts are created lazily: the default
// is not persisted by a read.
func (s *LedgerStore) GetAccount(ctx context.Context, id string) (*datatypes.LedgerAccount, error) {
	var acct *datatypes.LedgerAccount
	err := s.View(ctx, func(tx *LedgerTxn) error {
		var err error
		acct, err = tx.Account(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListNotifications returns up to limit notifications for the account,
// newest last (key order is append order).
func (s *LedgerStore) ListNotifications(ctx context.Context, accountID string, limit int) ([]datatypes.Notification, error) {
	var out []datatypes.Notification
	err := s.kv.View(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, notifPrefix(accountID), func(_, val []byte) error {
			var n datatypes.Notification
			if err := json.Unmarshal(val, &n); err != nil {
				return err
			}
			out = append(out, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", accountID, err)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Account reads the account inside the transaction, defaulting lazily.
func (t *LedgerTxn) Account(id string) (*datatypes.LedgerAccount, error) {
	var acct datatypes.LedgerAccount
	err := getJSON(t.txn, accountKey(id), &acct)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &datatypes.LedgerAccount{
			ID:        id,
			Plan:      datatypes.PlanFree,
			CreatedAt: t.now,
			UpdatedAt: t.now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &acct, nil
}

// PutAccount writes the account. CoinBalance must be non-negative; this is
// the last line of defense for the ledger invariant.
func (t *LedgerTxn) PutAccount(acct *datatypes.LedgerAccount) error {
	if acct.CoinBalance < 0 {
		return fmt.Errorf("account %s: negative coin balance %d", acct.ID, acct.CoinBalance)
	}
	acct.UpdatedAt = t.now
	return setJSON(t.txn, accountKey(acct.ID), acct)
}

// EventApplied reports whether the billing event ID has been applied.
func (t *LedgerTxn) EventApplied(eventID string) (bool, error) {
	return exists(t.txn, eventKey(eventID))
}

// PutEvent records a billing event as applied. Immutable once written.
func (t *LedgerTxn) PutEvent(eventID, effect string) error {
	return setJSON(t.txn, eventKey(eventID), &datatypes.LedgerEvent{
		ID:        eventID,
		AppliedAt: t.now,
		Effect:    effect,
	})
}

// Transaction returns the stored debit record for txID, if any.
func (t *LedgerTxn) Transaction(txID string) (*datatypes.Transaction, bool, error) {
	var rec datatypes.Transaction
	err := getJSON(t.txn, txKey(txID), &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get transaction %s: %w", txID, err)
	}
	return &rec, true, nil
}

// PutTransaction records an applied debit. Immutable once written.
func (t *LedgerTxn) PutTransaction(rec *datatypes.Transaction) error {
	rec.ProcessedAt = t.now
	return setJSON(t.txn, txKey(rec.ID), rec)
}

// AppendAudit adds an audit entry keyed by transaction time and event id.
func (t *LedgerTxn) AppendAudit(entry datatypes.AuditEntry) error {
	entry.At = t.now
	return setJSON(t.txn, auditKey(t.now.UnixNano(), entry.EventID), &entry)
}

// AppendNotification stores a user-facing notification.
func (t *LedgerTxn) AppendNotification(accountID, kind, message string) error {
	n := datatypes.Notification{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      kind,
		Message:   message,
		CreatedAt: t.now,
	}
	return setJSON(t.txn, notifKey(accountID, t.now.UnixNano()), &n)
}

// StampReanalyze schedules a re-analysis timestamp on every job owned by
// the account, in the same commit as the ledger mutation.
func (t *LedgerTxn) StampReanalyze(accountID string, at int64) error {
	return stampReanalyzeAt(t.txn, accountID, at, t.now)
}
