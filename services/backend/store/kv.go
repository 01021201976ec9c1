// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides typed access to the BadgerDB system of record.
//
// Key space:
//
//	job:<jobID>                 → datatypes.Job
//	jobacct:<accountID>:<jobID> → (empty, ownership index)
//	acct:<accountID>            → datatypes.LedgerAccount
//	levent:<eventID>            → datatypes.LedgerEvent
//	tx:<txID>                   → datatypes.Transaction
//	audit:<unixnano>:<eventID>  → datatypes.AuditEntry
//	notif:<accountID>:<unixnano>→ datatypes.Notification
//	ver:<jobID>:<seq>           → datatypes.CodeVersion (seq zero-padded)
//	verseq:<jobID>              → uint64 sequence counter
//
// Values are JSON. Multi-key mutations that must be atomic (ledger event
// application, coin debits, job transitions) run inside a single Badger
// read-write transaction via DB.WithTxn.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	storage "github.com/stratforge-ai/stratforge/services/backend/storage/badger"
)

// Key prefixes. Keep these stable: they are the on-disk schema.
const (
	prefixJob      = "job:"
	prefixJobAcct  = "jobacct:"
	prefixAccount  = "acct:"
	prefixEvent    = "levent:"
	prefixTx       = "tx:"
	prefixAudit    = "audit:"
	prefixNotif    = "notif:"
	prefixVersion  = "ver:"
	prefixVerSeq   = "verseq:"
	keyFieldJoiner = ":"
)

func jobKey(id string) []byte { return []byte(prefixJob + id) }

func jobAcctKey(accountID, jobID string) []byte {
	return []byte(prefixJobAcct + accountID + keyFieldJoiner + jobID)
}

func accountKey(id string) []byte { return []byte(prefixAccount + id) }
func eventKey(id string) []byte   { return []byte(prefixEvent + id) }
func txKey(id string) []byte      { return []byte(prefixTx + id) }

func versionKey(jobID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d", prefixVersion, jobID, keyFieldJoiner, seq))
}

func versionSeqKey(jobID string) []byte { return []byte(prefixVerSeq + jobID) }

func auditKey(atNano int64, eventID string) []byte {
	return []byte(fmt.Sprintf("%s%020d%s%s", prefixAudit, atNano, keyFieldJoiner, eventID))
}

func notifKey(accountID string, atNano int64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d", prefixNotif, accountID, keyFieldJoiner, atNano))
}

func jobAcctPrefix(accountID string) []byte {
	return []byte(prefixJobAcct + accountID + keyFieldJoiner)
}

func notifPrefix(accountID string) []byte {
	return []byte(prefixNotif + accountID + keyFieldJoiner)
}

func versionPrefix(jobID string) []byte {
	return []byte(prefixVersion + jobID + keyFieldJoiner)
}

// getJSON reads key into out. Returns badger.ErrKeyNotFound when absent.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals v and writes it under key.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// exists reports whether key is present.
func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return true, nil
	}
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return false, err
}

// scanPrefix iterates all key/value pairs under prefix in key order,
// invoking fn for each. fn errors stop the scan.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

// KV bundles the managed database for the typed stores. It also exposes
// batch writes for bulk maintenance paths (e.g. version pruning).
type KV struct {
	db *storage.DB
}

// NewKV wraps a managed database.
func NewKV(db *storage.DB) *KV {
	return &KV{db: db}
}

// Update runs fn in a read-write transaction.
func (k *KV) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return k.db.WithTxn(ctx, fn)
}

// View runs fn in a read-only transaction.
func (k *KV) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return k.db.WithReadTxn(ctx, fn)
}

// BatchDelete removes keys outside transactional conflict tracking. Used
// for maintenance deletes where last-writer-wins is acceptable.
func (k *KV) BatchDelete(keys [][]byte) error {
	wb := k.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("batch delete %s: %w", key, err)
		}
	}
	return wb.Flush()
}
