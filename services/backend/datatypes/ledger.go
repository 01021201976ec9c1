// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Plan is a subscription tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanPro   Plan = "pro"
	PlanElite Plan = "elite"
)

// Paid reports whether the plan tier carries an expiry.
func (p Plan) Paid() bool {
	return p == PlanPro || p == PlanElite
}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanElite:
		return true
	}
	return false
}

// Purpose classifies what a billing event pays for.
type Purpose string

const (
	PurposeFree  Purpose = "free"
	PurposePro   Purpose = "pro"
	PurposeElite Purpose = "elite"
	PurposeCoins Purpose = "coins"
)

// Plan maps a plan purpose to its plan tier. Returns false for coins.
func (p Purpose) Plan() (Plan, bool) {
	switch p {
	case PurposeFree:
		return PlanFree, true
	case PurposePro:
		return PlanPro, true
	case PurposeElite:
		return PlanElite, true
	}
	return "", false
}

// LedgerAccount is the durable plan/coin state for one account.
//
// Accounts are created lazily on the first billing event or debit and are
// never deleted. CoinBalance must never go negative; the coin guard is the
// only writer allowed to decrement it.
type LedgerAccount struct {
	ID          string    `json:"id"`
	Plan        Plan      `json:"plan"`
	CoinBalance int64     `json:"coin_balance"`
	PlanExpiry  int64     `json:"plan_expiry,omitempty"` // unix seconds, 0 = none
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BillingEvent is a verified payment-processor webhook payload.
//
// ID is the external event identifier and the sole de-duplication signal:
// the processor applies each ID at most once regardless of redelivery.
type BillingEvent struct {
	ID string `json:"event_id" binding:"required"`

	// PurposeTag is the explicit classification supplied by the processor,
	// when present. Takes precedence over catalog lookup.
	PurposeTag string `json:"purpose,omitempty"`

	// ProductID is matched against the versioned product catalog.
	ProductID string `json:"product_id,omitempty"`

	// ProductName is informational only. It is retained in the audit trail
	// but never used for classification.
	ProductName string `json:"product_name,omitempty"`

	// AmountUSD is the purchase amount. For coin events it is clamped to
	// the [1,5] range before conversion.
	AmountUSD float64 `json:"amount_usd,omitempty"`
}

// LedgerEvent records that a billing event has been applied. Immutable.
type LedgerEvent struct {
	ID        string    `json:"id"`
	AppliedAt time.Time `json:"applied_at"`
	Effect    string    `json:"effect"`
}

// Transaction records an applied coin debit, keyed by the caller-supplied
// idempotency key. Immutable; a replayed debit returns ResultingBalance
// without debiting again.
type Transaction struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	Amount           int64     `json:"amount"`
	ProcessedAt      time.Time `json:"processed_at"`
	ResultingBalance int64     `json:"resulting_balance"`
}

// AuditEntry pairs every ledger mutation (or rejected event) with a
// before/after record. Append-only.
type AuditEntry struct {
	EventID   string    `json:"event_id"`
	AccountID string    `json:"account_id,omitempty"`
	Action    string    `json:"action"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	At        time.Time `json:"at"`
}

// Notification is a user-facing message emitted by the ledger processor,
// e.g. on plan activation. Stored in the KV store; surfaced via the API.
type Notification struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
