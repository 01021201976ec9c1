// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger applies billing events to account state and gates
// coin-priced actions.
//
// Both entry points run synchronously on the request path. The payment
// processor redelivers webhooks on non-success responses, so event-id
// idempotency is mandatory: applying the same LedgerEvent.ID twice must
// yield the same ledger state as applying it once.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

// Conversion and clamping constants for coin purchases.
const (
	// CoinsPerUSD is the fixed exchange rate.
	CoinsPerUSD = 5

	// MinCoinUSD / MaxCoinUSD bound a single coin purchase. Amounts
	// outside the range are clamped, not rejected.
	MinCoinUSD = 1
	MaxCoinUSD = 5
)

// ProcessorConfig tunes the ledger processor.
type ProcessorConfig struct {
	// PlanDuration is how long a paid plan stays active. Default 30 days.
	PlanDuration time.Duration

	// ReanalyzeDelay is how far in the future plan purchases schedule a
	// re-analysis of the account's jobs. Default 24h.
	ReanalyzeDelay time.Duration
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.PlanDuration <= 0 {
		c.PlanDuration = 30 * 24 * time.Hour
	}
	if c.ReanalyzeDelay <= 0 {
		c.ReanalyzeDelay = 24 * time.Hour
	}
	return c
}

// Processor applies billing events idempotently.
type Processor struct {
	ledger  *store.LedgerStore
	catalog *Catalog
	cfg     ProcessorConfig
	logger  *slog.Logger
}

// NewProcessor creates a processor. logger may be nil (slog default).
func NewProcessor(ledger *store.LedgerStore, catalog *Catalog, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ledger:  ledger,
		catalog: catalog,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Outcome reports what ApplyEvent did with an event.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUnclassified Outcome = "unclassified"
)

// ApplyEvent applies one verified billing event for the account.
//
// Dedup check, effect, applied-event record, audit entry, and any job
// re-analysis stamps commit in a single store transaction; a redelivered
// event therefore either sees nothing applied or everything applied.
//
// Unclassifiable events are recorded in the audit trail and absorbed (nil
// error, OutcomeUnclassified): returning non-success would only provoke
// redelivery of an event that will never classify.
func (p *Processor) ApplyEvent(ctx context.Context, accountID string, ev datatypes.BillingEvent) (Outcome, error) {
	purpose, err := p.classify(ev)
	if err != nil {
		p.logger.Warn("billing event rejected as unclassified",
			"event_id", ev.ID,
			"product_id", ev.ProductID,
			"catalog_version", p.catalog.Version(),
		)
		return OutcomeUnclassified, p.auditRejection(ctx, accountID, ev)
	}

	outcome := OutcomeApplied
	err = p.ledger.Update(ctx, func(tx *store.LedgerTxn) error {
		applied, err := tx.EventApplied(ev.ID)
		if err != nil {
			return err
		}
		if applied {
			p.logger.Info("billing event already applied, skipping", "event_id", ev.ID)
			outcome = OutcomeDuplicate
			return nil
		}

		acct, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		before := fmt.Sprintf("plan=%s balance=%d expiry=%d", acct.Plan, acct.CoinBalance, acct.PlanExpiry)

		var effect string
		if plan, ok := purpose.Plan(); ok {
			effect, err = p.applyPlan(tx, acct, plan)
		} else {
			effect = p.applyCoins(acct, ev.AmountUSD)
		}
		if err != nil {
			return err
		}

		if err := tx.PutAccount(acct); err != nil {
			return err
		}
		if err := tx.PutEvent(ev.ID, effect); err != nil {
			return err
		}
		after := fmt.Sprintf("plan=%s balance=%d expiry=%d", acct.Plan, acct.CoinBalance, acct.PlanExpiry)
		if err := tx.AppendAudit(datatypes.AuditEntry{
			EventID:   ev.ID,
			AccountID: accountID,
			Action:    "apply:" + string(purpose),
			Before:    before,
			After:     after,
		}); err != nil {
			return err
		}

		p.logger.Info("billing event applied",
			"event_id", ev.ID,
			"account_id", accountID,
			"purpose", string(purpose),
			"effect", effect,
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// classify resolves the event's purpose: explicit tag first, then the
// versioned catalog by product ID. Nothing else — the legacy name-keyword
// and price-point heuristics were removed deliberately.
func (p *Processor) classify(ev datatypes.BillingEvent) (datatypes.Purpose, error) {
	if ev.PurposeTag != "" {
		tagged := datatypes.Purpose(ev.PurposeTag)
		switch tagged {
		case datatypes.PurposeFree, datatypes.PurposePro, datatypes.PurposeElite, datatypes.PurposeCoins:
			return tagged, nil
		}
		// An unknown tag falls through to the catalog rather than failing
		// outright; the processor occasionally ships new tags early.
	}
	if ev.ProductID != "" {
		if product, ok := p.catalog.Lookup(ev.ProductID); ok {
			return product.Purpose, nil
		}
	}
	return "", fmt.Errorf("%w: event %s (product %q)", datatypes.ErrUnclassifiedEvent, ev.ID, ev.ProductID)
}

// applyPlan sets the plan tier, expiry, notification, and re-analysis
// stamps for every job the account owns.
func (p *Processor) applyPlan(tx *store.LedgerTxn, acct *datatypes.LedgerAccount, plan datatypes.Plan) (string, error) {
	acct.Plan = plan
	if plan.Paid() {
		acct.PlanExpiry = tx.Now().Add(p.cfg.PlanDuration).Unix()
	} else {
		acct.PlanExpiry = 0
	}

	msg := fmt.Sprintf("Your %s plan is now active.", plan)
	if err := tx.AppendNotification(acct.ID, "plan_change", msg); err != nil {
		return "", err
	}

	reanalyzeAt := tx.Now().Add(p.cfg.ReanalyzeDelay).Unix()
	if err := tx.StampReanalyze(acct.ID, reanalyzeAt); err != nil {
		return "", err
	}

	return fmt.Sprintf("plan=%s expiry=%d", plan, acct.PlanExpiry), nil
}

// applyCoins clamps the USD amount to [MinCoinUSD, MaxCoinUSD], converts
// at the fixed rate to a whole coin count, and credits the balance.
func (p *Processor) applyCoins(acct *datatypes.LedgerAccount, amountUSD float64) string {
	clamped := math.Min(math.Max(amountUSD, MinCoinUSD), MaxCoinUSD)
	coins := int64(math.Floor(clamped * CoinsPerUSD))
	acct.CoinBalance += coins
	return fmt.Sprintf("coins+=%d (usd=%.2f clamped=%.2f)", coins, amountUSD, clamped)
}

// auditRejection records an unclassified event without touching the
// ledger. The event is NOT marked applied: if a later catalog version
// knows the product, a redelivery will classify and apply it.
func (p *Processor) auditRejection(ctx context.Context, accountID string, ev datatypes.BillingEvent) error {
	return p.ledger.Update(ctx, func(tx *store.LedgerTxn) error {
		return tx.AppendAudit(datatypes.AuditEntry{
			EventID:   ev.ID,
			AccountID: accountID,
			Action:    "reject:unclassified",
			Before:    fmt.Sprintf("product_id=%q product_name=%q amount_usd=%.2f catalog=%s", ev.ProductID, ev.ProductName, ev.AmountUSD, p.catalog.Version()),
		})
	})
}
