// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "errors"

// Error taxonomy for the backend. Handlers map these to HTTP statuses;
// everything else surfaces as a 500.
var (
	// ErrUnauthorized is returned when a bearer credential cannot be
	// resolved to an account.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for unknown (or foreign-account) jobs.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not valid for the
	// job's current status, e.g. retry on a non-error job.
	ErrInvalidState = errors.New("invalid job state")

	// ErrInsufficientFunds is returned by the coin guard when the balance
	// cannot cover the requested debit. The balance is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnverifiedWebhook is returned when a webhook signature check
	// fails. The event is rejected before any processing.
	ErrUnverifiedWebhook = errors.New("webhook signature verification failed")

	// ErrUnclassifiedEvent marks a billing event whose purpose could not be
	// resolved against the product catalog. Such events are audit-only and
	// never mutate the ledger.
	ErrUnclassifiedEvent = errors.New("unclassified billing event")
)
