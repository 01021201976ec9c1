// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/ledger"
	"github.com/stratforge-ai/stratforge/services/backend/observability"
)

// maxWebhookBody bounds how much of a webhook body we will read. The
// payment processor's payloads are small; anything larger is hostile.
const maxWebhookBody = 1 << 20

// webhookPayload is the envelope the payment processor delivers.
type webhookPayload struct {
	AccountID string                 `json:"account_id"`
	Event     datatypes.BillingEvent `json:"event"`
}

// BillingWebhook handles payment and subscription webhooks.
//
// The signature is verified over the raw body before any parsing. On
// internal failure the handler returns 5xx so the processor redelivers;
// the event-id dedup in the ledger makes redelivery safe.
func BillingWebhook(proc *ledger.Processor, secret []byte, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		if err := ledger.VerifySignature(secret, body, c.GetHeader(ledger.SignatureHeader)); err != nil {
			slog.Warn("rejected unverified webhook", "remote", c.ClientIP(), "error", err)
			metrics.ObserveWebhookEvent("unverified")
			respondError(c, err)
			return
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			metrics.ObserveWebhookEvent("malformed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
			return
		}
		if payload.AccountID == "" || payload.Event.ID == "" {
			metrics.ObserveWebhookEvent("malformed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id and event.event_id are required"})
			return
		}

		outcome, err := proc.ApplyEvent(c.Request.Context(), payload.AccountID, payload.Event)
		if err != nil {
			slog.Error("webhook processing failed", "event_id", payload.Event.ID, "error", err)
			metrics.ObserveWebhookEvent("error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			return
		}

		metrics.ObserveWebhookEvent(string(outcome))
		c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
	}
}
