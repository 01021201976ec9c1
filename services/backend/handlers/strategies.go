// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratforge-ai/stratforge/pkg/validation"
	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/jobs"
	"github.com/stratforge-ai/stratforge/services/backend/ledger"
	"github.com/stratforge-ai/stratforge/services/backend/middleware"
	"github.com/stratforge-ai/stratforge/services/backend/observability"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

// IdempotencyKeyHeader carries the client-supplied key that makes
// coin-gated re-analysis replay-safe.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// SubmitStrategy accepts a strategy payload and creates a generation job.
// The response is an immediate acknowledgment; generation is asynchronous
// and the client polls GetStrategy.
func SubmitStrategy(orc *jobs.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := middleware.GetAccountID(c)

		var payload datatypes.StrategyPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
			return
		}
		if err := validation.ValidateSymbols(payload.Markets); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		job, err := orc.Submit(c.Request.Context(), accountID, payload)
		if err != nil {
			slog.Error("strategy submission failed", "account_id", accountID, "error", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, job)
	}
}

// GetStrategy returns the job's current state and result.
func GetStrategy(orc *jobs.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := orc.Get(c.Request.Context(), middleware.GetAccountID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// RetryStrategy re-runs generation for a job in error state.
func RetryStrategy(orc *jobs.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := orc.Retry(c.Request.Context(), middleware.GetAccountID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// reanalyzeRequest is the optional body of a re-analysis request.
type reanalyzeRequest struct {
	// EditedCode is the user's hand-edited version of the generated code.
	// When present, the diff against the stored version is summarized into
	// the refinement request.
	EditedCode string `json:"edited_code"`
}

// ReanalyzeStrategy is the coin-gated refinement endpoint.
//
// The debit and the job creation share the client idempotency key, scoped
// to the account, so a replayed request neither double-debits nor
// double-submits, and two accounts using the same key never collide.
func ReanalyzeStrategy(orc *jobs.Orchestrator, guard *ledger.Guard, coinCost int64, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := middleware.GetAccountID(c)

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": IdempotencyKeyHeader + " header is required"})
			return
		}

		var req reanalyzeRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
				return
			}
		}

		source, err := orc.Get(c.Request.Context(), accountID, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		balance, err := guard.Debit(c.Request.Context(), accountID, coinCost, "reanalyze:"+accountID+":"+key)
		if err != nil {
			metrics.ObserveCoinDebit("insufficient_funds")
			respondError(c, err)
			return
		}
		metrics.ObserveCoinDebit("ok")

		job, err := orc.Reanalyze(c.Request.Context(), source, req.EditedCode, key)
		if err != nil {
			slog.Error("re-analysis submission failed", "account_id", accountID, "source_job", source.ID, "error", err)
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"job":          job,
			"coin_balance": balance,
		})
	}
}

// ListVersions returns the retained code versions of the job's lineage,
// oldest first.
func ListVersions(orc *jobs.Orchestrator, versions *store.VersionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := orc.Get(c.Request.Context(), middleware.GetAccountID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		lineage := job.ID
		if job.ParentID != "" {
			lineage = job.ParentID
		}
		list, err := versions.List(c.Request.Context(), lineage)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": list})
	}
}
