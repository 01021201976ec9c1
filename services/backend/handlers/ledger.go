// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stratforge-ai/stratforge/services/backend/middleware"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

// GetCoins returns the account's coin balance.
func GetCoins(ledgerStore *store.LedgerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, err := ledgerStore.GetAccount(c.Request.Context(), middleware.GetAccountID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"coin_balance": acct.CoinBalance})
	}
}

// GetSubscription returns the account's plan and expiry.
func GetSubscription(ledgerStore *store.LedgerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, err := ledgerStore.GetAccount(c.Request.Context(), middleware.GetAccountID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"plan":        acct.Plan,
			"plan_expiry": acct.PlanExpiry,
		})
	}
}

// ListNotifications returns the account's notifications, newest last.
// ?limit=N caps the result; default 50.
func ListNotifications(ledgerStore *store.LedgerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		notifs, err := ledgerStore.ListNotifications(c.Request.Context(), middleware.GetAccountID(c), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": notifs})
	}
}
