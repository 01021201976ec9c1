// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the backend service.
//
// Handlers are constructed with their dependencies and returned as
// gin.HandlerFunc values; routes wires them onto the router. Domain
// errors map to HTTP statuses in exactly one place (respondError).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// respondError translates the backend error taxonomy to HTTP.
//
// Generation failures never arrive here: they are captured in the Job
// record and surfaced on poll, not thrown to the submitting request.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, datatypes.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, datatypes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, datatypes.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, datatypes.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
	case errors.Is(err, datatypes.ErrUnverifiedWebhook):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unverified webhook"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
