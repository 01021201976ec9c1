// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the backend service.
//
// The auth middleware extracts a bearer token from the Authorization
// header, resolves it through the configured auth.Provider, and stores the
// account identity in the Gin context for downstream handlers. Webhook
// routes do not use it; they authenticate by payload signature instead.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stratforge-ai/stratforge/services/backend/auth"
)

// accountInfoKey is the context key for the resolved account identity.
const accountInfoKey = "stratforge_account_info"

// SetAccountInfo stores the authenticated account in the Gin context.
// Called by AuthMiddleware after successful resolution.
func SetAccountInfo(c *gin.Context, info *auth.AccountInfo) {
	c.Set(accountInfoKey, info)
}

// GetAccountID returns the authenticated account id, or "" when the
// request is not authenticated.
func GetAccountID(c *gin.Context) string {
	if v, exists := c.Get(accountInfoKey); exists {
		if info, ok := v.(*auth.AccountInfo); ok && info != nil {
			return info.AccountID
		}
	}
	return ""
}

// AuthMiddleware creates a Gin middleware that authenticates requests
// against the provider. Unresolvable tokens abort with 401; handlers
// behind it can rely on GetAccountID being non-empty.
func AuthMiddleware(provider auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		info, err := provider.Resolve(c.Request.Context(), token)
		if err != nil || info == nil || info.AccountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetAccountInfo(c, info)
		c.Next()
	}
}

// extractBearerToken parses "Authorization: Bearer <token>". Returns ""
// when the header is missing or malformed. The "Bearer" prefix is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
