// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/stratforge-ai/stratforge/services/backend/auth"
)

func newAuthRouter(t *testing.T, provider auth.Provider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account_id": GetAccountID(c)})
	})
	return router
}

func TestAuthMiddleware_ResolvesAccount(t *testing.T) {
	provider, err := auth.NewStaticProvider("tok-1:acct-1,tok-2:acct-2")
	require.NoError(t, err)
	router := newAuthRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer tok-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "acct-2")
}

func TestAuthMiddleware_RejectsUnknownToken(t *testing.T) {
	provider, err := auth.NewStaticProvider("tok-1:acct-1")
	require.NoError(t, err)
	router := newAuthRouter(t, provider)

	cases := map[string]string{
		"no header":       "",
		"wrong scheme":    "Basic tok-1",
		"unknown token":   "Bearer tok-x",
		"malformed value": "Bearer",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthMiddleware_CaseInsensitiveBearer(t *testing.T) {
	provider, err := auth.NewStaticProvider("tok-1:acct-1")
	require.NoError(t, err)
	router := newAuthRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "bearer tok-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAccountID_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Empty(t, GetAccountID(c))
}
