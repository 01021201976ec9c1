// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/stratforge-ai/stratforge/services/backend/ledger"
)

const (
	testSecret = "e2e-webhook-secret"
	testToken  = "tok-1"
	testAcct   = "acct-1"
	testToken2 = "tok-2"
	testAcct2  = "acct-2"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	svc, err := New(Config{
		InMemoryDB:     true,
		LLMBackend:     "static",
		WebhookSecret:  testSecret,
		AuthTokens:     testToken + ":" + testAcct + "," + testToken2 + ":" + testAcct2,
		GinMode:        gin.TestMode,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close())
	})
	return svc
}

// do sends a JSON request against the service router as the primary test
// account (or anonymously).
func do(svc Service, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	token := ""
	if authed {
		token = testToken
	}
	return doAs(svc, token, method, path, body)
}

// doAs sends a JSON request with the given bearer token; empty means
// unauthenticated.
func doAs(svc Service, token, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// postWebhook delivers a signed billing webhook.
func postWebhook(svc Service, accountID string, event map[string]any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]any{
		"account_id": accountID,
		"event":      event,
	})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ledger.SignatureHeader, ledger.Sign([]byte(testSecret), payload))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

// submitAndWait submits a strategy as the given token's account and polls
// until generation finishes.
func submitAndWait(t *testing.T, svc Service, token string) string {
	t.Helper()

	rec := doAs(svc, token, http.MethodPost, "/v1/strategies", map[string]any{
		"name":        "breakout",
		"description": "trade range breakouts",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID, _ := decode(t, rec)["id"].(string)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		poll := doAs(svc, token, http.MethodGet, "/v1/strategies/"+jobID, nil)
		return poll.Code == http.StatusOK && decode(t, poll)["status"] == "generated"
	}, 5*time.Second, 20*time.Millisecond)

	return jobID
}

func TestBackend_Health(t *testing.T) {
	svc := newTestService(t)

	rec := do(svc, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBackend_RequiresAuth(t *testing.T) {
	svc := newTestService(t)

	rec := do(svc, http.MethodGet, "/v1/coins", nil, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBackend_GenerationFlow(t *testing.T) {
	svc := newTestService(t)

	jobID := submitAndWait(t, svc, testToken)

	// Result and version history are visible.
	rec := do(svc, http.MethodGet, "/v1/strategies/"+jobID, nil, true)
	body := decode(t, rec)
	require.NotEmpty(t, body["result"])

	rec = do(svc, http.MethodGet, "/v1/strategies/"+jobID+"/versions", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode(t, rec)["versions"].([]any)
	require.Len(t, versions, 1)

	// Retrying a generated job is a state conflict.
	rec = do(svc, http.MethodPost, "/v1/strategies/"+jobID+"/retry", nil, true)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestBackend_RejectsInvalidMarkets(t *testing.T) {
	svc := newTestService(t)

	rec := do(svc, http.MethodPost, "/v1/strategies", map[string]any{
		"name":        "breakout",
		"description": "trade range breakouts",
		"markets":     []string{"BTC-USD", "bad symbol"},
	}, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "bad symbol")
}

func TestBackend_UnknownJobIs404(t *testing.T) {
	svc := newTestService(t)

	rec := do(svc, http.MethodGet, "/v1/strategies/no-such-job", nil, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackend_WebhookFlow(t *testing.T) {
	svc := newTestService(t)

	rec := postWebhook(svc, testAcct, map[string]any{
		"event_id":   "evt-1",
		"product_id": "sf_coin_pack",
		"amount_usd": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "applied", decode(t, rec)["status"])

	// Redelivery is acknowledged without double-crediting.
	rec = postWebhook(svc, testAcct, map[string]any{
		"event_id":   "evt-1",
		"product_id": "sf_coin_pack",
		"amount_usd": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "duplicate", decode(t, rec)["status"])

	rec = do(svc, http.MethodGet, "/v1/coins", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 10, decode(t, rec)["coin_balance"])
}

func TestBackend_WebhookRejectsBadSignature(t *testing.T) {
	svc := newTestService(t)

	payload := []byte(`{"account_id":"acct-1","event":{"event_id":"evt-x"}}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set(ledger.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBackend_SubscriptionWebhook(t *testing.T) {
	svc := newTestService(t)

	payload, _ := json.Marshal(map[string]any{
		"account_id": testAcct,
		"event":      map[string]any{"event_id": "evt-sub", "product_id": "sf_elite_monthly"},
	})
	req := httptest.NewRequest(http.MethodPost, "/subscription/webhook", bytes.NewReader(payload))
	req.Header.Set(ledger.SignatureHeader, ledger.Sign([]byte(testSecret), payload))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(svc, http.MethodGet, "/v1/subscription", nil, true)
	body := decode(t, rec)
	require.Equal(t, "elite", body["plan"])
	require.NotZero(t, body["plan_expiry"])

	rec = do(svc, http.MethodGet, "/v1/notifications", nil, true)
	notifs := decode(t, rec)["notifications"].([]any)
	require.Len(t, notifs, 1)
}

func TestBackend_ReanalyzeFlow(t *testing.T) {
	svc := newTestService(t)
	jobID := submitAndWait(t, svc, testToken)

	reanalyze := func(key string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{})
		req := httptest.NewRequest(http.MethodPost, "/v1/strategies/"+jobID+"/reanalyze", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testToken)
		if key != "" {
			req.Header.Set("X-Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		svc.Router().ServeHTTP(rec, req)
		return rec
	}

	// No idempotency key: rejected before any debit.
	rec := reanalyze("")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// No coins yet: payment required.
	rec = reanalyze("key-1")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Buy 10 coins, then re-analysis costs 2.
	rec = postWebhook(svc, testAcct, map[string]any{
		"event_id": "evt-1", "purpose": "coins", "amount_usd": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = reanalyze("key-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 8, body["coin_balance"])
	child := body["job"].(map[string]any)
	require.Equal(t, jobID, child["parent_id"])

	// Replay: same job, same balance, no second debit.
	rec = reanalyze("key-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	replay := decode(t, rec)
	require.EqualValues(t, 8, replay["coin_balance"])
	require.Equal(t, child["id"], replay["job"].(map[string]any)["id"])
}

func TestBackend_ReanalyzeKeyDoesNotLeakAcrossAccounts(t *testing.T) {
	svc := newTestService(t)

	reanalyze := func(token, jobID, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/strategies/"+jobID+"/reanalyze", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Idempotency-Key", key)
		rec := httptest.NewRecorder()
		svc.Router().ServeHTTP(rec, req)
		return rec
	}

	jobA := submitAndWait(t, svc, testToken)
	jobB := submitAndWait(t, svc, testToken2)

	for i, acct := range []string{testAcct, testAcct2} {
		rec := postWebhook(svc, acct, map[string]any{
			"event_id": fmt.Sprintf("evt-%d", i), "purpose": "coins", "amount_usd": 2,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := reanalyze(testToken, jobA, "shared-key")
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode(t, rec)
	require.EqualValues(t, 8, first["coin_balance"])

	// The same idempotency key from another account debits that account's
	// own balance and creates that account's own job.
	rec = reanalyze(testToken2, jobB, "shared-key")
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode(t, rec)
	require.EqualValues(t, 8, second["coin_balance"])

	childA := first["job"].(map[string]any)
	childB := second["job"].(map[string]any)
	require.NotEqual(t, childA["id"], childB["id"])
	require.Equal(t, jobB, childB["parent_id"])
}

func TestBackend_MetricsEndpoint(t *testing.T) {
	svc := newTestService(t)
	submitAndWait(t, svc, testToken)

	rec := do(svc, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "stratforge_jobs_submitted_total")
}

func TestBackend_RejectsUnknownLLMBackend(t *testing.T) {
	_, err := New(Config{InMemoryDB: true, LLMBackend: "carrier-pigeon", GinMode: gin.TestMode})
	require.Error(t, err)
	require.Contains(t, err.Error(), fmt.Sprintf("%q", "carrier-pigeon"))
}
