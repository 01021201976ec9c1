// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw webhook
// body, computed with the shared processor secret.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature checks the webhook signature against the raw body.
// Verification happens before any parsing or processing; failures return
// datatypes.ErrUnverifiedWebhook.
func VerifySignature(secret, body []byte, signatureHex string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", datatypes.ErrUnverifiedWebhook)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) == 0 {
		return fmt.Errorf("%w: malformed signature", datatypes.ErrUnverifiedWebhook)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return fmt.Errorf("%w: signature mismatch", datatypes.ErrUnverifiedWebhook)
	}
	return nil
}

// Sign computes the hex signature for a body. Used by tests and by the
// local webhook replay tooling.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
