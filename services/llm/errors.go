// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream generation failure by its cause.
type ErrorKind string

const (
	// KindAuth covers credential/configuration failures (401, 403).
	KindAuth ErrorKind = "auth"

	// KindBadInput covers requests the provider rejects as malformed or
	// policy-violating (400, 413, 422).
	KindBadInput ErrorKind = "bad_input"

	// KindModelUnavailable covers missing models and provider outages
	// (404, 500, 502, 503).
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindRateLimited covers quota exhaustion (429).
	KindRateLimited ErrorKind = "rate_limited"
)

// UpstreamError is a classified generation failure.
type UpstreamError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream generation failure (%s, status %d): %s", e.Kind, e.Status, e.Message)
}

// AsUpstream unwraps err into an UpstreamError, if it is one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// classifyStatus maps an HTTP response status to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch status {
	case 401, 403:
		return KindAuth
	case 400, 413, 422:
		return KindBadInput
	case 429:
		return KindRateLimited
	default:
		return KindModelUnavailable
	}
}
