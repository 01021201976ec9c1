// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth resolves bearer credentials to account identities.
//
// The account directory itself (identity provider, session service) is an
// external collaborator; this package only defines the seam and two local
// implementations: a permissive provider for development and a static
// token table for small deployments and tests.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
)

// AccountInfo identifies the authenticated account.
type AccountInfo struct {
	// AccountID is the unique account identifier. Never empty.
	AccountID string

	// Email may be empty when the directory does not provide one.
	Email string
}

// Provider validates a bearer token and resolves the owning account.
//
// Implementations return datatypes.ErrUnauthorized for tokens they do not
// recognize. Must be safe for concurrent use.
type Provider interface {
	Resolve(ctx context.Context, token string) (*AccountInfo, error)
}

// NopProvider authenticates every request as a fixed local account. It
// exists so the backend runs without identity infrastructure in
// development, mirroring how the rest of the product behaves locally.
type NopProvider struct{}

func (NopProvider) Resolve(_ context.Context, _ string) (*AccountInfo, error) {
	return &AccountInfo{AccountID: "local-account"}, nil
}

// StaticProvider resolves tokens against a fixed table.
type StaticProvider struct {
	accounts map[string]string // token → accountID
}

// NewStaticProvider builds a provider from a "token:account,token:account"
// spec, the format of the BACKEND_AUTH_TOKENS environment variable.
func NewStaticProvider(spec string) (*StaticProvider, error) {
	accounts := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, account, ok := strings.Cut(pair, ":")
		if !ok || token == "" || account == "" {
			return nil, fmt.Errorf("malformed auth token entry %q", pair)
		}
		accounts[token] = account
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("auth token spec resolved to no entries")
	}
	return &StaticProvider{accounts: accounts}, nil
}

func (p *StaticProvider) Resolve(_ context.Context, token string) (*AccountInfo, error) {
	account, ok := p.accounts[token]
	if !ok {
		return nil, datatypes.ErrUnauthorized
	}
	return &AccountInfo{AccountID: account}, nil
}
