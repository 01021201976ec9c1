// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm wraps the generative-text collaborator behind a small
// backend-agnostic interface. The job orchestrator only ever sees Client;
// which provider actually answers is a deployment decision.
package llm

import "context"

// Role tags a message in a generation request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the standard interface for any generation backend.
//
// Generate returns the plain-text completion for the message list.
// Implementations classify provider failures into UpstreamError so callers
// can distinguish auth, bad-input, model-unavailable, and rate-limited
// conditions without knowing the provider.
type Client interface {
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}
