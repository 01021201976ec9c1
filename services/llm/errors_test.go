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
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{400, KindBadInput},
		{422, KindBadInput},
		{429, KindRateLimited},
		{404, KindModelUnavailable},
		{500, KindModelUnavailable},
		{503, KindModelUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestWrapOpenAIError(t *testing.T) {
	err := wrapOpenAIError(&openai.APIError{
		HTTPStatusCode: 429,
		Message:        "rate limit exceeded",
	})

	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, ue.Kind)
	assert.Equal(t, 429, ue.Status)
}

func TestWrapOpenAIErrorTransport(t *testing.T) {
	err := wrapOpenAIError(fmt.Errorf("dial tcp: connection refused"))

	ue, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, KindModelUnavailable, ue.Kind)
}

func TestAsUpstreamWrapped(t *testing.T) {
	inner := &UpstreamError{Kind: KindAuth, Status: 401, Message: "bad key"}
	wrapped := fmt.Errorf("attempt 2: %w", inner)

	ue, ok := AsUpstream(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindAuth, ue.Kind)

	_, ok = AsUpstream(errors.New("plain"))
	assert.False(t, ok)
}
