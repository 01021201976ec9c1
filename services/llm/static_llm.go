// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"strings"
)

// StaticClient is an offline backend that renders a deterministic
// pseudo-strategy from the request text. It exists so the backend can run
// without credentials (local development, CI, demos) and so end-to-end
// tests have a stable generator.
type StaticClient struct{}

func NewStaticClient() *StaticClient {
	return &StaticClient{}
}

// Generate implements the Client interface. Output depends only on the
// message contents.
func (s *StaticClient) Generate(ctx context.Context, messages []Message, _ GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var subject string
	for _, m := range messages {
		if m.Role == RoleUser {
			subject = m.Content
			break
		}
	}
	firstLine := subject
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}

	var b strings.Builder
	b.WriteString("# generated offline (static backend)\n")
	fmt.Fprintf(&b, "# request: %s\n", firstLine)
	b.WriteString("def signal(bar):\n")
	b.WriteString("    return 'hold'\n")
	return b.String(), nil
}
