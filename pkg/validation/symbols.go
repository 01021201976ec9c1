// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-supplied market
// identifiers before they reach storage keys or generator prompts.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolPattern matches market symbols as users write them: uppercase
// letters and digits with dots (BRK.A), hyphens (BF-B), and slashes for
// pairs (BTC/USD). Max length 12.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./\-]{0,11}$`)

// ValidateSymbol checks one market symbol.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("market symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid market symbol %q (1-12 uppercase alphanumeric chars, dots, hyphens, or slashes)", symbol)
	}
	return nil
}

// ValidateSymbols checks a list of market symbols and reports every
// invalid entry at once.
func ValidateSymbols(symbols []string) error {
	var invalid []string
	for _, s := range symbols {
		if err := ValidateSymbol(s); err != nil {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid market symbols: %v", invalid)
	}
	return nil
}

// SanitizeSymbol trims whitespace, uppercases, and validates. Returns the
// normalized symbol.
func SanitizeSymbol(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if err := ValidateSymbol(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
