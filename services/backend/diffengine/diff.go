// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diffengine computes line-level diffs between code versions.
//
// The diff is a minimal edit script derived from a dynamic-programming
// longest-common-subsequence over lines, O(n·m) in line counts. It is used
// to summarize user hand-edits before a refinement request and to annotate
// entries in the bounded version history.
package diffengine

import "strings"

// Op tags a line in the edit script.
type Op string

const (
	OpSame Op = "same"
	OpAdd  Op = "add"
	OpDel  Op = "del"
)

// Line is one entry of the edit script.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Result is the full edit script plus aggregate counts.
type Result struct {
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Changes []Line `json:"changes"`
}

// Diff computes the line edit script from oldText to newText.
//
// Tie-break rule: when the forward and downward DP scores are equal, the
// deletion (advancing the old-text pointer) is emitted before the
// addition. Downstream summaries depend on that ordering; do not change it.
//
// Identical inputs yield Added=0, Removed=0 with an all-same script. Empty
// inputs are handled: diffing "" against "" yields an empty script.
func Diff(oldText, newText string) Result {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	n := len(oldLines)
	m := len(newLines)

	// lcs[i][j] = length of the LCS of oldLines[i:] and newLines[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	res := Result{Changes: make([]Line, 0, max(n, m))}
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			res.Changes = append(res.Changes, Line{Op: OpSame, Text: oldLines[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			// del before add on equal scores
			res.Changes = append(res.Changes, Line{Op: OpDel, Text: oldLines[i]})
			res.Removed++
			i++
		default:
			res.Changes = append(res.Changes, Line{Op: OpAdd, Text: newLines[j]})
			res.Added++
			j++
		}
	}
	for ; i < n; i++ {
		res.Changes = append(res.Changes, Line{Op: OpDel, Text: oldLines[i]})
		res.Removed++
	}
	for ; j < m; j++ {
		res.Changes = append(res.Changes, Line{Op: OpAdd, Text: newLines[j]})
		res.Added++
	}
	return res
}

// Summary renders a short human-readable description of the diff, used in
// refinement prompts and notifications.
func (r Result) Summary() string {
	var b strings.Builder
	for _, line := range r.Changes {
		switch line.Op {
		case OpAdd:
			b.WriteString("+ ")
		case OpDel:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// splitLines splits on newlines. An empty string has no lines, which keeps
// Diff("", s) from reporting a phantom deleted empty line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
