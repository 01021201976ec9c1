// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// DiffSummary is the aggregate line-diff of a code version against its
// parent version.
type DiffSummary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// CodeVersion is one generated (or refined) revision of a strategy's code.
//
// The history per job is append-only with bounded retention: only the most
// recent N versions are kept. Seq increases monotonically and survives
// pruning, so version ids remain stable.
type CodeVersion struct {
	ID        string      `json:"id"`
	JobID     string      `json:"job_id"`
	Seq       uint64      `json:"seq"`
	Content   string      `json:"content"`
	Diff      DiffSummary `json:"diff_summary_vs_parent"`
	CreatedAt time.Time   `json:"created_at"`
}
