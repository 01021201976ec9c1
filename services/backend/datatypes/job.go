// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the StratForge backend:
// generation jobs, ledger state, code versions, and the error taxonomy.
//
// Everything in this package is persisted as JSON values in BadgerDB by the
// store package. Fields use snake_case JSON tags to match the wire format of
// the HTTP API.
package datatypes

import "time"

// JobStatus is the lifecycle state of a generation job.
//
// Allowed transitions:
//
//	pending → generating
//	generating → generated
//	generating → error
//	error → generating (retry)
//
// "generated" and "error" are stable but not final: a retry on an error job
// always re-attempts, and a generated job can spawn a re-analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusGenerating JobStatus = "generating"
	JobStatusGenerated  JobStatus = "generated"
	JobStatusError      JobStatus = "error"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusGenerating, JobStatusGenerated, JobStatusError:
		return true
	}
	return false
}

// CanTransition reports whether the edge s → next is on the allowed set.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch {
	case s == JobStatusPending && next == JobStatusGenerating:
		return true
	case s == JobStatusGenerating && next == JobStatusGenerated:
		return true
	case s == JobStatusGenerating && next == JobStatusError:
		return true
	case s == JobStatusError && next == JobStatusGenerating:
		return true
	}
	return false
}

// StrategyPayload is the structured description of a trading strategy
// submitted by a user. The generator request is built deterministically
// from these fields, so ordering inside slices is significant.
type StrategyPayload struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Markets     []string `json:"markets,omitempty"`
	Timeframe   string   `json:"timeframe,omitempty"`
	Indicators  []string `json:"indicators,omitempty"`
	RiskNotes   string   `json:"risk_notes,omitempty"`

	// EditSummary carries a line-diff summary of user hand-edits when the
	// payload belongs to a re-analysis job. Empty on first submission.
	EditSummary string `json:"edit_summary,omitempty"`
}

// Job is one submitted request to synthesize strategy code.
//
// Jobs are owned by the submitting account, mutated only by the job
// orchestrator, and never deleted (history is retained).
type Job struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Status       JobStatus       `json:"status"`
	Payload      StrategyPayload `json:"payload"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error,omitempty"`
	Result       string          `json:"result,omitempty"`

	// ParentID links a re-analysis job back to the job it refines.
	ParentID string `json:"parent_id,omitempty"`

	// ReanalyzeAt is a scheduled re-analysis timestamp (unix seconds) set
	// by the ledger processor on plan purchase. Zero means none scheduled.
	ReanalyzeAt int64 `json:"reanalyze_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
