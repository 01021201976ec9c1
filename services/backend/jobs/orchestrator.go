// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package jobs drives the generation job state machine.
//
// Submission and retry return immediately; generation runs in detached
// background tasks that the orchestrator tracks and can cancel on
// shutdown. Callers poll job status. All status edges go through the job
// store's guarded Transition, so an illegal edge is unrepresentable here.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratforge-ai/stratforge/services/backend/datatypes"
	"github.com/stratforge-ai/stratforge/services/backend/diffengine"
	"github.com/stratforge-ai/stratforge/services/backend/observability"
	"github.com/stratforge-ai/stratforge/services/backend/store"
	"github.com/stratforge-ai/stratforge/services/llm"
)

// RetryAttempts is the internal attempt budget of one retry call.
const RetryAttempts = 3

// reanalysisNamespace derives deterministic job IDs from the owning
// account and the client idempotency key, making re-analysis submission
// replay-safe without letting keys collide across accounts.
var reanalysisNamespace = uuid.MustParse("7f1e6f0a-9c1d-4be0-bb0d-61c43a14a35f")

// Config tunes the orchestrator.
type Config struct {
	// AttemptTimeout bounds a single generator invocation. Every attempt
	// gets its own deadline. Default 90s.
	AttemptTimeout time.Duration

	// RetryBaseDelay is the backoff before the second attempt of a retry
	// loop; it doubles for each further attempt. Default 2s.
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 90 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	return c
}

// Orchestrator owns job lifecycle and the background generation tasks.
type Orchestrator struct {
	jobs     *store.JobStore
	versions *store.VersionStore
	client   llm.Client
	cfg      Config
	metrics  *observability.Metrics
	logger   *slog.Logger

	// root is the parent of every background task; Close cancels it so
	// abandoned retry loops halt between attempts instead of running out
	// their budget against a dead process.
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. metrics and logger may be nil.
func New(jobs *store.JobStore, versions *store.VersionStore, client llm.Client, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobs:     jobs,
		versions: versions,
		client:   client,
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		logger:   logger,
		root:     root,
		cancel:   cancel,
	}
}

// Close cancels all background tasks and waits for them to finish.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// Recover reconciles jobs a previous process left behind. A job stuck in
// generating has no task in this process, so it moves to error and becomes
// retryable; a pending job never started, so its generation is
// rescheduled. Call once at startup, before serving requests.
func (o *Orchestrator) Recover(ctx context.Context) error {
	stale, err := o.jobs.ListByStatus(ctx, datatypes.JobStatusPending, datatypes.JobStatusGenerating)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}

	for _, job := range stale {
		switch job.Status {
		case datatypes.JobStatusGenerating:
			if _, err := o.jobs.Transition(ctx, job.ID, datatypes.JobStatusGenerating, datatypes.JobStatusError, func(j *datatypes.Job) {
				j.LastError = "generation interrupted by restart"
			}); err != nil {
				return fmt.Errorf("recover job %s: %w", job.ID, err)
			}
			o.logger.Warn("recovered interrupted job", "job_id", job.ID)
		case datatypes.JobStatusPending:
			jobID := job.ID
			o.logger.Info("rescheduling pending job", "job_id", jobID)
			o.spawn(func() { o.generateTask(jobID, datatypes.JobStatusPending) })
		}
	}
	return nil
}

// Submit creates a job in pending state and schedules its generation.
// Returns immediately with the stored job.
func (o *Orchestrator) Submit(ctx context.Context, accountID string, payload datatypes.StrategyPayload) (*datatypes.Job, error) {
	job := &datatypes.Job{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    datatypes.JobStatusPending,
		Payload:   payload,
	}
	stored, _, err := o.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}

	o.metrics.ObserveJobSubmitted("initial")
	o.spawn(func() { o.generateTask(stored.ID, datatypes.JobStatusPending) })

	return stored, nil
}

// Get returns a job owned by accountID.
func (o *Orchestrator) Get(ctx context.Context, accountID, jobID string) (*datatypes.Job, error) {
	return o.jobs.GetOwned(ctx, accountID, jobID)
}

// Retry re-runs generation for a job in error state, with an internal
// budget of RetryAttempts attempts and exponential backoff between them.
//
// The error→generating transition here doubles as the in-flight guard: a
// second Retry while one is running finds the job in generating and gets
// ErrInvalidState instead of racing the first.
func (o *Orchestrator) Retry(ctx context.Context, accountID, jobID string) (*datatypes.Job, error) {
	if _, err := o.jobs.GetOwned(ctx, accountID, jobID); err != nil {
		return nil, err
	}

	job, err := o.jobs.Transition(ctx, jobID, datatypes.JobStatusError, datatypes.JobStatusGenerating, func(j *datatypes.Job) {
		j.LastError = ""
	})
	if err != nil {
		return nil, err
	}

	o.spawn(func() { o.retryTask(jobID) })
	return job, nil
}

// Reanalyze creates a refinement job derived from source. The new job ID
// is derived from the owning account and the caller's idempotency key, so
// a replayed request returns the already-created job instead of spawning
// a second one, while the same key used by another account derives a
// distinct job.
//
// editedCode, when non-empty, is diffed against the latest stored version
// to build the edit summary fed back into the generator.
func (o *Orchestrator) Reanalyze(ctx context.Context, source *datatypes.Job, editedCode, idempotencyKey string) (*datatypes.Job, error) {
	lineage := source.ID
	if source.ParentID != "" {
		lineage = source.ParentID
	}

	payload := source.Payload
	payload.EditSummary = ""
	if editedCode != "" {
		latest, err := o.versions.Latest(ctx, lineage)
		if err != nil {
			return nil, err
		}
		base := ""
		if latest != nil {
			base = latest.Content
		}
		diff := diffengine.Diff(base, editedCode)
		if diff.Added > 0 || diff.Removed > 0 {
			payload.EditSummary = diff.Summary()
		}
	}

	job := &datatypes.Job{
		ID:        uuid.NewSHA1(reanalysisNamespace, []byte(source.AccountID+"/"+idempotencyKey)).String(),
		AccountID: source.AccountID,
		Status:    datatypes.JobStatusPending,
		Payload:   payload,
		ParentID:  lineage,
	}
	stored, created, err := o.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		o.logger.Info("re-analysis replayed, returning existing job",
			"job_id", stored.ID, "idempotency_key", idempotencyKey)
		return stored, nil
	}

	o.metrics.ObserveJobSubmitted("reanalysis")
	o.spawn(func() { o.generateTask(stored.ID, datatypes.JobStatusPending) })

	return stored, nil
}

func (o *Orchestrator) spawn(task func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		task()
	}()
}

// generateTask runs the single-attempt generation for a fresh submission.
func (o *Orchestrator) generateTask(jobID string, from datatypes.JobStatus) {
	job, err := o.jobs.Transition(o.root, jobID, from, datatypes.JobStatusGenerating, nil)
	if err != nil {
		o.logger.Error("could not start generation", "job_id", jobID, "error", err)
		return
	}

	result, err := o.attempt(job)
	if err != nil {
		o.recordAttemptFailure(jobID, err)
		o.finishError(jobID, err.Error())
		return
	}
	o.finishGenerated(jobID, job, result)
}

// retryTask runs the bounded retry loop. The job is already in
// generating (Retry moved it there).
func (o *Orchestrator) retryTask(jobID string) {
	var reasons []string

	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		if err := o.root.Err(); err != nil {
			o.finishError(jobID, strings.Join(append(reasons, "retry cancelled"), "; "))
			return
		}

		job, err := o.jobs.Get(o.root, jobID)
		if err != nil {
			o.logger.Error("retry lost its job", "job_id", jobID, "error", err)
			return
		}

		result, attemptErr := o.attempt(job)
		if attemptErr == nil {
			o.finishGenerated(jobID, job, result)
			return
		}

		reasons = append(reasons, fmt.Sprintf("attempt %d: %v", attempt, attemptErr))
		o.recordAttemptFailure(jobID, attemptErr)

		if attempt < RetryAttempts {
			// delay doubles each attempt: base, 2*base, ...
			delay := o.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-o.root.Done():
			case <-time.After(delay):
			}
		}
	}

	o.finishError(jobID, strings.Join(reasons, "; "))
}

// attempt invokes the generator once under the per-attempt timeout.
func (o *Orchestrator) attempt(job *datatypes.Job) (string, error) {
	ctx, cancel := context.WithTimeout(o.root, o.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	result, err := o.client.Generate(ctx, BuildMessages(job.Payload), llm.GenerationParams{})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		kind := "other"
		if ue, ok := llm.AsUpstream(err); ok {
			kind = string(ue.Kind)
		} else if errors.Is(err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		o.metrics.ObserveGenerationAttempt("error", kind, elapsed)
		o.logger.Warn("generation attempt failed",
			"job_id", job.ID, "error_kind", kind, "error", err)
		return "", err
	}

	o.metrics.ObserveGenerationAttempt("success", "", elapsed)
	return result, nil
}

// finishGenerated stores the result, appends a code version with the diff
// against the lineage's previous version, and marks the job generated.
func (o *Orchestrator) finishGenerated(jobID string, job *datatypes.Job, result string) {
	// The terminal writes must land even when Close cancelled root
	// mid-task, or the job stays in generating durably.
	ctx := context.WithoutCancel(o.root)

	lineage := job.ID
	if job.ParentID != "" {
		lineage = job.ParentID
	}

	var diff datatypes.DiffSummary
	latest, err := o.versions.Latest(ctx, lineage)
	if err == nil {
		base := ""
		if latest != nil {
			base = latest.Content
		}
		d := diffengine.Diff(base, result)
		diff = datatypes.DiffSummary{Added: d.Added, Removed: d.Removed}
	} else {
		o.logger.Error("could not read latest version", "job_id", jobID, "error", err)
	}

	if _, err := o.versions.Append(ctx, lineage, result, diff); err != nil {
		o.logger.Error("could not append code version", "job_id", jobID, "error", err)
	}

	if _, err := o.jobs.Transition(ctx, jobID, datatypes.JobStatusGenerating, datatypes.JobStatusGenerated, func(j *datatypes.Job) {
		j.Result = result
		j.AttemptCount++
		j.LastError = ""
	}); err != nil {
		o.logger.Error("could not mark job generated", "job_id", jobID, "error", err)
	}
}

// recordAttemptFailure counts a failed attempt on the job record while it
// remains in generating.
func (o *Orchestrator) recordAttemptFailure(jobID string, attemptErr error) {
	if _, err := o.jobs.Mutate(o.root, jobID, datatypes.JobStatusGenerating, func(j *datatypes.Job) {
		j.AttemptCount++
		j.LastError = attemptErr.Error()
	}); err != nil {
		o.logger.Error("could not record attempt failure", "job_id", jobID, "error", err)
	}
}

// finishError moves the job to error with the accumulated reason. Attempt
// counting already happened per attempt. The write uses a non-cancelled
// context so the cancelled-retry path on shutdown still lands durably.
func (o *Orchestrator) finishError(jobID, reason string) {
	if _, err := o.jobs.Transition(context.WithoutCancel(o.root), jobID, datatypes.JobStatusGenerating, datatypes.JobStatusError, func(j *datatypes.Job) {
		j.LastError = reason
	}); err != nil {
		o.logger.Error("could not mark job errored", "job_id", jobID, "error", err)
	}
}

// BuildMessages renders the deterministic generator request for a payload.
// Field order is fixed and slice fields are sorted, so the same payload
// always produces the same request.
func BuildMessages(p datatypes.StrategyPayload) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy: %s\n", p.Name)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	if len(p.Markets) > 0 {
		markets := append([]string(nil), p.Markets...)
		sort.Strings(markets)
		fmt.Fprintf(&b, "Markets: %s\n", strings.Join(markets, ", "))
	}
	if p.Timeframe != "" {
		fmt.Fprintf(&b, "Timeframe: %s\n", p.Timeframe)
	}
	if len(p.Indicators) > 0 {
		indicators := append([]string(nil), p.Indicators...)
		sort.Strings(indicators)
		fmt.Fprintf(&b, "Indicators: %s\n", strings.Join(indicators, ", "))
	}
	if p.RiskNotes != "" {
		fmt.Fprintf(&b, "Risk notes: %s\n", p.RiskNotes)
	}
	if p.EditSummary != "" {
		fmt.Fprintf(&b, "The user hand-edited the previous version:\n%s", p.EditSummary)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a trading strategy code generator. Reply with complete, runnable strategy code only."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
