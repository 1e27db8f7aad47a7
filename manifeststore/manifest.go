// Package manifeststore defines the RunManifest exit surface and its
// persistence, plus a local existence cache fronting the
// incremental-skip probe.
/*
 * Copyright (c) 2026
 */
package manifeststore

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RunManifest is the single result of one Orchestrator.Run call.
type RunManifest struct {
	RunID           string              `json:"run_id"`
	Status          Status              `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	EndedAt         time.Time           `json:"ended_at"`
	TasksTotal      int                 `json:"tasks_total"`
	TasksSucceeded  int                 `json:"tasks_succeeded"`
	TasksSkipped    int                 `json:"tasks_skipped"`
	TasksFailed     int                 `json:"tasks_failed"`
	BytesTransferred int64              `json:"bytes_transferred"`
	Results         []executor.TaskResult `json:"results"`
	Error           string              `json:"error,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.New().String() }

// Summarize folds executor results into a RunManifest's aggregate
// counters. status must already reflect cancellation/failure judgment
// made by the caller (the orchestrator), since that depends on more
// than just the result set (e.g. earlier-stage errors).
func Summarize(runID string, status Status, started, ended time.Time, results []executor.TaskResult, stageErr string) *RunManifest {
	attempted := make([]executor.TaskResult, 0, len(results))
	for _, r := range results {
		if r.Outcome == "" {
			continue // cancelled before this task's batch was dispatched
		}
		attempted = append(attempted, r)
	}

	m := &RunManifest{
		RunID: runID, Status: status, StartedAt: started, EndedAt: ended,
		TasksTotal: len(attempted), Results: attempted, Error: stageErr,
	}
	for _, r := range attempted {
		m.BytesTransferred += r.BytesTransferred
		switch r.Outcome {
		case executor.OutcomeCopied:
			m.TasksSucceeded++
		case executor.OutcomeSkippedExisting:
			m.TasksSkipped++
		default:
			m.TasksFailed++
		}
	}
	return m
}

// Persist writes the manifest as JSON to backend at key, as the final
// stage of a run. backend is declared structurally (see storeBackend)
// so this package need not import package storage, which itself
// imports executor.
type storeBackend interface {
	DestinationURI(targetKey string) string
	Put(ctx context.Context, uri string, size int64, data interface{ Read([]byte) (int, error) }) error
}

// manifestPutter is implemented by backends (e.g. storage.S3Backend)
// that can write a small body directly at a bucket-relative key,
// bypassing the multipart-upload machinery Put uses for transferred
// archive objects. Declared locally for the same reason as
// storeBackend.
type manifestPutter interface {
	PutManifest(ctx context.Context, key string, body []byte) error
}

func Persist(ctx context.Context, backend storeBackend, key string, m *RunManifest) error {
	b, err := cmn.JSON.Marshal(m)
	if err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	if mp, ok := backend.(manifestPutter); ok {
		if err := mp.PutManifest(ctx, key, b); err != nil {
			return cmn.Wrap(cmn.KindStorageError, err)
		}
		return nil
	}
	uri := backend.DestinationURI(key)
	if err := backend.Put(ctx, uri, int64(len(b)), bytes.NewReader(b)); err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	return nil
}
