// Package executor implements the Batched Transfer Executor (C8): it
// chunks planned tasks into batches, probes for incremental skip,
// dispatches each batch to a transfer strategy, and aggregates results
// with retry and bounded concurrency.
/*
 * Copyright (c) 2026
 */
package executor

import (
	"time"

	"github.com/tommy-ca/binance-datatool-sub005/matrix"
)

// TaskContext preserves every dimension that produced a TransferTask,
// for the manifest and for idempotency checks.
type TaskContext struct {
	Market    matrix.Market    `json:"market"`
	DataType  string           `json:"data_type"`
	Symbol    string           `json:"symbol"`
	Interval  *string          `json:"interval"`
	Date      string           `json:"date"` // YYYY-MM-DD or YYYY-MM
	Partition matrix.Partition `json:"partition"`
}

// TransferTask is one concrete file transfer, fully expanded from the
// availability matrix template. Source URI uniquely identifies a task;
// the planner guarantees no duplicates.
type TransferTask struct {
	SourceURI         string      `json:"source_uri"`
	TargetKey         string      `json:"target_key"`
	ChecksumSourceURI string      `json:"checksum_source_uri,omitempty"`
	ExpectedSizeHint  int64       `json:"expected_size_hint,omitempty"`
	Context           TaskContext `json:"context"`
}

// Outcome classifies how a TransferTask's attempt concluded.
type Outcome string

const (
	OutcomeCopied            Outcome = "copied"
	OutcomeSkippedExisting   Outcome = "skipped_existing"
	OutcomeChecksumMismatch  Outcome = "checksum_mismatch"
	OutcomeSourceMissing     Outcome = "source_missing"
	OutcomeTransientError    Outcome = "transient_error"
	OutcomePermanentError    Outcome = "permanent_error"
)

// Terminal reports whether outcome ends the task's retry loop; every
// outcome except transient_error is terminal.
func (o Outcome) Terminal() bool { return o != OutcomeTransientError }

// Strategy names a transfer strategy, for TaskResult.StrategyUsed and
// for the Mode Selector's decision.
type Strategy string

const (
	StrategyDirect      Strategy = "direct"
	StrategyTraditional Strategy = "traditional"
)

// TaskResult is the outcome of one TransferTask after all retries.
type TaskResult struct {
	Task             TransferTask  `json:"task"`
	Outcome          Outcome       `json:"outcome"`
	BytesTransferred int64         `json:"bytes_transferred"`
	Duration         time.Duration `json:"duration"`
	Attempts         int           `json:"attempts"`
	StrategyUsed     Strategy      `json:"strategy_used,omitempty"`
	Err              string        `json:"error,omitempty"`
}

// Batch is an ordered slice of tasks of size <= batch_size, assigned
// exactly one strategy for its lifetime.
type Batch struct {
	Tasks    []TransferTask
	Strategy Strategy
}

// ChunkTasks partitions tasks into ordered batches of at most size
// tasks each. size <= 0 (e.g. an unset batch_size) is treated as 1, so
// the loop below always advances.
func ChunkTasks(tasks []TransferTask, size int) [][]TransferTask {
	if size <= 0 {
		size = 1
	}
	if len(tasks) == 0 {
		return nil
	}
	out := make([][]TransferTask, 0, (len(tasks)+size-1)/size)
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		out = append(out, tasks[i:end])
	}
	return out
}
