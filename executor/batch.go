package executor

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
)

// toolUnavailableMarker mirrors transfer.ToolUnavailableMarker. Executor
// cannot import package transfer (transfer imports executor for
// TransferTask/TaskResult), so the marker is duplicated here as the
// shared contract between the two packages.
const toolUnavailableMarker = "tool_unavailable: "

// maxTaskAttempts bounds the per-task retry loop: a task is attempted at
// most 3 times in total (the first attempt plus 2 retries) while it keeps
// reporting transient_error.
const maxTaskAttempts = 3

// retryBase is the first backoff step; Backoff(retryBase, 0/1/2) yields
// the documented 1s/4s/16s schedule.
const retryBase = 1 * time.Second

// Destination is the subset of storage.Backend the executor needs for
// the incremental-skip existence probe. Declared locally (rather than
// importing package storage, which itself imports executor for
// TaskContext) so any backend implementation satisfies it structurally.
type Destination interface {
	DestinationURI(targetKey string) string
	Exists(ctx context.Context, uri string) (bool, error)
}

// prewalker is implemented by backends (e.g. storage.LocalBackend) that
// can front-load existence checks with a single directory walk instead
// of one stat per task.
type prewalker interface {
	Prewalk() error
}

// TransferStrategy is the shape transfer.Strategy implementations
// satisfy; declared locally to avoid executor importing transfer
// (transfer already imports executor for TransferTask/TaskResult).
type TransferStrategy interface {
	Name() Strategy
	Execute(ctx context.Context, tasks []TransferTask) []TaskResult
}

// RunOptions configures one Batch Executor run, normally sourced from a
// collect.NormalizedRequest.
type RunOptions struct {
	MaxConcurrency int
	BatchSize      int
	Incremental    bool
	Force          bool
	// TaskTimeout, if positive, bounds a single task attempt. A strategy
	// call that exceeds it is cancelled; the resulting context-deadline
	// error classifies as transient_error through the same path a
	// network timeout or 5xx would, so it follows the normal per-task
	// retry policy. Zero means no deadline is applied.
	TaskTimeout time.Duration
}

// RunResult aggregates every task's final outcome for one executor run.
type RunResult struct {
	Results   []TaskResult
	Cancelled bool
}

// Executor is the Batched Transfer Executor (C8). Primary is the
// strategy selected by the Mode Selector; Fallback, if non-nil, is used
// for tasks still pending after Primary reports ToolUnavailable mid-run
// (downgrade to traditional, retried once).
type Executor struct {
	Primary     TransferStrategy
	Fallback    TransferStrategy
	Destination Destination
	Opts        RunOptions
}

// Run executes every task in tasks to completion (bounded by ctx),
// applying incremental-skip, batching, per-task retry, and strategy
// fallback.
func (e *Executor) Run(ctx context.Context, tasks []TransferTask) *RunResult {
	results := make([]TaskResult, len(tasks))
	skipIdx := map[int]bool{}

	if e.Opts.Incremental && !e.Opts.Force {
		skipIdx = e.probeExisting(ctx, tasks)
		for i := range skipIdx {
			results[i] = TaskResult{Task: tasks[i], Outcome: OutcomeSkippedExisting}
		}
	}

	toRun := make([]int, 0, len(tasks))
	for i := range tasks {
		if !skipIdx[i] {
			toRun = append(toRun, i)
		}
	}

	batches := ChunkTasks(indicesToTasks(tasks, toRun), e.batchSize())
	idxBatches := chunkIndices(toRun, e.batchSize())

	concurrency := e.batchConcurrency(len(batches))
	lwg := cmn.NewLimitedWaitGroup(concurrency)

	cancelled := false
	for bi, batch := range batches {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		lwg.Add()
		go func(batch []TransferTask, idxs []int) {
			defer lwg.Done()
			batchResults := e.runBatch(ctx, batch)
			for j, idx := range idxs {
				results[idx] = batchResults[j]
			}
		}(batch, idxBatches[bi])
	}
	lwg.Wait()

	if ctx.Err() != nil {
		cancelled = true
	}
	return &RunResult{Results: results, Cancelled: cancelled}
}

func (e *Executor) batchSize() int {
	if e.Opts.BatchSize <= 0 {
		return 1
	}
	return e.Opts.BatchSize
}

func (e *Executor) batchConcurrency(numBatches int) int {
	// max_concurrency bounds in-flight *tasks*; translate to in-flight
	// batches, rounded up to at least 1.
	perBatch := e.batchSize()
	c := e.Opts.MaxConcurrency / perBatch
	if c < 1 {
		c = 1
	}
	if numBatches > 0 && c > numBatches {
		c = numBatches
	}
	return c
}

// withTaskTimeout derives a context bounding n tasks' worth of
// TaskTimeout -- n is the batch size for a whole-batch attempt, or 1 for
// a single-task retry -- and returns it with its cancel func. Returns
// ctx unchanged with a no-op cancel when no timeout is configured.
func (e *Executor) withTaskTimeout(ctx context.Context, n int) (context.Context, context.CancelFunc) {
	if e.Opts.TaskTimeout <= 0 || n <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.Opts.TaskTimeout*time.Duration(n))
}

// runBatch executes one batch with per-task retry, falling back to
// e.Fallback the first time the primary strategy reports
// ToolUnavailable mid-run.
func (e *Executor) runBatch(ctx context.Context, batch []TransferTask) []TaskResult {
	strat := e.Primary
	bctx, cancel := e.withTaskTimeout(ctx, len(batch))
	results := strat.Execute(bctx, batch)
	cancel()

	if toolWentUnavailable(results) && e.Fallback != nil {
		glog.Warningf("bulk transfer tool unavailable mid-run, downgrading %d task(s) to %s", len(batch), e.Fallback.Name())
		strat = e.Fallback
		bctx, cancel = e.withTaskTimeout(ctx, len(batch))
		results = strat.Execute(bctx, batch)
		cancel()
	}

	out := make([]TaskResult, len(batch))
	for i, t := range batch {
		out[i] = e.retryTask(ctx, t, strat, results[i])
	}
	return out
}

func toolWentUnavailable(results []TaskResult) bool {
	for _, r := range results {
		if r.Outcome == OutcomeTransientError && strings.HasPrefix(r.Err, toolUnavailableMarker) {
			return true
		}
	}
	return false
}

// retryTask retries a single task through strat up to maxTaskAttempts
// times while its outcome remains transient_error, honoring ctx
// cancellation between attempts.
func (e *Executor) retryTask(ctx context.Context, t TransferTask, strat TransferStrategy, first TaskResult) TaskResult {
	current := first
	if current.Attempts == 0 {
		current.Attempts = 1
	}
	attempt := 1
	for current.Outcome == OutcomeTransientError && attempt < maxTaskAttempts {
		select {
		case <-ctx.Done():
			return current
		case <-time.After(cmn.Backoff(retryBase, attempt-1)):
		}
		attempt++
		tctx, cancel := e.withTaskTimeout(ctx, 1)
		rs := strat.Execute(tctx, []TransferTask{t})
		cancel()
		current = rs[0]
		current.Attempts = attempt
	}
	return current
}

// probeExisting runs one bounded-concurrency existence check per task via
// an errgroup.Group with SetLimit, rather than dispatching every probe at
// once: a 100k-task run must not open 100k simultaneous HEAD/stat calls.
// Each goroutine writes only its own index of exists, so no further
// synchronization is needed once g.Wait returns.
func (e *Executor) probeExisting(ctx context.Context, tasks []TransferTask) map[int]bool {
	skip := map[int]bool{}
	if e.Destination == nil {
		return skip
	}
	if pw, ok := e.Destination.(prewalker); ok {
		_ = pw.Prewalk()
	}

	exists := make([]bool, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.probeConcurrency())
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			uri := e.Destination.DestinationURI(t.TargetKey)
			ok, err := e.Destination.Exists(gctx, uri)
			if err == nil {
				exists[i] = ok
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range exists {
		if ok {
			skip[i] = true
		}
	}
	return skip
}

func (e *Executor) probeConcurrency() int {
	if e.Opts.MaxConcurrency <= 0 {
		return 1
	}
	return e.Opts.MaxConcurrency
}

func indicesToTasks(tasks []TransferTask, idxs []int) []TransferTask {
	out := make([]TransferTask, len(idxs))
	for i, idx := range idxs {
		out[i] = tasks[idx]
	}
	return out
}

func chunkIndices(idxs []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	if len(idxs) == 0 {
		return nil
	}
	out := make([][]int, 0, (len(idxs)+size-1)/size)
	for i := 0; i < len(idxs); i += size {
		end := i + size
		if end > len(idxs) {
			end = len(idxs)
		}
		out = append(out, idxs[i:end])
	}
	return out
}
