// Package workflow implements the Workflow Orchestrator (C10): it
// stitches the Config Validator, Availability Matrix, Task Planner,
// Batch Executor, and Storage Abstraction into one run with per-stage
// retry, cancellation, and a single RunManifest result.
/*
 * Copyright (c) 2026
 */
package workflow

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
	"github.com/tommy-ca/binance-datatool-sub005/manifeststore"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
	"github.com/tommy-ca/binance-datatool-sub005/planner"
	"github.com/tommy-ca/binance-datatool-sub005/storage"
	"github.com/tommy-ca/binance-datatool-sub005/transfer"
)

// Orchestrator runs one CollectionRequest through five stages:
// validate_config, load_matrix, plan, execute, persist_manifest.
//
// load_matrix's output is what validate_config needs to cross-check
// data_types and intervals against, so this implementation loads the
// matrix before running the config-against-matrix checks; the stage
// names and retry/failure semantics are otherwise unchanged, only the
// internal ordering of the first two stages is swapped from their
// left-to-right reading.
type Orchestrator struct {
	MatrixPath string
	ToolBinary string

	// CachePath, if set, backs the incremental-skip existence probe
	// with a local BuntDB cache instead of a live stat/HEAD per task on
	// every run. CacheTTL defaults to 24h when CachePath is set and
	// CacheTTL is zero.
	CachePath string
	CacheTTL  time.Duration
}

const defaultCacheTTL = 24 * time.Hour

// cachingDestination wraps a storage.Backend so the incremental-skip
// probe consults a local existence cache before falling through to a
// live probe, recording newly confirmed hits back into the cache.
type cachingDestination struct {
	storage.Backend
	cache *manifeststore.ExistenceCache
	ttl   time.Duration
}

func (c *cachingDestination) Exists(ctx context.Context, uri string) (bool, error) {
	if c.cache.Known(uri) {
		return true, nil
	}
	ok, err := c.Backend.Exists(ctx, uri)
	if err == nil && ok {
		_ = c.cache.Record(uri, c.ttl)
	}
	return ok, err
}

// DeleteBestEffort forwards to the wrapped backend, then forgets uri so
// a cache hit recorded by a previous run can never mask the fact that
// the object was just removed at rest.
func (c *cachingDestination) DeleteBestEffort(ctx context.Context, uri string) {
	c.Backend.DeleteBestEffort(ctx, uri)
	_ = c.cache.Forget(uri)
}

// Prewalk forwards to the wrapped backend's Prewalk when it has one, so
// wrapping a backend in a cache never disables that optimization.
func (c *cachingDestination) Prewalk() error {
	if pw, ok := c.Backend.(interface{ Prewalk() error }); ok {
		return pw.Prewalk()
	}
	return nil
}

// Run executes req to completion (or cancellation) and returns the
// resulting manifest. A non-nil error always corresponds to
// manifest.Status != succeeded; callers that only care about the
// machine-readable result can ignore the error and inspect manifest.
func (o *Orchestrator) Run(ctx context.Context, req collect.CollectionRequest) (*manifeststore.RunManifest, error) {
	runID := manifeststore.NewRunID()
	started := time.Now().UTC()

	m, err := o.loadMatrix(ctx)
	if err != nil {
		return o.failEarly(runID, started, err)
	}

	normalized, err := collect.Validate(&req, m)
	if err != nil {
		return o.failEarly(runID, started, err)
	}

	tasks, err := planner.Plan(normalized, m)
	if err != nil {
		return o.failEarly(runID, started, err)
	}
	glog.Infof("run %s: planned %d task(s)", runID, len(tasks))

	result, err := o.execute(ctx, normalized, tasks)
	if err != nil {
		return o.failEarly(runID, started, err)
	}

	status := manifeststore.StatusSucceeded
	if result.Cancelled {
		status = manifeststore.StatusCancelled
	}

	backend, berr := storage.NewBackend(normalized.Destination)
	if berr != nil {
		return o.failEarly(runID, started, berr)
	}
	ended := time.Now().UTC()
	mf := manifeststore.Summarize(runID, status, started, ended, result.Results, "")

	key := storage.ManifestKey(normalized.Destination.Prefix, runID)
	persistErr := cmn.Retry(ctx, 3, 2*time.Second, func() error {
		return manifeststore.Persist(ctx, backend, key, mf)
	})
	if persistErr != nil {
		mf.Status = manifeststore.StatusFailed
		mf.Error = persistErr.Error()
		return mf, cmn.Wrap(cmn.KindStorageError, persistErr)
	}
	return mf, nil
}

// loadMatrix retries once on any load error.
func (o *Orchestrator) loadMatrix(ctx context.Context) (*matrix.AvailabilityMatrix, error) {
	var m *matrix.AvailabilityMatrix
	err := cmn.Retry(ctx, 2, 1*time.Second, func() error {
		var loadErr error
		m, loadErr = matrix.Load(o.MatrixPath)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// execute builds the destination backend and transfer strategy per the
// Mode Selector's decision, then runs the Batch Executor. An
// IncompatibleMode selection fails this stage immediately, before any
// task is attempted.
func (o *Orchestrator) execute(ctx context.Context, req *collect.NormalizedRequest, tasks []executor.TransferTask) (*executor.RunResult, error) {
	rawBackend, err := storage.NewBackend(req.Destination)
	if err != nil {
		return nil, err
	}

	backend, closeCache, err := o.destination(rawBackend, req.Destination.Prefix)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	tool := transfer.NewToolAdapter(o.ToolBinary, req.MaxConcurrency, req.PartSizeMiB, req.UnsignedRequest)
	toolAvailable := tool.Available()
	destIsS3 := req.Destination.IsObjectStore()

	kind, err := transfer.SelectStrategy(req.Mode, destIsS3, toolAvailable)
	if err != nil {
		return nil, err
	}

	var primary executor.TransferStrategy
	var fallback executor.TransferStrategy
	traditional := transfer.NewTraditionalStrategy(backend, req.MaxConcurrency, req.VerifyChecksum)
	if kind == executor.StrategyDirect {
		primary = &transfer.DirectStrategy{Tool: tool, Backend: backend}
		fallback = traditional
	} else {
		primary = traditional
	}

	ex := &executor.Executor{
		Primary:     primary,
		Fallback:    fallback,
		Destination: backend,
		Opts: executor.RunOptions{
			MaxConcurrency: req.MaxConcurrency,
			BatchSize:      req.BatchSize,
			Incremental:    req.Incremental,
			Force:          req.Force,
			TaskTimeout:    time.Duration(req.TimeoutSeconds) * time.Second,
		},
	}
	return ex.Run(ctx, tasks), nil
}

// destination wraps backend in a cachingDestination when o.CachePath is
// set, so both the existence probe and the transfer strategies' writes
// go through the same cache-aware backend; returns backend unchanged
// with a no-op closer otherwise.
func (o *Orchestrator) destination(backend storage.Backend, prefix string) (storage.Backend, func(), error) {
	if o.CachePath == "" {
		return backend, func() {}, nil
	}
	cache, err := manifeststore.OpenExistenceCache(o.CachePath)
	if err != nil {
		return nil, nil, err
	}
	ttl := o.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// Cache keys are full destination URIs, so count under the URI the
	// prefix maps to rather than the bare prefix.
	if n := cache.CountPrefix(backend.DestinationURI(prefix)); n > 0 {
		glog.V(2).Infof("existence cache: %d cached key(s) already recorded under prefix %q", n, prefix)
	}
	dest := &cachingDestination{Backend: backend, cache: cache, ttl: ttl}
	return dest, func() { _ = cache.Close() }, nil
}

// failEarly builds a failed manifest for a stage error raised before
// persist_manifest: a load/validate/plan failure, or a failure setting up
// the execute stage (backend construction, IncompatibleMode). Task
// failures inside execute never reach here; they are reported through
// the manifest of a succeeded run.
func (o *Orchestrator) failEarly(runID string, started time.Time, err error) (*manifeststore.RunManifest, error) {
	ended := time.Now().UTC()
	mf := manifeststore.Summarize(runID, manifeststore.StatusFailed, started, ended, nil, err.Error())
	return mf, err
}
