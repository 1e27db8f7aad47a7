// Package storage implements the Storage Abstraction (C9): computing
// destination keys for the bronze-zone lakehouse layout and probing
// existence for incremental skip.
/*
 * Copyright (c) 2026
 */
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
)

const exchange = "binance"
const zoneBronze = "bronze"

// LakehouseKey computes the bronze-zone destination key for ctx's
// dimensions:
//
//	{prefix}/{zone=bronze}/{exchange}/{market}/{data_type}/{symbol}/{interval_or_empty}/{YYYY}/{MM}/{DD-or-empty}/{filename}
//
// interval_or_empty collapses out of the path when the task has no
// interval; for monthly partitions the DD segment is omitted.
func LakehouseKey(prefix string, ctx executor.TaskContext, filename string) string {
	segs := []string{zoneBronze, exchange, string(ctx.Market), ctx.DataType, ctx.Symbol}
	if ctx.Interval != nil && *ctx.Interval != "" {
		segs = append(segs, *ctx.Interval)
	}

	year, month, day := splitDate(ctx)
	segs = append(segs, year, month)
	if ctx.Partition == matrix.PartitionDaily && day != "" {
		segs = append(segs, day)
	}
	segs = append(segs, filename)

	key := strings.Join(segs, "/")
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key
}

// splitDate extracts YYYY, MM, DD from ctx.Date, which is either
// "YYYY-MM-DD" (daily partition) or "YYYY-MM" (monthly partition).
func splitDate(ctx executor.TaskContext) (year, month, day string) {
	parts := strings.Split(ctx.Date, "-")
	if len(parts) >= 2 {
		year, month = parts[0], parts[1]
	}
	if len(parts) >= 3 {
		day = parts[2]
	}
	return
}

// ManifestKey returns the key at which the run manifest is persisted.
func ManifestKey(prefix, runID string) string {
	key := path.Join("_manifest", runID+".json")
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key
}

// Backend abstracts the destination: either a local directory or an
// S3-compatible bucket. Put writes the bytes the traditional strategy
// streams in; DeleteBestEffort cleans up a partial write.
type Backend interface {
	// DestinationURI computes the fully-qualified destination URI for
	// a task's target key (file://... or s3://bucket/prefix/...).
	DestinationURI(targetKey string) string
	// Exists probes whether uri already has an object/file at rest.
	Exists(ctx context.Context, uri string) (bool, error)
	// Put writes data to the given destination URI. It does not close
	// data; the caller owns it.
	Put(ctx context.Context, uri string, size int64, data Reader) error
	// DeleteBestEffort removes uri, swallowing any error. Used to clean
	// up a partial write after Put fails mid-stream.
	DeleteBestEffort(ctx context.Context, uri string)
	// IsObjectStore reports whether this backend is S3-compatible,
	// which the Mode Selector needs to decide direct-sync eligibility.
	IsObjectStore() bool
}

// Reader is the minimal streaming-write contract Put needs; satisfied
// by *os.File, an http.Response.Body, etc.
type Reader interface {
	Read(p []byte) (int, error)
}

// NewBackend constructs the Backend a normalized request's destination
// names: an S3Backend for an object-store destination, a LocalBackend
// otherwise. Exactly one of dest's two shapes is populated, guaranteed
// by collect.Validate's destination check.
func NewBackend(dest collect.Destination) (Backend, error) {
	if dest.IsObjectStore() {
		return NewS3Backend(dest.ObjectStoreBucket, dest.Prefix, dest.Region)
	}
	return NewLocalBackend(dest.LocalDirectory), nil
}

// ParseS3URI splits an s3://bucket/key URI. Returns an error if uri
// does not have the s3 scheme.
func ParseS3URI(uri string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("not an s3 uri: %s", uri)
	}
	rest := uri[len(scheme):]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return rest, "", nil
	}
	return rest[:idx], rest[idx+1:], nil
}
