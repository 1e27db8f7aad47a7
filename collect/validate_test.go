package collect_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
)

func testMatrix(t *testing.T) *matrix.AvailabilityMatrix {
	t.Helper()
	m, err := matrix.Decode(strings.NewReader(`{
		"availability_matrix": [
			{
				"market": "spot",
				"data_type": "klines",
				"intervals": ["1h", "1d"],
				"partitions": ["daily", "monthly"],
				"available_from": "2017-08-17",
				"url_pattern": "s3://archive/data/{partition}/{market_path}/{data_type}/{symbol}/{interval}/{filename}",
				"filename_pattern": "{symbol}-{interval}-{date}.zip"
			}
		],
		"symbols": {"spot": ["BTCUSDT"]},
		"file_format": {"compression": "zip", "content_format": "csv", "checksum_files": true}
	}`))
	if err != nil {
		t.Fatalf("bad fixture matrix: %v", err)
	}
	return m
}

func TestValidateDefaults(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:   []matrix.Market{matrix.MarketSpot},
		DataTypes: []string{"klines"},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	norm, err := collect.Validate(req, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", norm.MaxConcurrency)
	}
	if norm.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", norm.BatchSize)
	}
	if norm.Mode != collect.ModeAuto {
		t.Errorf("Mode = %q, want auto", norm.Mode)
	}
	if !norm.Incremental {
		t.Error("Incremental should default true")
	}
	if len(norm.Partitions) != 1 || norm.Partitions[0] != matrix.PartitionDaily {
		t.Errorf("Partitions = %v, want [daily]", norm.Partitions)
	}
	ivs := norm.Intervals["klines"]
	if len(ivs) != 1 || ivs[0] == nil || *ivs[0] != "1h" {
		t.Errorf("Intervals[klines] = %v, want [1h]", ivs)
	}
}

func TestValidateFlatSymbolsReplicated(t *testing.T) {
	m := testMatrix(t)
	var req collect.CollectionRequest
	rawReq := `{
		"markets": ["spot"],
		"data_types": ["klines"],
		"symbols": ["BTCUSDT", "ETHUSDT"],
		"destination": {"local_directory": "/tmp/out"}
	}`
	if err := json.Unmarshal([]byte(rawReq), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	norm, err := collect.Validate(&req, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := norm.Symbols[matrix.MarketSpot]
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Errorf("Symbols[spot] = %v", got)
	}
}

func TestValidateRejectsMissingDataType(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:     []matrix.Market{matrix.MarketSpot},
		DataTypes:   []string{"nonexistent"},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	_, err := collect.Validate(req, m)
	if err == nil {
		t.Fatal("expected error for unknown data type")
	}
	if !strings.Contains(err.Error(), "klines") {
		t.Fatalf("expected error to list available data types, got: %v", err)
	}
}

func TestValidateRejectsBadInterval(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:     []matrix.Market{matrix.MarketSpot},
		DataTypes:   []string{"klines"},
		Intervals:   map[string][]*string{"klines": {strPtr("5m")}},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	if _, err := collect.Validate(req, m); err == nil {
		t.Fatal("expected error for interval not in matrix")
	}
}

func TestValidateClampsStartToAvailableFrom(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:     []matrix.Market{matrix.MarketSpot},
		DataTypes:   []string{"klines"},
		DateRange:   &collect.DateRange{Start: "2010-01-01", End: "2017-09-01"},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	norm, err := collect.Validate(req, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm.DateRange.Start != "2017-08-17" {
		t.Errorf("DateRange.Start = %q, want clamped to 2017-08-17", norm.DateRange.Start)
	}
}

func TestValidateRejectsEndBeforeStart(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:     []matrix.Market{matrix.MarketSpot},
		DataTypes:   []string{"klines"},
		DateRange:   &collect.DateRange{Start: "2025-07-15", End: "2025-07-01"},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	if _, err := collect.Validate(req, m); err == nil {
		t.Fatal("expected error for end < start")
	}
}

func TestValidateRejectsBadConcurrencyAndBatchSize(t *testing.T) {
	m := testMatrix(t)
	base := collect.CollectionRequest{
		Markets:     []matrix.Market{matrix.MarketSpot},
		DataTypes:   []string{"klines"},
		Destination: collect.Destination{LocalDirectory: "/tmp/out"},
	}
	tooHighConc := base
	tooHighConc.MaxConcurrency = 65
	if _, err := collect.Validate(&tooHighConc, m); err == nil {
		t.Fatal("expected error for max_concurrency > 64")
	}

	tooHighBatch := base
	tooHighBatch.BatchSize = 501
	if _, err := collect.Validate(&tooHighBatch, m); err == nil {
		t.Fatal("expected error for batch_size > 500")
	}
}

func TestValidateRejectsAmbiguousDestination(t *testing.T) {
	m := testMatrix(t)
	req := &collect.CollectionRequest{
		Markets:   []matrix.Market{matrix.MarketSpot},
		DataTypes: []string{"klines"},
	}
	if _, err := collect.Validate(req, m); err == nil {
		t.Fatal("expected error for missing destination")
	}
	req.Destination = collect.Destination{LocalDirectory: "/tmp/out", ObjectStoreBucket: "b"}
	if _, err := collect.Validate(req, m); err == nil {
		t.Fatal("expected error for both destinations set")
	}
}

func strPtr(s string) *string { return &s }
