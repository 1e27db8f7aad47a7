// Package collect defines the user-facing CollectionRequest and the
// Config Validator that normalizes it against an availability matrix.
/*
 * Copyright (c) 2026
 */
package collect

import (
	"encoding/json"

	"gopkg.in/yaml.v2"

	"github.com/tommy-ca/binance-datatool-sub005/matrix"
)

// Mode selects how the batch executor moves bytes for a run.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeDirect      Mode = "direct"
	ModeHybrid      Mode = "hybrid"
	ModeTraditional Mode = "traditional"
)

// DateRange is an inclusive [Start, End] range of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Destination is exactly one of a local directory or an object-store
// bucket+prefix.
type Destination struct {
	LocalDirectory string `json:"local_directory,omitempty" yaml:"local_directory,omitempty"`

	ObjectStoreBucket string `json:"object_store_bucket,omitempty" yaml:"object_store_bucket,omitempty"`
	Prefix            string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region            string `json:"region,omitempty" yaml:"region,omitempty"`
}

// IsObjectStore reports whether the destination is an S3-compatible
// bucket rather than a local directory.
func (d Destination) IsObjectStore() bool { return d.ObjectStoreBucket != "" }

// symbolsField accepts either a flat JSON array (applied to every
// requested market) or a map of market -> []string, since operators'
// config files mix both shapes; this type normalizes either into a map
// via UnmarshalJSON.
type symbolsField map[matrix.Market][]string

func (s *symbolsField) UnmarshalJSON(b []byte) error {
	var flat []string
	if err := json.Unmarshal(b, &flat); err == nil {
		*s = symbolsField{"": flat} // "" is resolved to every requested market during normalization
		return nil
	}
	var m map[matrix.Market][]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = symbolsField(m)
	return nil
}

func (s symbolsField) MarshalJSON() ([]byte, error) {
	if flat, ok := s[""]; ok && len(s) == 1 {
		return json.Marshal(flat)
	}
	return json.Marshal(map[matrix.Market][]string(s))
}

// UnmarshalYAML mirrors UnmarshalJSON's flat-list-or-per-market-map
// leniency for YAML config files.
func (s *symbolsField) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var flat []string
	if err := unmarshal(&flat); err == nil {
		*s = symbolsField{"": flat}
		return nil
	}
	var m map[matrix.Market][]string
	if err := unmarshal(&m); err != nil {
		return err
	}
	*s = symbolsField(m)
	return nil
}

func (s symbolsField) MarshalYAML() (interface{}, error) {
	if flat, ok := s[""]; ok && len(s) == 1 {
		return flat, nil
	}
	return map[matrix.Market][]string(s), nil
}

// CollectionRequest is the user's declarative collection request.
type CollectionRequest struct {
	Markets    []matrix.Market      `json:"markets" yaml:"markets"`
	Symbols    symbolsField         `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	DataTypes  []string             `json:"data_types" yaml:"data_types"`
	Intervals  map[string][]*string `json:"intervals,omitempty" yaml:"intervals,omitempty"`
	DateRange  *DateRange           `json:"date_range,omitempty" yaml:"date_range,omitempty"`
	Partitions []matrix.Partition   `json:"partitions,omitempty" yaml:"partitions,omitempty"`

	Destination Destination `json:"destination" yaml:"destination"`

	BatchSize      int   `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxConcurrency int   `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	TimeoutSeconds int   `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	VerifyChecksum bool  `json:"verify_checksum,omitempty" yaml:"verify_checksum,omitempty"`
	Force          bool  `json:"force,omitempty" yaml:"force,omitempty"`
	Mode           Mode  `json:"mode,omitempty" yaml:"mode,omitempty"`
	Incremental    *bool `json:"incremental,omitempty" yaml:"incremental,omitempty"`

	// UnsignedRequest and PartSizeMiB are carried into the bulk-tool
	// invocation (transfer.ToolAdapter) as its unsigned-request flag and
	// multipart threshold.
	UnsignedRequest bool `json:"unsigned_request,omitempty" yaml:"unsigned_request,omitempty"`
	PartSizeMiB     int  `json:"part_size_mib,omitempty" yaml:"part_size_mib,omitempty"`
}

// SetFlatSymbols sets Symbols to a flat list applied to every requested
// market, the programmatic equivalent of a JSON array `"symbols": [...]`.
func (r *CollectionRequest) SetFlatSymbols(syms ...string) {
	r.Symbols = symbolsField{"": append([]string(nil), syms...)}
}

// SetSymbolsByMarket sets Symbols to a per-market map, the programmatic
// equivalent of a JSON object `"symbols": {"spot": [...], ...}`.
func (r *CollectionRequest) SetSymbolsByMarket(byMarket map[matrix.Market][]string) {
	sf := make(symbolsField, len(byMarket))
	for mk, syms := range byMarket {
		sf[mk] = append([]string(nil), syms...)
	}
	r.Symbols = sf
}

// NormalizedRequest is the output of Validate: every optional field has
// been defaulted, symbols is always a per-market map, and intervals is
// always populated for every (requested market, requested data type)
// pair that exists in the matrix.
type NormalizedRequest struct {
	Markets    []matrix.Market
	Symbols    map[matrix.Market][]string
	DataTypes  []string
	Intervals  map[string][]*string // data_type -> intervals to collect
	DateRange  DateRange
	Partitions []matrix.Partition

	Destination Destination

	BatchSize      int
	MaxConcurrency int
	TimeoutSeconds int
	VerifyChecksum bool
	Force          bool
	Mode           Mode
	Incremental    bool

	UnsignedRequest bool
	PartSizeMiB     int
}
