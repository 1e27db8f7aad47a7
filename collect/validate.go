package collect

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
)

const (
	defaultMaxConcurrency = 8
	maxMaxConcurrency     = 64
	defaultBatchSize      = 100
	maxBatchSize          = 500
	defaultPartSizeMiB    = 50
	minPartSizeMiB        = 5
	maxPartSizeMiB        = 5120
)

// Validate normalizes req against m, applying every default and
// rejection rule. It returns cmn.ErrConfigInvalid on any violation.
func Validate(req *CollectionRequest, m *matrix.AvailabilityMatrix) (*NormalizedRequest, error) {
	if err := validateInner(req, m); err != nil {
		return nil, cmn.Wrap(cmn.KindConfigInvalid, err)
	}
	return normalize(req, m), nil
}

func validateInner(req *CollectionRequest, m *matrix.AvailabilityMatrix) error {
	if len(req.Markets) == 0 {
		return errors.New("markets: must not be empty")
	}
	for _, mk := range req.Markets {
		if !mk.Valid() {
			return errors.Errorf("markets: unrecognized market %q", mk)
		}
	}
	if len(req.DataTypes) == 0 {
		return errors.New("data_types: must not be empty")
	}
	for _, dt := range req.DataTypes {
		present := false
		for _, mk := range req.Markets {
			if m.Lookup(mk, dt) != nil {
				present = true
				break
			}
		}
		if !present {
			return errors.Errorf("data_types: %q not found in matrix for any requested market (available: %s)",
				dt, strings.Join(availableDataTypes(m, req.Markets), ", "))
		}
	}

	for _, mk := range req.Markets {
		for _, dt := range req.DataTypes {
			e := m.Lookup(mk, dt)
			if e == nil {
				continue // absence for THIS market is fine, checked above across all markets
			}
			if ivs, ok := req.Intervals[dt]; ok {
				for _, iv := range ivs {
					if !e.HasIntervalValue(iv) {
						return errors.Errorf("intervals[%s]: value %v not valid for market %s", dt, derefStr(iv), mk)
					}
				}
			}
		}
	}

	if req.DateRange != nil {
		if req.DateRange.Start == "" || req.DateRange.End == "" {
			return errors.New("date_range: start and end must both be set")
		}
		start, err := cmn.ParseDate(req.DateRange.Start)
		if err != nil {
			return errors.Wrap(err, "date_range.start")
		}
		end, err := cmn.ParseDate(req.DateRange.End)
		if err != nil {
			return errors.Wrap(err, "date_range.end")
		}
		if end.Before(start) {
			return errors.New("date_range: end must not be before start")
		}
	}

	for _, p := range req.Partitions {
		if !p.Valid() {
			return errors.Errorf("partitions: unrecognized value %q", p)
		}
	}

	if req.MaxConcurrency != 0 && (req.MaxConcurrency <= 0 || req.MaxConcurrency > maxMaxConcurrency) {
		return errors.Errorf("max_concurrency: must be in (0, %d]", maxMaxConcurrency)
	}
	if req.BatchSize != 0 && (req.BatchSize <= 0 || req.BatchSize > maxBatchSize) {
		return errors.Errorf("batch_size: must be in (0, %d]", maxBatchSize)
	}
	if req.PartSizeMiB != 0 && (req.PartSizeMiB < minPartSizeMiB || req.PartSizeMiB > maxPartSizeMiB) {
		return errors.Errorf("part_size_mib: must be in [%d, %d]", minPartSizeMiB, maxPartSizeMiB)
	}

	switch req.Mode {
	case "", ModeAuto, ModeDirect, ModeHybrid, ModeTraditional:
	default:
		return errors.Errorf("mode: unrecognized value %q", req.Mode)
	}

	hasLocal := req.Destination.LocalDirectory != ""
	hasStore := req.Destination.IsObjectStore()
	if hasLocal == hasStore {
		return errors.New("destination: exactly one of local_directory or object_store_bucket must be set")
	}

	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

// availableDataTypes unions the matrix's data types across markets,
// sorted, for the invalid-data_type error message.
func availableDataTypes(m *matrix.AvailabilityMatrix, markets []matrix.Market) []string {
	seen := map[string]bool{}
	for _, mk := range markets {
		for _, dt := range m.DataTypesFor(mk) {
			seen[dt] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dt := range seen {
		out = append(out, dt)
	}
	sort.Strings(out)
	return out
}

func normalize(req *CollectionRequest, m *matrix.AvailabilityMatrix) *NormalizedRequest {
	out := &NormalizedRequest{
		Markets:         append([]matrix.Market(nil), req.Markets...),
		DataTypes:       append([]string(nil), req.DataTypes...),
		Destination:     req.Destination,
		BatchSize:       req.BatchSize,
		MaxConcurrency:  req.MaxConcurrency,
		TimeoutSeconds:  req.TimeoutSeconds,
		VerifyChecksum:  req.VerifyChecksum,
		Force:           req.Force,
		Mode:            req.Mode,
		UnsignedRequest: req.UnsignedRequest,
		PartSizeMiB:     req.PartSizeMiB,
	}
	sort.Slice(out.Markets, func(i, j int) bool { return out.Markets[i] < out.Markets[j] })
	sort.Strings(out.DataTypes)

	if out.MaxConcurrency == 0 {
		out.MaxConcurrency = defaultMaxConcurrency
	}
	if out.BatchSize == 0 {
		out.BatchSize = defaultBatchSize
	}
	if out.PartSizeMiB == 0 {
		out.PartSizeMiB = defaultPartSizeMiB
	}
	if out.Mode == "" {
		out.Mode = ModeAuto
	}
	if req.Incremental == nil {
		out.Incremental = true
	} else {
		out.Incremental = *req.Incremental
	}

	out.Partitions = append([]matrix.Partition(nil), req.Partitions...)
	if len(out.Partitions) == 0 {
		out.Partitions = []matrix.Partition{matrix.PartitionDaily}
	}

	// Flat-list symbols (keyed "") replicate across every requested
	// market; a per-market map is copied as-is.
	out.Symbols = make(map[matrix.Market][]string, len(out.Markets))
	if flat, ok := req.Symbols[""]; ok {
		for _, mk := range out.Markets {
			out.Symbols[mk] = append([]string(nil), flat...)
		}
	} else {
		for mk, syms := range req.Symbols {
			out.Symbols[mk] = append([]string(nil), syms...)
		}
	}
	for _, syms := range out.Symbols {
		sort.Strings(syms)
	}

	if req.DateRange != nil {
		out.DateRange = *req.DateRange
	} else {
		today := cmn.FormatDate(nowUTC())
		out.DateRange = DateRange{Start: today, End: today}
	}
	// Clamp start to available_from: this is data availability, not an
	// error, so the exact per-entry clamp is applied silently at plan time --
	// Validate only clamps the overall range's Start to the EARLIEST
	// available_from among matched entries, and the planner applies the
	// per-entry clamp precisely.
	var earliestAvail *time.Time
	for _, mk := range out.Markets {
		for _, dt := range out.DataTypes {
			e := m.Lookup(mk, dt)
			if e == nil {
				continue
			}
			t := e.AvailableFromTime()
			if earliestAvail == nil || t.Before(*earliestAvail) {
				earliestAvail = &t
			}
		}
	}
	if earliestAvail != nil {
		if af := cmn.FormatDate(*earliestAvail); out.DateRange.Start < af {
			out.DateRange.Start = af
		}
	}

	out.Intervals = make(map[string][]*string, len(out.DataTypes))
	for _, dt := range out.DataTypes {
		if ivs, ok := req.Intervals[dt]; ok && len(ivs) > 0 {
			out.Intervals[dt] = ivs
			continue
		}
		// Absent -> first valid interval for this data type, taken from
		// the first requested market that defines it, or [nil] if the
		// data type carries no interval dimension anywhere.
		var chosen []*string
		for _, mk := range out.Markets {
			e := m.Lookup(mk, dt)
			if e == nil {
				continue
			}
			if !e.HasInterval() {
				chosen = []*string{nil}
			} else if len(e.Intervals) > 0 {
				chosen = []*string{e.Intervals[0]}
			}
			break
		}
		if chosen == nil {
			chosen = []*string{nil}
		}
		out.Intervals[dt] = chosen
	}

	return out
}
