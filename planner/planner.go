// Package planner implements the Task Planner (C3): it expands a
// normalized collection request against the availability matrix into a
// deduplicated, deterministically ordered slice of transfer tasks.
/*
 * Copyright (c) 2026
 */
package planner

import (
	"sort"
	"time"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
	"github.com/tommy-ca/binance-datatool-sub005/storage"
)

// Plan expands req against m into a deduplicated, ordering-stable slice
// of TransferTask via nested iteration: market -> data_type ->
// partition -> symbol -> interval -> date, each dimension sorted,
// skipping absent matrix rows and not-yet-available dates silently.
func Plan(req *collect.NormalizedRequest, m *matrix.AvailabilityMatrix) ([]executor.TransferTask, error) {
	prefix := req.Destination.Prefix

	var tasks []executor.TransferTask
	seen := make(map[string]struct{})

	markets := append([]matrix.Market(nil), req.Markets...)
	sort.Slice(markets, func(i, j int) bool { return markets[i] < markets[j] })

	dataTypes := append([]string(nil), req.DataTypes...)
	sort.Strings(dataTypes)

	for _, mk := range markets {
		for _, dt := range dataTypes {
			entry := m.Lookup(mk, dt)
			if entry == nil {
				continue
			}

			partitions := intersectSortedPartitions(req.Partitions, entry)
			symbols := append([]string(nil), req.Symbols[mk]...)
			sort.Strings(symbols)
			intervals := req.Intervals[dt]
			if len(intervals) == 0 {
				intervals = []*string{nil}
			}

			for _, part := range partitions {
				for _, symbol := range symbols {
					for _, interval := range intervals {
						dates, err := iterDates(req.DateRange.Start, req.DateRange.End, part)
						if err != nil {
							return nil, err
						}
						for _, date := range dates {
							if dateBefore(date, entry.AvailableFrom) {
								continue
							}
							task := buildTask(prefix, entry, m.FileFormat.ChecksumFiles, mk, dt, symbol, interval, part, date)
							if _, dup := seen[task.SourceURI]; dup {
								continue
							}
							seen[task.SourceURI] = struct{}{}
							tasks = append(tasks, task)
						}
					}
				}
			}
		}
	}

	return tasks, nil
}

func buildTask(prefix string, entry *matrix.Entry, hasChecksum bool, mk matrix.Market, dt, symbol string, interval *string, part matrix.Partition, date string) executor.TransferTask {
	values := map[string]string{
		"partition":   string(part),
		"market_path": mk.MarketPath(),
		"data_type":   dt,
		"symbol":      symbol,
		"date":        date,
	}
	if interval != nil {
		values["interval"] = *interval
	}

	filename := matrix.Expand(entry.FilenamePattern, values)
	values["filename"] = filename
	source := matrix.Expand(entry.URLPattern, values)

	ctx := executor.TaskContext{
		Market: mk, DataType: dt, Symbol: symbol, Interval: interval, Date: date, Partition: part,
	}

	task := executor.TransferTask{
		SourceURI: source,
		TargetKey: storage.LakehouseKey(prefix, ctx, filename),
		Context:   ctx,
	}
	if hasChecksum {
		task.ChecksumSourceURI = source + ".CHECKSUM"
	}
	return task
}

// intersectSortedPartitions returns the requested partitions entry
// actually supports, sorted.
func intersectSortedPartitions(requested []matrix.Partition, entry *matrix.Entry) []matrix.Partition {
	var out []matrix.Partition
	for _, p := range requested {
		if entry.HasPartition(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dateBefore reports whether date (YYYY-MM-DD or YYYY-MM) is strictly
// before availableFrom (YYYY-MM-DD), comparing at day granularity: a
// monthly date is compared against the first of that month.
func dateBefore(date, availableFrom string) bool {
	d := date
	if len(d) == 7 { // YYYY-MM
		d += "-01"
	}
	return d < availableFrom
}

// iterDates enumerates the date range [start, end] in part's unit:
// one entry per UTC day for daily, one entry per calendar month
// (YYYY-MM) for monthly.
func iterDates(start, end string, part matrix.Partition) ([]string, error) {
	s, err := cmn.ParseDate(start)
	if err != nil {
		return nil, err
	}
	e, err := cmn.ParseDate(end)
	if err != nil {
		return nil, err
	}
	if e.Before(s) {
		return nil, nil
	}

	var out []string
	if part == matrix.PartitionMonthly {
		cur := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(e.Year(), e.Month(), 1, 0, 0, 0, 0, time.UTC)
		seen := map[string]struct{}{}
		for !cur.After(last) {
			m := cmn.FormatMonth(cur)
			if _, dup := seen[m]; !dup {
				out = append(out, m)
				seen[m] = struct{}{}
			}
			cur = cur.AddDate(0, 1, 0)
		}
		return out, nil
	}

	for cur := s; !cur.After(e); cur = cur.AddDate(0, 0, 1) {
		out = append(out, cmn.FormatDate(cur))
	}
	return out, nil
}
