package model

import (
	"math/big"
)

// RangeStat is the outcome of one planned sub-range query.
type RangeStat struct {
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
	LogCount  uint64 `json:"log_count"`
	Malformed uint64 `json:"malformed_count,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AggregateResult is the final output of one pipeline run.
type AggregateResult struct {
	RunID                  string
	Event                  string
	Window                 TimeWindow
	WindowComplete         bool
	StartBlock             uint64
	EndBlock               uint64
	TotalTakerAmountFilled *big.Int
	LogCount               uint64
	MalformedCount         uint64
	FailedRangeCount       uint64
	Ranges                 []RangeStat
}

// Partial reports whether some sub-ranges could not be fetched.
func (r AggregateResult) Partial() bool {
	return r.FailedRangeCount > 0
}

// FailedRanges returns the sub-ranges that were skipped after exhausting retries.
func (r AggregateResult) FailedRanges() []RangeStat {
	out := make([]RangeStat, 0, r.FailedRangeCount)
	for _, stat := range r.Ranges {
		if stat.Failed {
			out = append(out, stat)
		}
	}
	return out
}

// Summary is the persisted per-run summary file.
type Summary struct {
	RunID          string      `json:"run_id"`
	Event          string      `json:"event"`
	WindowStart    uint64      `json:"window_start"`
	WindowEnd      uint64      `json:"window_end"`
	WindowComplete bool        `json:"window_complete"`
	StartBlock     uint64      `json:"start_block"`
	EndBlock       uint64      `json:"end_block"`
	TotalFill      string      `json:"total_fill"`
	LogCount       uint64      `json:"log_count"`
	MalformedCount uint64      `json:"malformed_count"`
	FailedRanges   []RangeStat `json:"failed_ranges"`
	RangeLogCounts []RangeStat `json:"range_log_counts"`
}

// NewSummary flattens an AggregateResult into its persisted form.
func NewSummary(r AggregateResult) Summary {
	total := "0"
	if r.TotalTakerAmountFilled != nil {
		total = r.TotalTakerAmountFilled.String()
	}
	ranges := make([]RangeStat, len(r.Ranges))
	copy(ranges, r.Ranges)
	return Summary{
		RunID:          r.RunID,
		Event:          r.Event,
		WindowStart:    r.Window.StartUnix,
		WindowEnd:      r.Window.EndUnix,
		WindowComplete: r.WindowComplete,
		StartBlock:     r.StartBlock,
		EndBlock:       r.EndBlock,
		TotalFill:      total,
		LogCount:       r.LogCount,
		MalformedCount: r.MalformedCount,
		FailedRanges:   r.FailedRanges(),
		RangeLogCounts: ranges,
	}
}
