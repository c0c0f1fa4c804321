package model

import "fmt"

// BlockRef pairs a block number with its header timestamp.
type BlockRef struct {
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
}

// HeadSnapshot records the chain head observed at the start of a run.
type HeadSnapshot struct {
	BlockNumber uint64 `json:"current_block"`
	Timestamp   uint64 `json:"unix_timestamp"`
	ObservedAt  string `json:"observed_at,omitempty"`
}

// BlockRange is an inclusive block range.
type BlockRange struct {
	StartBlock uint64 `json:"start_block"`
	EndBlock   uint64 `json:"end_block"`
}

// Validate rejects inverted ranges.
func (r BlockRange) Validate() error {
	if r.StartBlock > r.EndBlock {
		return fmt.Errorf("invalid block range: start %d > end %d", r.StartBlock, r.EndBlock)
	}
	return nil
}

// Len returns the number of blocks covered by the range.
func (r BlockRange) Len() uint64 {
	if r.StartBlock > r.EndBlock {
		return 0
	}
	return r.EndBlock - r.StartBlock + 1
}

// BlockRangeFile is the persisted output of the resolve phase.
type BlockRangeFile struct {
	StartBlock     uint64   `json:"start_block"`
	EndBlock       uint64   `json:"end_block"`
	BlockNumbers   []uint64 `json:"block_numbers"`
	WindowStart    uint64   `json:"window_start"`
	WindowEnd      uint64   `json:"window_end"`
	WindowComplete bool     `json:"window_complete"`
}

// NewBlockRangeFile expands r into the persisted block-range layout.
func NewBlockRangeFile(r BlockRange, window TimeWindow, complete bool) BlockRangeFile {
	numbers := make([]uint64, 0, r.Len())
	for n := r.StartBlock; n <= r.EndBlock; n++ {
		numbers = append(numbers, n)
		if n == r.EndBlock {
			break
		}
	}
	return BlockRangeFile{
		StartBlock:     r.StartBlock,
		EndBlock:       r.EndBlock,
		BlockNumbers:   numbers,
		WindowStart:    window.StartUnix,
		WindowEnd:      window.EndUnix,
		WindowComplete: complete,
	}
}

// Range returns the block range described by the file.
func (f BlockRangeFile) Range() BlockRange {
	if len(f.BlockNumbers) > 0 && f.StartBlock == 0 && f.EndBlock == 0 {
		return BlockRange{StartBlock: f.BlockNumbers[0], EndBlock: f.BlockNumbers[len(f.BlockNumbers)-1]}
	}
	return BlockRange{StartBlock: f.StartBlock, EndBlock: f.EndBlock}
}
