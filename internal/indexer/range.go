package indexer

import (
	"fmt"
	"iter"

	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/model"
)

// DefaultMaxSpan is the largest block span requested in one eth_getLogs call.
const DefaultMaxSpan uint32 = 2000

// SplitRange splits an inclusive block range into ascending batches of at
// most span blocks.
func SplitRange(r model.BlockRange, span uint64) ([]model.BlockRange, error) {
	if span == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	ranges := make([]model.BlockRange, 0, r.Len()/span+1)
	start := r.StartBlock
	for {
		end := r.EndBlock
		if end-start >= span {
			end = start + span - 1
		}
		ranges = append(ranges, model.BlockRange{StartBlock: start, EndBlock: end})
		if end == r.EndBlock {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// Plan lazily yields one LogQuery per sub-range of r, in ascending order.
// Each iteration starts over from r.StartBlock. An inverted range or a zero
// span yields nothing; SplitRange reports those as errors.
func Plan(r model.BlockRange, maxSpan uint32, address common.Address, topic0 common.Hash) iter.Seq[model.LogQuery] {
	return func(yield func(model.LogQuery) bool) {
		if maxSpan == 0 || r.Validate() != nil {
			return
		}
		span := uint64(maxSpan)
		start := r.StartBlock
		for {
			end := r.EndBlock
			if end-start >= span {
				end = start + span - 1
			}
			q := model.LogQuery{FromBlock: start, ToBlock: end, Address: address, Topic0: topic0}
			if !yield(q) || end == r.EndBlock {
				return
			}
			start = end + 1
		}
	}
}
