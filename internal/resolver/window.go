package resolver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fillScope/internal/model"
)

// DefaultBlockTime is the average block interval used for the lower-bound
// estimate when none is configured.
const DefaultBlockTime = 2 * time.Second

// DefaultHintMargin is subtracted from the estimated lower bound.
const DefaultHintMargin uint64 = 2000

// WindowRange is the block range covering a time window.
type WindowRange struct {
	Range    model.BlockRange
	Window   model.TimeWindow
	Head     model.HeadSnapshot
	Complete bool
}

// File returns the persisted block-range layout for the resolution.
func (w WindowRange) File() model.BlockRangeFile {
	return model.NewBlockRangeFile(w.Range, w.Window, w.Complete)
}

// EstimateLowerBound guesses a block at or before target by walking back
// from the head at blockTime per block, then subtracting margin blocks.
func EstimateLowerBound(head model.HeadSnapshot, target uint64, blockTime time.Duration, margin uint64) uint64 {
	if blockTime <= 0 {
		blockTime = DefaultBlockTime
	}
	if target >= head.Timestamp {
		if head.BlockNumber > margin {
			return head.BlockNumber - margin
		}
		return 0
	}

	back := uint64(time.Duration(head.Timestamp-target) * time.Second / blockTime)
	back += margin
	if back >= head.BlockNumber {
		return 0
	}
	return head.BlockNumber - back
}

// LowerBound returns a verified search low bound for target: the estimate
// when its timestamp is not after target, 0 otherwise.
func (r *Resolver) LowerBound(ctx context.Context, head model.HeadSnapshot, target uint64, blockTime time.Duration, margin uint64) uint64 {
	hint := EstimateLowerBound(head, target, blockTime, margin)
	if hint == 0 {
		return 0
	}

	ref, err := r.cache.GetOrFetch(ctx, hint)
	if err != nil {
		r.logger.Warn("lower bound hint unavailable, searching from genesis", zap.Uint64("hint", hint), zap.Error(err))
		return 0
	}
	if ref.Timestamp > target {
		r.logger.Warn("lower bound hint past target, searching from genesis",
			zap.Uint64("hint", hint),
			zap.Uint64("hint_timestamp", ref.Timestamp),
			zap.Uint64("target", target),
		)
		return 0
	}
	return hint
}

// ResolveWindow finds the block range for window within [low, head]. The
// start boundary resolves Before and the end boundary After, searching from
// the start block. An end boundary beyond the head is clamped to the head
// and the result is marked incomplete.
func (r *Resolver) ResolveWindow(ctx context.Context, window model.TimeWindow, low uint64, head model.HeadSnapshot) (WindowRange, error) {
	out := WindowRange{Window: window, Head: head}
	if err := window.Validate(); err != nil {
		return out, err
	}
	if head.Timestamp < window.StartUnix {
		return out, &ResolveError{Target: window.StartUnix, Low: low, High: head.BlockNumber, Mode: Before, Err: ErrHeadBehindTarget}
	}

	start, err := r.Resolve(ctx, window.StartUnix, low, head.BlockNumber, Before)
	if err != nil && low > 0 && errors.Is(err, ErrTargetBeforeRange) {
		r.logger.Warn("window start precedes lower bound, retrying from genesis", zap.Uint64("low", low))
		start, err = r.Resolve(ctx, window.StartUnix, 0, head.BlockNumber, Before)
	}
	if err != nil {
		return out, err
	}
	r.metrics.Resolved("start", start)

	end, err := r.Resolve(ctx, window.EndUnix, start, head.BlockNumber, After)
	complete := true
	if errors.Is(err, ErrHeadBehindTarget) {
		r.logger.Warn("window end beyond chain head, clamping",
			zap.Uint64("window_end", window.EndUnix),
			zap.Uint64("head", head.BlockNumber),
			zap.Uint64("head_timestamp", head.Timestamp),
		)
		end, err, complete = head.BlockNumber, nil, false
	}
	if err != nil {
		return out, err
	}
	r.metrics.Resolved("end", end)

	out.Range = model.BlockRange{StartBlock: start, EndBlock: end}
	out.Complete = complete
	r.logger.Info("window resolved",
		zap.Uint64("start_block", start),
		zap.Uint64("end_block", end),
		zap.Bool("window_complete", complete),
		zap.Int("cached_blocks", r.cache.Len()),
	)
	return out, nil
}
