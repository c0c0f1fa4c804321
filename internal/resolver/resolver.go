package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fillScope/internal/chain"
	"fillScope/internal/metrics"
	"fillScope/internal/model"
)

// Mode selects which side of the target a resolution settles on.
type Mode int

const (
	// Before resolves to the last block whose timestamp is not after the target.
	Before Mode = iota
	// After resolves to the first block whose timestamp is not before the target.
	After
)

func (m Mode) String() string {
	if m == After {
		return "after"
	}
	return "before"
}

var (
	ErrEmptyInterval     = errors.New("empty search interval")
	ErrTargetBeforeRange = errors.New("target precedes search interval")
	ErrHeadBehindTarget  = errors.New("chain head is behind target")
)

// ResolveError describes a failed resolution.
type ResolveError struct {
	Target uint64
	Low    uint64
	High   uint64
	Mode   Mode
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s %d in [%d, %d]: %v", e.Mode, e.Target, e.Low, e.High, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Resolver maps timestamps to block numbers by binary search.
type Resolver struct {
	cache   *BlockCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cache *BlockCache, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: cache, logger: logger, metrics: m}
}

// Resolve searches [low, high] for target. An exact timestamp match returns
// immediately in both modes. Otherwise Before returns the last block stamped
// before target and After the first block stamped after it. A block the node
// does not have is never returned; the search probes the nearest block that
// exists inside the current bounds instead.
func (r *Resolver) Resolve(ctx context.Context, target, low, high uint64, mode Mode) (uint64, error) {
	fail := func(err error) error {
		return &ResolveError{Target: target, Low: low, High: high, Mode: mode, Err: err}
	}
	if high < low {
		return 0, fail(ErrEmptyInterval)
	}

	lo, hi := low, high
	var before, after uint64
	var hasBefore, hasAfter, seen bool
	steps := 0
search:
	for lo <= hi {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		steps++
		mid := lo + (hi-lo)/2

		ref, found, err := r.nearest(ctx, mid, lo, hi, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, fail(err)
		}
		if !found {
			break
		}
		seen = true

		switch {
		case ref.Timestamp < target:
			before, hasBefore = ref.Number, true
			// blocks between ref and mid are missing
			next := max(ref.Number, mid)
			if next == hi {
				break search
			}
			lo = next + 1
		case ref.Timestamp > target:
			after, hasAfter = ref.Number, true
			// ref above mid means [lo, ref) is missing
			if ref.Number == lo || ref.Number > mid {
				break search
			}
			hi = ref.Number - 1
		default:
			r.logger.Debug("exact block match", zap.Uint64("block", ref.Number), zap.Int("steps", steps))
			return ref.Number, nil
		}
	}

	r.logger.Debug("search converged", zap.Stringer("mode", mode), zap.Bool("has_before", hasBefore), zap.Bool("has_after", hasAfter), zap.Int("steps", steps))

	if !seen {
		return 0, fail(chain.ErrBlockNotFound)
	}
	if mode == Before {
		if !hasBefore {
			return 0, fail(ErrTargetBeforeRange)
		}
		return before, nil
	}
	if !hasAfter {
		return 0, fail(ErrHeadBehindTarget)
	}
	return after, nil
}

// nearest returns mid, or when the node lacks it the closest existing block
// in [lo, mid) scanning down and then in (mid, hi] scanning up. found is false
// when every block in [lo, hi] is missing.
func (r *Resolver) nearest(ctx context.Context, mid, lo, hi, target uint64) (model.BlockRef, bool, error) {
	ref, err := r.cache.GetOrFetch(ctx, mid)
	if err == nil {
		return ref, true, nil
	}
	if !errors.Is(err, chain.ErrBlockNotFound) {
		return model.BlockRef{}, false, err
	}
	r.logger.Warn("block missing during search, probing neighbours", zap.Uint64("block", mid), zap.Uint64("target", target))

	for n := mid; n > lo; {
		n--
		ref, err := r.cache.GetOrFetch(ctx, n)
		if err == nil {
			return ref, true, nil
		}
		if !errors.Is(err, chain.ErrBlockNotFound) {
			return model.BlockRef{}, false, err
		}
	}
	for n := mid; n < hi; {
		n++
		ref, err := r.cache.GetOrFetch(ctx, n)
		if err == nil {
			return ref, true, nil
		}
		if !errors.Is(err, chain.ErrBlockNotFound) {
			return model.BlockRef{}, false, err
		}
	}
	return model.BlockRef{}, false, nil
}
