package indexer

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fillScope/internal/event"
	"fillScope/internal/metrics"
	"fillScope/internal/model"
)

// DefaultWorkers is the number of sub-ranges fetched concurrently.
const DefaultWorkers = 4

// LogSource fetches the logs matching one planned query.
type LogSource interface {
	GetLogs(ctx context.Context, query model.LogQuery) ([]model.LogRecord, error)
}

// RecordWriter receives JSON-serializable values in fold order.
type RecordWriter interface {
	Write(v interface{}) error
}

// PipelineConfig holds the log filter and fan-out settings.
type PipelineConfig struct {
	Address common.Address
	Topic0  common.Hash
	MaxSpan uint32
	Workers int
}

// Outputs are optional per-log outputs written while folding.
type Outputs struct {
	// Records receives each decoded record's Record() value.
	Records RecordWriter
	// Rejects receives a model.DecodeError per malformed log.
	Rejects RecordWriter
	// FirstLog is called once with the first log of the run.
	FirstLog func(model.LogRecord) error
}

// Pipeline aggregates the volume of one event over a block range.
type Pipeline struct {
	cfg     PipelineConfig
	source  LogSource
	decoder event.Decoder
	outputs Outputs
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPipeline builds a Pipeline. A zero Topic0 defaults to the decoder's.
func NewPipeline(cfg PipelineConfig, source LogSource, decoder event.Decoder, logger *zap.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("log source is nil")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSpan == 0 {
		cfg.MaxSpan = DefaultMaxSpan
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Topic0 == (common.Hash{}) {
		cfg.Topic0 = decoder.Topic0()
	}
	if cfg.Topic0 != decoder.Topic0() {
		logger.Warn("topic0 differs from decoder event, matching logs will be counted as malformed",
			zap.String("topic0", cfg.Topic0.Hex()),
			zap.String("event", decoder.Name()),
			zap.String("event_topic0", decoder.Topic0().Hex()),
		)
	}
	return &Pipeline{
		cfg:     cfg,
		source:  source,
		decoder: decoder,
		logger:  logger,
		metrics: m,
	}, nil
}

// SetOutputs installs the optional per-log outputs.
func (p *Pipeline) SetOutputs(out Outputs) {
	p.outputs = out
}

// run is the mutable state of one Run call.
type run struct {
	id        string
	total     *big.Int
	logCount  uint64
	malformed uint64
	failed    uint64
	ranges    []model.RangeStat
	sawFirst  bool
}

// Run fetches and folds every sub-range of r. Sub-ranges whose query fails
// after retries are recorded as failed and the run continues. Results are
// folded in ascending sub-range order regardless of fetch order.
func (p *Pipeline) Run(ctx context.Context, r model.BlockRange) (model.AggregateResult, error) {
	if err := r.Validate(); err != nil {
		return model.AggregateResult{}, fmt.Errorf("plan range: %w", err)
	}
	if p.cfg.MaxSpan == 0 {
		return model.AggregateResult{}, fmt.Errorf("plan range: max span must be greater than zero")
	}
	queries := slices.Collect(Plan(r, p.cfg.MaxSpan, p.cfg.Address, p.cfg.Topic0))

	st := &run{
		id:     uuid.NewString(),
		total:  new(big.Int),
		ranges: make([]model.RangeStat, 0, len(queries)),
	}
	logger := p.logger.With(zap.String("run_id", st.id))
	logger.Info("aggregation started",
		zap.String("event", p.decoder.Name()),
		zap.Uint64("start_block", r.StartBlock),
		zap.Uint64("end_block", r.EndBlock),
		zap.Int("sub_ranges", len(queries)),
		zap.Int("workers", p.cfg.Workers),
	)

	batches := make([]batch, len(queries))
	ready := make([]chan struct{}, len(queries))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.cfg.Workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, q := range queries {
			g.Go(func() error {
				defer close(ready[i])
				batches[i] = p.fetch(gctx, q)
				return nil
			})
		}
		_ = g.Wait()
	}()
	stop := func(err error) (model.AggregateResult, error) {
		cancel()
		<-done
		return model.AggregateResult{}, err
	}

	for i := range queries {
		select {
		case <-ready[i]:
		case <-ctx.Done():
			return stop(ctx.Err())
		}
		if err := ctx.Err(); err != nil {
			return stop(err)
		}
		if err := p.fold(st, batches[i], logger); err != nil {
			return stop(err)
		}
		batches[i] = batch{}
	}
	<-done
	if err := ctx.Err(); err != nil {
		return model.AggregateResult{}, err
	}

	result := model.AggregateResult{
		RunID:                  st.id,
		Event:                  p.decoder.Name(),
		StartBlock:             r.StartBlock,
		EndBlock:               r.EndBlock,
		TotalTakerAmountFilled: st.total,
		LogCount:               st.logCount,
		MalformedCount:         st.malformed,
		FailedRangeCount:       st.failed,
		Ranges:                 st.ranges,
	}
	fields := []zap.Field{
		zap.String("total", st.total.String()),
		zap.Uint64("log_count", st.logCount),
		zap.Uint64("malformed", st.malformed),
		zap.Uint64("failed_ranges", st.failed),
	}
	if result.Partial() {
		logger.Warn("aggregation finished with failed sub-ranges", fields...)
	} else {
		logger.Info("aggregation finished", fields...)
	}
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, q model.LogQuery) batch {
	if err := ctx.Err(); err != nil {
		return batch{query: q, err: err}
	}
	logs, err := p.source.GetLogs(ctx, q)
	if err != nil {
		return batch{query: q, err: err}
	}
	return decodeBatch(q, logs, p.decoder)
}

func (p *Pipeline) fold(st *run, b batch, logger *zap.Logger) error {
	stat := model.RangeStat{FromBlock: b.query.FromBlock, ToBlock: b.query.ToBlock}
	if b.err != nil {
		stat.Failed = true
		stat.Error = b.err.Error()
		st.failed++
		st.ranges = append(st.ranges, stat)
		p.metrics.Range("failed")
		logger.Warn("sub-range failed, skipping",
			zap.Uint64("from", b.query.FromBlock),
			zap.Uint64("to", b.query.ToBlock),
			zap.Error(b.err),
		)
		return nil
	}

	if b.first != nil && !st.sawFirst {
		st.sawFirst = true
		if p.outputs.FirstLog != nil {
			if err := p.outputs.FirstLog(*b.first); err != nil {
				return fmt.Errorf("write first log: %w", err)
			}
		}
	}

	for _, rec := range b.records {
		st.total.Add(st.total, rec.Volume())
		st.logCount++
		if p.outputs.Records != nil {
			if err := p.outputs.Records.Write(rec.Record()); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
	for _, reject := range b.rejects {
		logger.Warn("malformed log skipped",
			zap.Uint64("block", reject.BlockNumber),
			zap.String("tx_hash", reject.TxHash),
			zap.Uint64("log_index", reject.LogIndex),
			zap.String("error", reject.Error),
		)
		if p.outputs.Rejects != nil {
			if err := p.outputs.Rejects.Write(reject); err != nil {
				return fmt.Errorf("write reject: %w", err)
			}
		}
	}

	stat.LogCount = uint64(len(b.records))
	stat.Malformed = uint64(len(b.rejects))
	st.malformed += stat.Malformed
	st.ranges = append(st.ranges, stat)

	p.metrics.Range("ok")
	p.metrics.Logs("decoded", len(b.records))
	p.metrics.Logs("malformed", len(b.rejects))
	logger.Info("sub-range folded",
		zap.Uint64("from", b.query.FromBlock),
		zap.Uint64("to", b.query.ToBlock),
		zap.Int("logs", len(b.records)),
		zap.Int("malformed", len(b.rejects)),
	)
	return nil
}
