package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fillScope/internal/event"
	"fillScope/internal/indexer"
	"fillScope/internal/model"
	"fillScope/internal/storage"
	"fillScope/internal/storage/postgres"
	redissink "fillScope/internal/storage/redis"
)

func runAggregate(cmd *cobra.Command, _ []string) error {
	return execute(cmd, func(ctx context.Context, a *app) error {
		file, err := storage.ReadBlockRange(a.path(a.cfg.RangeFile))
		if err != nil {
			return phase("aggregate", err)
		}
		_, err = a.aggregate(ctx, file)
		return err
	})
}

// aggregate sums the event volume over the range in file and hands the
// result to every configured sink.
func (a *app) aggregate(ctx context.Context, file model.BlockRangeFile) (model.AggregateResult, error) {
	result, err := a.aggregateRange(ctx, file)
	if err != nil {
		return model.AggregateResult{}, phase("aggregate", err)
	}
	return result, nil
}

func (a *app) aggregateRange(ctx context.Context, file model.BlockRangeFile) (model.AggregateResult, error) {
	decoder, err := a.decoder()
	if err != nil {
		return model.AggregateResult{}, err
	}
	address, err := indexer.ParseAddress(a.cfg.Address)
	if err != nil {
		return model.AggregateResult{}, err
	}
	var topic0 common.Hash
	if a.cfg.Topic0 != "" {
		if topic0, err = indexer.ParseTopic0(a.cfg.Topic0); err != nil {
			return model.AggregateResult{}, err
		}
	}

	pipeline, err := indexer.NewPipeline(indexer.PipelineConfig{
		Address: address,
		Topic0:  topic0,
		MaxSpan: a.cfg.MaxSpan,
		Workers: a.cfg.Workers,
	}, a.client, decoder, a.logger, a.metrics)
	if err != nil {
		return model.AggregateResult{}, err
	}

	var store *postgres.Store
	if a.cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return model.AggregateResult{}, fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return model.AggregateResult{}, err
		}
	}

	sinks := storage.MultiSink{&storage.FileSink{Dir: a.cfg.OutDir, Path: a.path(a.cfg.SummaryFile)}}
	if store != nil {
		sinks = append(sinks, store)
	}
	if a.cfg.RedisURL != "" {
		rs, err := redissink.NewSink(ctx, redissink.Config{URL: a.cfg.RedisURL, TTL: a.cfg.RedisTTL})
		if err != nil {
			return model.AggregateResult{}, err
		}
		defer rs.Close()
		sinks = append(sinks, rs)
	}

	outputs, closeOutputs, err := a.outputs(ctx, decoder, store)
	if err != nil {
		return model.AggregateResult{}, err
	}
	pipeline.SetOutputs(outputs)

	a.logger.Info("aggregate start",
		zap.String("event", decoder.Name()),
		zap.String("address", address.Hex()),
		zap.Uint64("start_block", file.StartBlock),
		zap.Uint64("end_block", file.EndBlock),
		zap.String("pg_dsn", redactDSN(a.cfg.PGDSN)),
		zap.Bool("redis", a.cfg.RedisURL != ""),
	)

	result, runErr := pipeline.Run(ctx, file.Range())
	if err := errors.Join(runErr, closeOutputs()); err != nil {
		return model.AggregateResult{}, err
	}
	result.Window = model.TimeWindow{StartUnix: file.WindowStart, EndUnix: file.WindowEnd}
	result.WindowComplete = file.WindowComplete

	if err := sinks.Write(ctx, result); err != nil {
		return model.AggregateResult{}, fmt.Errorf("write result: %w", err)
	}

	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("total", result.TotalTakerAmountFilled.String()),
		zap.Uint64("log_count", result.LogCount),
		zap.Uint64("malformed", result.MalformedCount),
		zap.String("sinks", sinks.Name()),
	}
	if result.Partial() {
		a.logger.Warn("partial result, some sub-ranges failed",
			append(fields, zap.Uint64("failed_ranges", result.FailedRangeCount))...)
	} else {
		a.logger.Info("aggregate done", fields...)
	}
	return result, nil
}

// decoder returns the ABI-driven decoder when an ABI file is configured and
// the built-in OrderFilled decoder otherwise.
func (a *app) decoder() (event.Decoder, error) {
	if a.cfg.ABIFile != "" {
		d, err := event.LoadABIDecoder(a.path(a.cfg.ABIFile), a.cfg.EventName, a.cfg.AmountField)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := event.NewOrderFilledDecoder()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// outputs opens the optional per-log outputs. The returned func flushes and
// closes them.
func (a *app) outputs(ctx context.Context, decoder event.Decoder, store *postgres.Store) (indexer.Outputs, func() error, error) {
	var (
		out     indexer.Outputs
		closers []func() error
		records teeWriter
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if a.cfg.FillsOut != "" {
		w, err := storage.NewJSONLWriter(a.path(a.cfg.FillsOut))
		if err != nil {
			return out, nil, err
		}
		closers = append(closers, w.Close)
		records = append(records, w)
	}
	if _, ok := decoder.(*event.OrderFilledDecoder); ok && store != nil {
		w := postgres.NewFillWriter(ctx, store, 0)
		closers = append(closers, w.Close)
		records = append(records, w)
	}
	if len(records) > 0 {
		out.Records = records
	}

	if a.cfg.ErrorsOut != "" {
		w, err := storage.NewJSONLWriter(a.path(a.cfg.ErrorsOut))
		if err != nil {
			return out, nil, errors.Join(err, closeAll())
		}
		closers = append(closers, w.Close)
		out.Rejects = w
	}

	if a.cfg.FirstLogOut != "" {
		path := a.path(a.cfg.FirstLogOut)
		out.FirstLog = func(log model.LogRecord) error {
			return storage.WriteJSONFile(path, log)
		}
	}
	return out, closeAll, nil
}

// teeWriter writes each record to every writer in order.
type teeWriter []indexer.RecordWriter

func (t teeWriter) Write(v interface{}) error {
	for _, w := range t {
		if err := w.Write(v); err != nil {
			return err
		}
	}
	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
