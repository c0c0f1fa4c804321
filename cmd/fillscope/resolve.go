package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fillScope/internal/model"
	"fillScope/internal/resolver"
	"fillScope/internal/storage"
)

func runResolve(cmd *cobra.Command, _ []string) error {
	useHeadFile, _ := cmd.Flags().GetBool("use-head-file")
	return execute(cmd, func(ctx context.Context, a *app) error {
		_, err := a.resolve(ctx, useHeadFile)
		return err
	})
}

// resolve maps the configured window to a block range and writes the range
// file. The head comes from the head file or a fresh snapshot.
func (a *app) resolve(ctx context.Context, useHeadFile bool) (model.BlockRangeFile, error) {
	window, err := a.cfg.Window()
	if err != nil {
		return model.BlockRangeFile{}, phase("resolve", err)
	}

	var head model.HeadSnapshot
	if useHeadFile {
		head, err = storage.ReadHead(a.path(a.cfg.HeadFile))
		if err != nil {
			return model.BlockRangeFile{}, phase("resolve", err)
		}
	} else {
		head, err = a.head(ctx)
		if err != nil {
			return model.BlockRangeFile{}, err
		}
	}

	cache := resolver.NewBlockCache(a.client, a.metrics)
	r := resolver.New(cache, a.logger, a.metrics)
	low := r.LowerBound(ctx, head, window.StartUnix, a.cfg.BlockTime, a.cfg.HintMargin)

	a.logger.Info("resolve start",
		zap.Uint64("window_start", window.StartUnix),
		zap.Uint64("window_end", window.EndUnix),
		zap.Uint64("head", head.BlockNumber),
		zap.Uint64("low", low),
	)

	wr, err := r.ResolveWindow(ctx, window, low, head)
	if err != nil {
		return model.BlockRangeFile{}, phase("resolve", err)
	}

	file := wr.File()
	path := a.path(a.cfg.RangeFile)
	if err := storage.WriteBlockRange(path, file); err != nil {
		return model.BlockRangeFile{}, phase("resolve", err)
	}

	fields := []zap.Field{
		zap.String("path", path),
		zap.Uint64("start_block", file.StartBlock),
		zap.Uint64("end_block", file.EndBlock),
		zap.Int("blocks_fetched", cache.Len()),
	}
	if !file.WindowComplete {
		a.logger.Warn("window extends past head, end block clamped", fields...)
	} else {
		a.logger.Info("block range written", fields...)
	}
	return file, nil
}
