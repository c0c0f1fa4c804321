package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fillScope/internal/model"
	"fillScope/internal/storage"
)

func runHead(cmd *cobra.Command, _ []string) error {
	return execute(cmd, func(ctx context.Context, a *app) error {
		_, err := a.head(ctx)
		return err
	})
}

// head fetches the current head and persists it to the head file.
func (a *app) head(ctx context.Context) (model.HeadSnapshot, error) {
	head, err := a.client.Head(ctx)
	if err != nil {
		return model.HeadSnapshot{}, phase("head", err)
	}
	path := a.path(a.cfg.HeadFile)
	if err := storage.WriteHead(path, head); err != nil {
		return model.HeadSnapshot{}, phase("head", err)
	}
	a.logger.Info("head snapshot written",
		zap.String("path", path),
		zap.Uint64("block", head.BlockNumber),
		zap.Uint64("timestamp", head.Timestamp),
	)
	return head, nil
}
