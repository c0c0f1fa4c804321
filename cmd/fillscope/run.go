package main

import (
	"context"

	"github.com/spf13/cobra"
)

func runAll(cmd *cobra.Command, _ []string) error {
	return execute(cmd, func(ctx context.Context, a *app) error {
		file, err := a.resolve(ctx, false)
		if err != nil {
			return err
		}
		_, err = a.aggregate(ctx, file)
		return err
	})
}
