package storage

import (
	"context"
	"errors"
	"fmt"

	"fillScope/internal/model"
)

// Sink receives the complete result of a run, once.
type Sink interface {
	Name() string
	Write(ctx context.Context, result model.AggregateResult) error
}

// MultiSink writes to every sink in order. A failing sink does not stop the
// others; all errors are returned together.
type MultiSink []Sink

func (m MultiSink) Name() string {
	return "multi"
}

func (m MultiSink) Write(ctx context.Context, result model.AggregateResult) error {
	var errs []error
	for _, sink := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Write(ctx, result); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
