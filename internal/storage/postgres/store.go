package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"fillScope/internal/model"
)

// Store provides Postgres persistence for aggregation results.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Name() string {
	return "postgres"
}

// Write upserts the run summary and replaces its per-range counts.
func (s *Store) Write(ctx context.Context, result model.AggregateResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO fill_summaries (
			event, window_start, window_end, window_complete, run_id, start_block, end_block,
			total_fill, log_count, malformed_count, failed_ranges, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		ON CONFLICT (event, window_start)
		DO UPDATE SET
			window_end = EXCLUDED.window_end,
			window_complete = EXCLUDED.window_complete,
			run_id = EXCLUDED.run_id,
			start_block = EXCLUDED.start_block,
			end_block = EXCLUDED.end_block,
			total_fill = EXCLUDED.total_fill,
			log_count = EXCLUDED.log_count,
			malformed_count = EXCLUDED.malformed_count,
			failed_ranges = EXCLUDED.failed_ranges,
			updated_at = now()
	`,
		result.Event,
		int64(result.Window.StartUnix),
		int64(result.Window.EndUnix),
		result.WindowComplete,
		result.RunID,
		int64(result.StartBlock),
		int64(result.EndBlock),
		numeric(result.TotalTakerAmountFilled),
		int64(result.LogCount),
		int64(result.MalformedCount),
		int64(result.FailedRangeCount),
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM fill_range_counts WHERE event=$1 AND window_start=$2`,
		result.Event, int64(result.Window.StartUnix)); err != nil {
		return fmt.Errorf("clear range counts: %w", err)
	}

	if len(result.Ranges) > 0 {
		batch := &pgx.Batch{}
		for _, r := range result.Ranges {
			batch.Queue(`
				INSERT INTO fill_range_counts (
					event, window_start, from_block, to_block, log_count, malformed, failed, error
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`,
				result.Event,
				int64(result.Window.StartUnix),
				int64(r.FromBlock),
				int64(r.ToBlock),
				int64(r.LogCount),
				int64(r.Malformed),
				r.Failed,
				r.Error,
			)
		}
		if err := execBatch(ctx, tx, batch, len(result.Ranges)); err != nil {
			return fmt.Errorf("insert range counts: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UpsertFills inserts decoded fills, ignoring ones already stored.
func (s *Store) UpsertFills(ctx context.Context, fills []model.FillRecord) error {
	if len(fills) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(`
			INSERT INTO fills (
				tx_hash, log_index, block_number, order_hash, maker, taker,
				maker_asset_id, taker_asset_id, maker_amount_filled, taker_amount_filled, fee
			) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric)
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			f.TxHash,
			int64(f.LogIndex),
			int64(f.BlockNumber),
			f.OrderHash,
			f.Maker,
			f.Taker,
			f.MakerAssetID,
			f.TakerAssetID,
			f.MakerAmountFilled,
			f.TakerAmountFilled,
			f.Fee,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range fills {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadSummary returns the stored total and log count for a window.
func (s *Store) LoadSummary(ctx context.Context, event string, windowStart uint64) (string, uint64, bool, error) {
	var total string
	var count int64
	row := s.pool.QueryRow(ctx, `
		SELECT total_fill::text, log_count FROM fill_summaries WHERE event=$1 AND window_start=$2
	`, event, int64(windowStart))
	if err := row.Scan(&total, &count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	return total, uint64(count), true, nil
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		v = new(big.Int)
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}
