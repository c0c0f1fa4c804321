package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fillScope/internal/model"
)

// Config holds Redis connection settings for the summary sink.
type Config struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// Sink stores run summaries as hashes and keeps a pointer to the latest
// window per event.
type Sink struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSink connects to Redis and verifies the connection.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newSink(rdb, cfg), nil
}

func newSink(rdb *redis.Client, cfg Config) *Sink {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fillscope"
	}
	return &Sink{rdb: rdb, prefix: prefix, ttl: cfg.TTL}
}

func (s *Sink) Close() error {
	return s.rdb.Close()
}

func (s *Sink) Name() string {
	return "redis"
}

// Key helpers
func (s *Sink) summaryKey(event, date string) string {
	return fmt.Sprintf("%s:summary:%s:%s", s.prefix, event, date)
}

func (s *Sink) latestKey(event string) string {
	return fmt.Sprintf("%s:latest:%s", s.prefix, event)
}

// Write stores the summary hash and moves the latest pointer in one transaction.
func (s *Sink) Write(ctx context.Context, result model.AggregateResult) error {
	summary := model.NewSummary(result)
	ranges, err := json.Marshal(summary.RangeLogCounts)
	if err != nil {
		return fmt.Errorf("marshal ranges: %w", err)
	}

	key := s.summaryKey(summary.Event, result.Window.StartDate())
	fields := map[string]interface{}{
		"run_id":          summary.RunID,
		"window_start":    summary.WindowStart,
		"window_end":      summary.WindowEnd,
		"window_complete": summary.WindowComplete,
		"start_block":     summary.StartBlock,
		"end_block":       summary.EndBlock,
		"total_fill":      summary.TotalFill,
		"log_count":       summary.LogCount,
		"malformed_count": summary.MalformedCount,
		"failed_ranges":   len(summary.FailedRanges),
		"ranges":          string(ranges),
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.Set(ctx, s.latestKey(summary.Event), key, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store summary %s: %w", key, err)
	}
	return nil
}

// Latest returns the most recent summary hash for event.
func (s *Sink) Latest(ctx context.Context, event string) (map[string]string, bool, error) {
	key, err := s.rdb.Get(ctx, s.latestKey(event)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get latest: %w", err)
	}
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("get summary %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}
