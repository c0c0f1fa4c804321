package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/ratelimiter"
	"go.uber.org/zap"

	"fillScope/internal/metrics"
)

// Config controls call pacing and retries.
type Config struct {
	URL               string
	CallDelay         time.Duration
	CallTimeout       time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	MaxBackoff        time.Duration
	RateLimitCooldown time.Duration
	GateMaxWait       time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.RetryBackoff {
		c.MaxBackoff = 16 * c.RetryBackoff
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 4 * c.RetryBackoff
	}
	if c.GateMaxWait <= 0 {
		c.GateMaxWait = 2 * time.Minute
	}
	return c
}

// Client wraps a go-ethereum RPC client with a client-wide call gate and a
// bounded retry policy. It is safe for concurrent use.
type Client struct {
	cfg       Config
	rpcClient *rpc.Client
	executor  failsafe.Executor[json.RawMessage]
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return newClient(rpcClient, cfg, logger, m), nil
}

func newClient(rpcClient *rpc.Client, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	policies := []failsafe.Policy[json.RawMessage]{newRetryPolicy(cfg)}
	if cfg.CallDelay > 0 {
		policies = append(policies, newCallGate(cfg))
	}

	return &Client{
		cfg:       cfg,
		rpcClient: rpcClient,
		executor:  failsafe.NewExecutor[json.RawMessage](policies...),
		logger:    logger,
		metrics:   m,
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Call issues one JSON-RPC request. A null result is returned as a nil
// RawMessage and is never retried.
func (c *Client) Call(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.executor.WithContext(ctx).Get(func() (json.RawMessage, error) {
		return c.attempt(ctx, method, args)
	})
	c.metrics.RPCDuration(method, time.Since(start))
	if err != nil {
		return nil, c.translate(ctx, method, err)
	}
	if isNull(result) {
		return nil, nil
	}
	return result, nil
}

func (c *Client) attempt(ctx context.Context, method string, args []interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.waitCooldown(ctx); err != nil {
		return nil, err
	}
	c.metrics.RPCAttempt(method)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	var raw json.RawMessage
	err := c.rpcClient.CallContext(callCtx, &raw, method, args...)
	if err == nil {
		return raw, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	rpcErr := classify(method, err)
	c.metrics.RPCError(method, rpcErr.Kind.String())
	if rpcErr.Kind == KindRateLimited {
		c.pause(c.cfg.RateLimitCooldown)
	}
	c.logger.Warn("rpc call failed",
		zap.String("method", method),
		zap.Stringer("kind", rpcErr.Kind),
		zap.Bool("retryable", rpcErr.Retryable),
		zap.Error(err),
	)
	return nil, rpcErr
}

func (c *Client) translate(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ratelimiter.ErrExceeded) {
		return &RPCError{Kind: KindRateLimited, Method: method, Message: "call gate wait exceeded", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RPCError{Kind: KindTransport, Method: method, Message: err.Error(), Err: err}
}

// pause holds back every caller of this client until d has elapsed.
func (c *Client) pause(d time.Duration) {
	until := time.Now().Add(d)
	c.mu.Lock()
	if until.After(c.pausedUntil) {
		c.pausedUntil = until
	}
	c.mu.Unlock()
}

func (c *Client) waitCooldown(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.pausedUntil)
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
