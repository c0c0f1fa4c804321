package chain

import (
	"encoding/json"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/ratelimiter"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// newRetryPolicy retries retryable RPCErrors with exponential backoff up to
// MaxAttempts in total.
func newRetryPolicy(cfg Config) failsafe.Policy[json.RawMessage] {
	return retrypolicy.Builder[json.RawMessage]().
		HandleIf(func(_ json.RawMessage, err error) bool {
			return IsRetryable(err)
		}).
		WithMaxAttempts(cfg.MaxAttempts).
		WithBackoff(cfg.RetryBackoff, cfg.MaxBackoff).
		Build()
}

// newCallGate spaces calls at least CallDelay apart across every goroutine
// sharing the client.
func newCallGate(cfg Config) failsafe.Policy[json.RawMessage] {
	return ratelimiter.SmoothBuilderWithMaxRate[json.RawMessage](cfg.CallDelay).
		WithMaxWaitTime(cfg.GateMaxWait).
		Build()
}
