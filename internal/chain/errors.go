package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrBlockNotFound is returned when the node answers a block query with null.
var ErrBlockNotFound = errors.New("block not found")

// Kind classifies an RPC failure.
type Kind int

const (
	KindTransport Kind = iota
	KindRateLimited
	KindNodeError
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindNodeError:
		return "node_error"
	default:
		return "unknown"
	}
}

// RPCError is a failed JSON-RPC call.
type RPCError struct {
	Kind      Kind
	Method    string
	Code      int
	Message   string
	Retryable bool
	Err       error
}

func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d): %s", e.Method, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Kind, e.Message)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an RPCError worth another attempt.
func IsRetryable(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Retryable
}

// JSON-RPC codes used by public endpoints to signal throttling.
const (
	codeLimitExceeded = -32005
	codeRateLimited   = 429
)

var throttlePatterns = []string{
	"rate limit",
	"too many requests",
	"request limit",
	"throttl",
}

func classify(method string, err error) *RPCError {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		kind := KindTransport
		if httpErr.StatusCode == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return &RPCError{
			Kind:      kind,
			Method:    method,
			Code:      httpErr.StatusCode,
			Message:   strings.TrimSpace(httpErr.Status),
			Retryable: true,
			Err:       err,
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &RPCError{
			Kind:      KindTransport,
			Method:    method,
			Message:   "invalid response body: " + err.Error(),
			Retryable: false,
			Err:       err,
		}
	}

	var nodeErr rpc.Error
	if errors.As(err, &nodeErr) {
		kind := KindNodeError
		if isThrottle(nodeErr.ErrorCode(), nodeErr.Error()) {
			kind = KindRateLimited
		}
		return &RPCError{
			Kind:      kind,
			Method:    method,
			Code:      nodeErr.ErrorCode(),
			Message:   nodeErr.Error(),
			Retryable: true,
			Err:       err,
		}
	}

	if errors.Is(err, rpc.ErrNoResult) {
		return &RPCError{Kind: KindNodeError, Method: method, Message: err.Error(), Retryable: true, Err: err}
	}

	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timeout: " + msg
	}
	return &RPCError{Kind: KindTransport, Method: method, Message: msg, Retryable: true, Err: err}
}

func isThrottle(code int, message string) bool {
	if code == codeLimitExceeded || code == codeRateLimited {
		return true
	}
	lower := strings.ToLower(message)
	for _, pattern := range throttlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
