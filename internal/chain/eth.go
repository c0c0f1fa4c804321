package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"fillScope/internal/model"
)

type rpcBlock struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// LatestBlockNumber returns the current head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, &RPCError{Kind: KindNodeError, Method: "eth_blockNumber", Message: "null block number"}
	}
	var number hexutil.Uint64
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return uint64(number), nil
}

// BlockByNumber fetches a block header without transactions. The boolean is
// false when the node has no block at that height.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (model.BlockRef, bool, error) {
	raw, err := c.Call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return model.BlockRef{}, false, err
	}
	if raw == nil {
		return model.BlockRef{}, false, nil
	}
	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return model.BlockRef{}, false, fmt.Errorf("parse block %d: %w", number, err)
	}
	return model.BlockRef{Number: number, Timestamp: uint64(block.Timestamp)}, true, nil
}

// Head returns the current head block and its timestamp.
func (c *Client) Head(ctx context.Context) (model.HeadSnapshot, error) {
	number, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return model.HeadSnapshot{}, fmt.Errorf("get latest block: %w", err)
	}
	block, ok, err := c.BlockByNumber(ctx, number)
	if err != nil {
		return model.HeadSnapshot{}, fmt.Errorf("get head block %d: %w", number, err)
	}
	if !ok {
		return model.HeadSnapshot{}, fmt.Errorf("head block %d: %w", number, ErrBlockNotFound)
	}
	return model.HeadSnapshot{
		BlockNumber: block.Number,
		Timestamp:   block.Timestamp,
		ObservedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// GetLogs runs eth_getLogs for one planned query. Logs are returned in the
// node's order and are not validated.
func (c *Client) GetLogs(ctx context.Context, query model.LogQuery) ([]model.LogRecord, error) {
	raw, err := c.Call(ctx, "eth_getLogs", query.Params())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var logs []model.LogRecord
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, &RPCError{
			Kind:    KindTransport,
			Method:  "eth_getLogs",
			Message: "invalid log list: " + err.Error(),
			Err:     err,
		}
	}
	return logs, nil
}
