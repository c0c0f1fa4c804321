package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogQuery describes a single eth_getLogs request.
type LogQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Address   common.Address
	Topic0    common.Hash
}

// Params builds the JSON-RPC filter object for the query.
func (q LogQuery) Params() map[string]interface{} {
	return map[string]interface{}{
		"fromBlock": hexutil.EncodeUint64(q.FromBlock),
		"toBlock":   hexutil.EncodeUint64(q.ToBlock),
		"address":   q.Address.Hex(),
		"topics":    []string{q.Topic0.Hex()},
	}
}

func (q LogQuery) String() string {
	return fmt.Sprintf("%d-%d", q.FromBlock, q.ToBlock)
}

// RawLog is a log as returned by the node, before decoding.
type RawLog struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint64
	LogIndex    uint64
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	Removed     bool
}
