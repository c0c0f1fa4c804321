// Package eventtest builds encoded exchange logs for tests.
package eventtest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"fillScope/internal/event"
	"fillScope/internal/model"
)

// Exchange is the contract address used by test fixtures.
var Exchange = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")

// Fill describes the fields of a synthetic OrderFilled log.
type Fill struct {
	Block             uint64
	LogIndex          uint64
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      int64
	TakerAssetID      int64
	MakerAmountFilled int64
	TakerAmountFilled int64
	Fee               int64
}

// OrderFilledLog encodes f as an OrderFilled log emitted by Exchange.
func OrderFilledLog(t testing.TB, f Fill) model.RawLog {
	t.Helper()
	parsed, err := event.ExchangeABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	ev := parsed.Events["OrderFilled"]

	data, err := ev.Inputs.NonIndexed().Pack(
		big.NewInt(f.MakerAssetID),
		big.NewInt(f.TakerAssetID),
		big.NewInt(f.MakerAmountFilled),
		big.NewInt(f.TakerAmountFilled),
		big.NewInt(f.Fee),
	)
	if err != nil {
		t.Fatalf("pack OrderFilled: %v", err)
	}

	return model.RawLog{
		BlockNumber: f.Block,
		BlockHash:   crypto.Keccak256Hash(new(big.Int).SetUint64(f.Block).Bytes()),
		TxHash:      crypto.Keccak256Hash(new(big.Int).SetUint64(f.Block).Bytes(), new(big.Int).SetUint64(f.LogIndex).Bytes()),
		LogIndex:    f.LogIndex,
		Address:     Exchange,
		Topics: []common.Hash{
			ev.ID,
			crypto.Keccak256Hash([]byte("order"), new(big.Int).SetUint64(f.Block).Bytes(), new(big.Int).SetUint64(f.LogIndex).Bytes()),
			common.BytesToHash(f.Maker.Bytes()),
			common.BytesToHash(f.Taker.Bytes()),
		},
		Data: data,
	}
}
