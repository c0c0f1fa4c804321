package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DecodedFill is one OrderFilled event decoded from a RawLog.
type DecodedFill struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
	TxHash            common.Hash
	BlockNumber       uint64
	LogIndex          uint64
}

// Volume returns the amount folded into the aggregate total.
func (f *DecodedFill) Volume() *big.Int {
	return f.TakerAmountFilled
}

// Block returns the block the fill was emitted in.
func (f *DecodedFill) Block() uint64 {
	return f.BlockNumber
}

// Record returns the JSON form of the fill.
func (f *DecodedFill) Record() interface{} {
	return FillRecord{
		OrderHash:         f.OrderHash.Hex(),
		Maker:             f.Maker.Hex(),
		Taker:             f.Taker.Hex(),
		MakerAssetID:      bigString(f.MakerAssetID),
		TakerAssetID:      bigString(f.TakerAssetID),
		MakerAmountFilled: bigString(f.MakerAmountFilled),
		TakerAmountFilled: bigString(f.TakerAmountFilled),
		Fee:               bigString(f.Fee),
		TxHash:            f.TxHash.Hex(),
		BlockNumber:       f.BlockNumber,
		LogIndex:          f.LogIndex,
	}
}

// FillRecord is the JSONL representation of a DecodedFill. Amounts are
// decimal strings so uint256 values survive JSON round trips.
type FillRecord struct {
	OrderHash         string `json:"order_hash"`
	Maker             string `json:"maker"`
	Taker             string `json:"taker"`
	MakerAssetID      string `json:"maker_asset_id"`
	TakerAssetID      string `json:"taker_asset_id"`
	MakerAmountFilled string `json:"maker_amount_filled"`
	TakerAmountFilled string `json:"taker_amount_filled"`
	Fee               string `json:"fee"`
	TxHash            string `json:"tx_hash"`
	BlockNumber       uint64 `json:"block_number"`
	LogIndex          uint64 `json:"log_index"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
