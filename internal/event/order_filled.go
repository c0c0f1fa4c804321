package event

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/model"
)

// OrderFilledDecoder decodes exchange OrderFilled logs into fills.
type OrderFilledDecoder struct {
	event abi.Event
	width int
}

func NewOrderFilledDecoder() (*OrderFilledDecoder, error) {
	parsed, err := ExchangeABI()
	if err != nil {
		return nil, fmt.Errorf("parse exchange abi: %w", err)
	}
	ev, ok := parsed.Events["OrderFilled"]
	if !ok {
		return nil, fmt.Errorf("exchange abi has no OrderFilled event")
	}
	return &OrderFilledDecoder{
		event: ev,
		width: 32 * len(ev.Inputs.NonIndexed()),
	}, nil
}

func (d *OrderFilledDecoder) Name() string {
	return d.event.Name
}

func (d *OrderFilledDecoder) Topic0() common.Hash {
	return d.event.ID
}

func (d *OrderFilledDecoder) TopicCount() int {
	return len(indexedArguments(d.event.Inputs)) + 1
}

// DataWidth is five uint256 words.
func (d *OrderFilledDecoder) DataWidth() int {
	return d.width
}

// Decode validates and decodes one log. The taker amount is the volume.
func (d *OrderFilledDecoder) Decode(log model.RawLog) (Record, error) {
	fill, err := d.DecodeFill(log)
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// DecodeFill is Decode with the concrete fill type.
func (d *OrderFilledDecoder) DecodeFill(log model.RawLog) (*model.DecodedFill, error) {
	if err := CheckShape(d, log); err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(d.event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("%w: unexpected OrderFilled values: %d", ErrMalformedLog, len(values))
	}
	amounts := make([]*big.Int, len(values))
	for i, v := range values {
		amount, err := asBigInt(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
		}
		amounts[i] = amount
	}

	return &model.DecodedFill{
		OrderHash:         log.Topics[1],
		Maker:             common.BytesToAddress(log.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(log.Topics[3].Bytes()),
		MakerAssetID:      amounts[0],
		TakerAssetID:      amounts[1],
		MakerAmountFilled: amounts[2],
		TakerAmountFilled: amounts[3],
		Fee:               amounts[4],
		TxHash:            log.TxHash,
		BlockNumber:       log.BlockNumber,
		LogIndex:          log.LogIndex,
	}, nil
}
