package event

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/model"
)

// ErrMalformedLog marks a log whose shape does not match the event schema.
var ErrMalformedLog = errors.New("malformed log")

// Record is a decoded event that can be folded into an aggregate.
type Record interface {
	Volume() *big.Int
	Block() uint64
	Record() interface{}
}

// Decoder turns raw logs of one event type into records.
type Decoder interface {
	Name() string
	Topic0() common.Hash
	TopicCount() int
	DataWidth() int
	Decode(log model.RawLog) (Record, error)
}

// CheckShape validates topic0, topic count and data width against d.
func CheckShape(d Decoder, log model.RawLog) error {
	if len(log.Topics) != d.TopicCount() {
		return fmt.Errorf("%w: %s expects %d topics, got %d", ErrMalformedLog, d.Name(), d.TopicCount(), len(log.Topics))
	}
	if log.Topics[0] != d.Topic0() {
		return fmt.Errorf("%w: unexpected topic0 %s", ErrMalformedLog, log.Topics[0].Hex())
	}
	if len(log.Data) != d.DataWidth() {
		return fmt.Errorf("%w: %s expects %d data bytes, got %d", ErrMalformedLog, d.Name(), d.DataWidth(), len(log.Data))
	}
	return nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(ev abi.Event, data []byte) ([]interface{}, error) {
	values, err := ev.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrMalformedLog, ev.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unexpected integer type %T", value)
	}
}
