package event

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"fillScope/internal/model"
)

// ABIDecoder decodes any event with a fixed-width data section and sums one
// integer field as the volume.
type ABIDecoder struct {
	event       abi.Event
	amountField string
	amountIndex int
	indexed     abi.Arguments
	width       int
}

// LoadABIDecoder reads an ABI JSON file and builds a decoder for eventName.
func LoadABIDecoder(path, eventName, amountField string) (*ABIDecoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open abi file: %w", err)
	}
	defer file.Close()
	return NewABIDecoder(file, eventName, amountField)
}

func NewABIDecoder(r io.Reader, eventName, amountField string) (*ABIDecoder, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	ev, ok := parsed.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("event %q not found in abi", eventName)
	}

	width := 0
	for _, arg := range ev.Inputs.NonIndexed() {
		w, static := staticWidth(arg.Type)
		if !static {
			return nil, fmt.Errorf("event %s: field %q has dynamic type %s", eventName, arg.Name, arg.Type.String())
		}
		width += w
	}

	d := &ABIDecoder{
		event:       ev,
		amountField: amountField,
		amountIndex: -1,
		indexed:     indexedArguments(ev.Inputs),
		width:       width,
	}
	for _, arg := range ev.Inputs {
		if arg.Name != amountField {
			continue
		}
		if arg.Type.T != abi.UintTy && arg.Type.T != abi.IntTy {
			return nil, fmt.Errorf("amount field %q is %s, want an integer", amountField, arg.Type.String())
		}
		if arg.Indexed {
			for i, in := range d.indexed {
				if in.Name == amountField {
					d.amountIndex = i
				}
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("event %s has no field %q", eventName, amountField)
}

func (d *ABIDecoder) Name() string {
	return d.event.Name
}

func (d *ABIDecoder) Topic0() common.Hash {
	return d.event.ID
}

func (d *ABIDecoder) TopicCount() int {
	return len(d.indexed) + 1
}

func (d *ABIDecoder) DataWidth() int {
	return d.width
}

func (d *ABIDecoder) Decode(log model.RawLog) (Record, error) {
	if err := CheckShape(d, log); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(d.event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, d.indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: parse topics: %v", ErrMalformedLog, err)
	}
	if err := d.event.Inputs.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrMalformedLog, d.event.Name, err)
	}

	amount, err := d.amount(log, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}

	for key, value := range fields {
		fields[key] = normalizeValue(value)
	}
	return &EventRecord{
		Event:       d.event.Name,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Amount:      amount,
		Fields:      fields,
	}, nil
}

func (d *ABIDecoder) amount(log model.RawLog, fields map[string]interface{}) (*big.Int, error) {
	if d.amountIndex >= 0 {
		value := new(big.Int).SetBytes(log.Topics[d.amountIndex+1].Bytes())
		if d.indexed[d.amountIndex].Type.T == abi.IntTy {
			value = math.S256(value)
		}
		return value, nil
	}
	return asBigInt(fields[d.amountField])
}

// EventRecord is a log decoded by an ABIDecoder.
type EventRecord struct {
	Event       string
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint64
	Amount      *big.Int
	Fields      map[string]interface{}
}

func (r *EventRecord) Volume() *big.Int {
	return r.Amount
}

func (r *EventRecord) Block() uint64 {
	return r.BlockNumber
}

func (r *EventRecord) Record() interface{} {
	return map[string]interface{}{
		"event":        r.Event,
		"block_number": r.BlockNumber,
		"tx_hash":      r.TxHash.Hex(),
		"log_index":    r.LogIndex,
		"amount":       r.Amount.String(),
		"fields":       r.Fields,
	}
}

func staticWidth(t abi.Type) (int, bool) {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy:
		return 0, false
	case abi.ArrayTy:
		w, ok := staticWidth(*t.Elem)
		return w * t.Size, ok
	case abi.TupleTy:
		total := 0
		for _, elem := range t.TupleElems {
			w, ok := staticWidth(*elem)
			if !ok {
				return 0, false
			}
			total += w
		}
		return total, true
	default:
		return 32, true
	}
}

// normalizeValue renders integers as decimal strings and byte arrays as hex.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			for i := range buf {
				buf[i] = byte(rv.Index(i).Uint())
			}
			return hexutil.Encode(buf)
		}
		fallthrough
	case reflect.Slice:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	}
	return value
}
