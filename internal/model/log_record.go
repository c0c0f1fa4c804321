package model

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogRecord is the node's JSON representation of a log.
type LogRecord struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	BlockHash   string   `json:"blockHash"`
	TxHash      string   `json:"transactionHash"`
	TxIndex     string   `json:"transactionIndex"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// MarshalJSON ensures LogRecord is encoded with stable field names.
func (lr LogRecord) MarshalJSON() ([]byte, error) {
	type Alias LogRecord
	return json.Marshal(Alias(lr))
}

// UnmarshalJSON decodes a LogRecord from JSON.
func (lr *LogRecord) UnmarshalJSON(data []byte) error {
	type Alias LogRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*lr = LogRecord(a)
	return nil
}

// ToRawLog parses the hex fields. Data is decoded leniently: a payload that
// is not valid hex is returned as nil so the width check can flag it.
func (lr LogRecord) ToRawLog() (RawLog, bool, error) {
	var raw RawLog
	var err error

	if raw.BlockNumber, err = hexutil.DecodeUint64(lr.BlockNumber); err != nil {
		return RawLog{}, false, fmt.Errorf("parse blockNumber %q: %w", lr.BlockNumber, err)
	}
	if lr.TxIndex != "" {
		if raw.TxIndex, err = hexutil.DecodeUint64(lr.TxIndex); err != nil {
			return RawLog{}, false, fmt.Errorf("parse transactionIndex %q: %w", lr.TxIndex, err)
		}
	}
	if lr.LogIndex != "" {
		if raw.LogIndex, err = hexutil.DecodeUint64(lr.LogIndex); err != nil {
			return RawLog{}, false, fmt.Errorf("parse logIndex %q: %w", lr.LogIndex, err)
		}
	}
	raw.Address = common.HexToAddress(lr.Address)
	raw.BlockHash = common.HexToHash(lr.BlockHash)
	raw.TxHash = common.HexToHash(lr.TxHash)
	raw.Removed = lr.Removed

	raw.Topics = make([]common.Hash, 0, len(lr.Topics))
	for _, topic := range lr.Topics {
		b, err := hexutil.Decode(topic)
		if err != nil || len(b) > common.HashLength {
			return raw, false, nil
		}
		raw.Topics = append(raw.Topics, common.BytesToHash(b))
	}

	data, err := hexutil.Decode(lr.Data)
	if err != nil {
		return raw, false, nil
	}
	raw.Data = data
	return raw, true, nil
}

// NewLogRecord renders a RawLog back into node JSON form.
func NewLogRecord(raw RawLog) LogRecord {
	topics := make([]string, 0, len(raw.Topics))
	for _, topic := range raw.Topics {
		topics = append(topics, topic.Hex())
	}
	return LogRecord{
		Address:     raw.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(raw.Data),
		BlockNumber: hexutil.EncodeUint64(raw.BlockNumber),
		BlockHash:   raw.BlockHash.Hex(),
		TxHash:      raw.TxHash.Hex(),
		TxIndex:     hexutil.EncodeUint64(raw.TxIndex),
		LogIndex:    hexutil.EncodeUint64(raw.LogIndex),
		Removed:     raw.Removed,
	}
}
