package event

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/model"
)

const transferABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "id", "type": "uint256"},
      {"indexed": false, "name": "note", "type": "string"}
    ],
    "name": "Noted",
    "type": "event"
  }
]`

func buildTransferLog(t *testing.T, value int64) model.RawLog {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(transferABIJSON))
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	ev := parsed.Events["Transfer"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(value))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return model.RawLog{
		BlockNumber: 7,
		LogIndex:    2,
		Topics: []common.Hash{
			ev.ID,
			topicFromAddress(common.HexToAddress("0x1111111111111111111111111111111111111111")),
			topicFromAddress(common.HexToAddress("0x2222222222222222222222222222222222222222")),
		},
		Data: data,
	}
}

func TestABIDecoderTransfer(t *testing.T) {
	decoder, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Transfer", "value")
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if decoder.DataWidth() != 32 || decoder.TopicCount() != 3 {
		t.Fatalf("unexpected schema: width=%d topics=%d", decoder.DataWidth(), decoder.TopicCount())
	}

	record, err := decoder.Decode(buildTransferLog(t, 4200))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Volume().Int64() != 4200 || record.Block() != 7 {
		t.Fatalf("volume %s block %d", record.Volume(), record.Block())
	}
	ev := record.(*EventRecord)
	if ev.Fields["value"] != "4200" {
		t.Fatalf("value not normalized: %#v", ev.Fields["value"])
	}
	if ev.Fields["to"] != common.HexToAddress("0x2222222222222222222222222222222222222222").Hex() {
		t.Fatalf("to mismatch: %#v", ev.Fields["to"])
	}
}

func TestABIDecoderRejectsBadSchema(t *testing.T) {
	decoder, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Transfer", "value")
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if decoder.amountIndex != -1 {
		t.Fatalf("value is not indexed")
	}

	if _, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Transfer", "from"); err == nil {
		t.Fatal("expected error for address amount field")
	}
	if _, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Transfer", "missing"); err == nil {
		t.Fatal("expected error for unknown amount field")
	}
	if _, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Noted", "id"); err == nil {
		t.Fatal("expected error for dynamic event")
	}
	if _, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Approval", "value"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestABIDecoderMalformed(t *testing.T) {
	decoder, err := NewABIDecoder(strings.NewReader(transferABIJSON), "Transfer", "value")
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	log := buildTransferLog(t, 1)
	log.Data = log.Data[:31]
	if _, err := decoder.Decode(log); !errors.Is(err, ErrMalformedLog) {
		t.Fatalf("expected ErrMalformedLog, got %v", err)
	}
}

func TestLoadABIDecoderMatchesOrderFilled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.json")
	if err := os.WriteFile(path, []byte(exchangeABIJSON), 0o644); err != nil {
		t.Fatalf("write abi: %v", err)
	}
	generic, err := LoadABIDecoder(path, "OrderFilled", "takerAmountFilled")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	typed, err := NewOrderFilledDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if generic.Topic0() != typed.Topic0() || generic.DataWidth() != typed.DataWidth() {
		t.Fatal("generic and typed schemas differ")
	}

	log := buildFillLog(t, 1, 2, 3, 987654321, 5)
	a, err := generic.Decode(log)
	if err != nil {
		t.Fatalf("generic decode: %v", err)
	}
	b, err := typed.Decode(log)
	if err != nil {
		t.Fatalf("typed decode: %v", err)
	}
	if a.Volume().Cmp(b.Volume()) != 0 {
		t.Fatalf("volume mismatch: %s vs %s", a.Volume(), b.Volume())
	}
	fields := a.(*EventRecord).Fields
	if fields["orderHash"] != common.HexToHash("0x01").Hex() {
		t.Fatalf("orderHash not normalized: %#v", fields["orderHash"])
	}
}
