package main

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/chain/chaintest"
	"fillScope/internal/event/eventtest"
	"fillScope/internal/model"
	"fillScope/internal/resolver"
	"fillScope/internal/storage"
)

const genesisTime = 1_700_000_000

func blockTime(block uint64) uint64 {
	return genesisTime + 2*block
}

func fill(block uint64, taker int64) eventtest.Fill {
	return eventtest.Fill{
		Block:             block,
		Maker:             common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Taker:             common.HexToAddress("0x3333333333333333333333333333333333333333"),
		MakerAssetID:      1,
		TakerAssetID:      2,
		MakerAmountFilled: taker,
		TakerAmountFilled: taker,
	}
}

func execRoot(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SilenceErrors = true
	root.SetArgs(args)
	return root.Execute()
}

func baseArgs(node *chaintest.Node, dir string) []string {
	return []string{
		"--rpc", node.URL(),
		"--out-dir", dir,
		"--call-delay", "0s",
		"--retry-backoff", "1ms",
		"--log-level", "error",
	}
}

func TestRunWritesOutputs(t *testing.T) {
	node := chaintest.NewNode(10_000, blockTime)
	defer node.Close()
	for _, f := range []eventtest.Fill{fill(50, 1_000), fill(100, 10), fill(600, 20), fill(1000, 30), fill(5000, 1_000)} {
		node.AddLog(eventtest.OrderFilledLog(t, f))
	}

	dir := t.TempDir()
	args := append([]string{"run"}, baseArgs(node, dir)...)
	args = append(args,
		"--address", eventtest.Exchange.Hex(),
		"--window-start", strconv.FormatUint(blockTime(100), 10),
		"--window-end", strconv.FormatUint(blockTime(1100), 10),
		"--max-span", "300",
		"--summary-file", "summary.json",
		"--fills-out", "fills.jsonl",
	)
	if err := execRoot(t, args...); err != nil {
		t.Fatalf("run: %v", err)
	}

	head, err := storage.ReadHead(filepath.Join(dir, "current_block.json"))
	if err != nil {
		t.Fatalf("read head: %v", err)
	}
	if head.BlockNumber != 10_000 || head.Timestamp != blockTime(10_000) {
		t.Fatalf("unexpected head: %+v", head)
	}

	rangeFile, err := storage.ReadBlockRange(filepath.Join(dir, "block_range.json"))
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if rangeFile.StartBlock != 100 || rangeFile.EndBlock < 1000 || !rangeFile.WindowComplete {
		t.Fatalf("unexpected range: %+v", rangeFile)
	}

	var summary model.Summary
	ok, err := storage.ReadJSONFile(filepath.Join(dir, "summary.json"), &summary)
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%v err=%v", ok, err)
	}
	if summary.TotalFill != "60" || summary.LogCount != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Event != "OrderFilled" || summary.WindowStart != blockTime(100) || len(summary.FailedRanges) != 0 {
		t.Fatalf("unexpected summary metadata: %+v", summary)
	}

	fills, err := os.Open(filepath.Join(dir, "fills.jsonl"))
	if err != nil {
		t.Fatalf("open fills: %v", err)
	}
	defer fills.Close()
	lines := 0
	scanner := bufio.NewScanner(fills)
	for scanner.Scan() {
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 fill lines, got %d", lines)
	}
}

func TestResolveFromHeadFile(t *testing.T) {
	node := chaintest.NewNode(10_000, blockTime)
	defer node.Close()

	dir := t.TempDir()
	if err := storage.WriteHead(filepath.Join(dir, "current_block.json"), model.HeadSnapshot{
		BlockNumber: 5_000,
		Timestamp:   blockTime(5_000),
	}); err != nil {
		t.Fatalf("write head: %v", err)
	}

	args := append([]string{"resolve", "--use-head-file"}, baseArgs(node, dir)...)
	args = append(args, "--window-start", strconv.FormatUint(blockTime(4_000), 10))
	if err := execRoot(t, args...); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if node.Calls("eth_blockNumber") != 0 {
		t.Fatalf("expected head file to be used")
	}

	rangeFile, err := storage.ReadBlockRange(filepath.Join(dir, "block_range.json"))
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if rangeFile.StartBlock != 4_000 || rangeFile.EndBlock != 5_000 || rangeFile.WindowComplete {
		t.Fatalf("unexpected clamped range: %+v", rangeFile)
	}
}

func TestPhaseErrors(t *testing.T) {
	node := chaintest.NewNode(10_000, blockTime)
	defer node.Close()
	dir := t.TempDir()

	args := append([]string{"resolve"}, baseArgs(node, dir)...)
	args = append(args, "--window-start", strconv.FormatUint(blockTime(20_000), 10))
	err := execRoot(t, args...)
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != "resolve" {
		t.Fatalf("expected resolve phase error, got %v", err)
	}
	if !errors.Is(err, resolver.ErrHeadBehindTarget) {
		t.Fatalf("expected ErrHeadBehindTarget, got %v", err)
	}

	err = execRoot(t, append([]string{"aggregate"}, baseArgs(node, dir)...)...)
	if !errors.As(err, &pe) || pe.Phase != "aggregate" {
		t.Fatalf("expected aggregate phase error, got %v", err)
	}
}

func TestMissingRPCURL(t *testing.T) {
	if err := execRoot(t, "head", "--out-dir", t.TempDir()); err == nil {
		t.Fatalf("expected missing rpc error")
	}
}
