package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"fillScope/internal/chain"
	"fillScope/internal/chain/chaintest"
	"fillScope/internal/event"
	"fillScope/internal/event/eventtest"
	"fillScope/internal/model"
)

func linearTimestamp(block uint64) uint64 {
	return 1_700_000_000 + 2*block
}

type collector struct {
	mu     sync.Mutex
	values []interface{}
}

func (c *collector) Write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, v)
	return nil
}

func newOrderFilledDecoder(t *testing.T) *event.OrderFilledDecoder {
	t.Helper()
	decoder, err := event.NewOrderFilledDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func newNodeClient(t *testing.T, node *chaintest.Node) *chain.Client {
	t.Helper()
	client, err := chain.NewClient(context.Background(), chain.Config{
		URL:          node.URL(),
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func newTestPipeline(t *testing.T, source LogSource, span uint32, workers int) *Pipeline {
	t.Helper()
	decoder := newOrderFilledDecoder(t)
	p, err := NewPipeline(PipelineConfig{
		Address: eventtest.Exchange,
		MaxSpan: span,
		Workers: workers,
	}, source, decoder, nil, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func fillAt(block, index uint64, taker int64) eventtest.Fill {
	return eventtest.Fill{
		Block:             block,
		LogIndex:          index,
		Maker:             common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Taker:             common.HexToAddress("0x3333333333333333333333333333333333333333"),
		MakerAssetID:      1,
		TakerAssetID:      2,
		MakerAmountFilled: taker * 2,
		TakerAmountFilled: taker,
		Fee:               1,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	node := chaintest.NewNode(1000, linearTimestamp)
	defer node.Close()
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(1000, 0, 100)))
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(1000, 1, 250)))
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(1000, 2, 650)))
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(999, 0, 1_000_000)))

	p := newTestPipeline(t, newNodeClient(t, node), 2000, 4)
	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: 1000, EndBlock: 1000})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.LogCount != 3 {
		t.Fatalf("expected 3 logs, got %d", result.LogCount)
	}
	if result.TotalTakerAmountFilled.Int64() != 1000 {
		t.Fatalf("expected total 1000, got %s", result.TotalTakerAmountFilled)
	}
	if result.MalformedCount != 0 || result.FailedRangeCount != 0 || result.Partial() {
		t.Fatalf("unexpected failures: %+v", result)
	}
	if result.Event != "OrderFilled" || result.RunID == "" {
		t.Fatalf("missing run metadata: %+v", result)
	}
}

func TestPipelinePartialFailure(t *testing.T) {
	node := chaintest.NewNode(10_000, linearTimestamp)
	defer node.Close()
	for _, block := range []uint64{10, 2500, 4500, 6500, 9000} {
		node.AddLog(eventtest.OrderFilledLog(t, fillAt(block, 0, 10)))
	}

	var failedCalls int
	var mu sync.Mutex
	node.SetHook(func(method string, params []json.RawMessage) (int, string, bool) {
		if method != "eth_getLogs" || len(params) == 0 {
			return 0, "", false
		}
		var f struct {
			FromBlock string `json:"fromBlock"`
		}
		_ = json.Unmarshal(params[0], &f)
		if f.FromBlock != hexutil.EncodeUint64(4000) {
			return 0, "", false
		}
		mu.Lock()
		failedCalls++
		mu.Unlock()
		return http.StatusInternalServerError, "upstream unavailable", true
	})

	p := newTestPipeline(t, newNodeClient(t, node), 2000, 4)
	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: 0, EndBlock: 9999})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FailedRangeCount != 1 {
		t.Fatalf("expected one failed range, got %d", result.FailedRangeCount)
	}
	if result.LogCount != 4 || result.TotalTakerAmountFilled.Int64() != 40 {
		t.Fatalf("expected 4 logs totalling 40, got %d / %s", result.LogCount, result.TotalTakerAmountFilled)
	}
	if len(result.Ranges) != 5 || !result.Ranges[2].Failed || result.Ranges[2].FromBlock != 4000 {
		t.Fatalf("unexpected ranges: %+v", result.Ranges)
	}
	failed := result.FailedRanges()
	if len(failed) != 1 || failed[0].Error == "" {
		t.Fatalf("failed range not annotated: %+v", failed)
	}
	mu.Lock()
	defer mu.Unlock()
	if failedCalls != 3 {
		t.Fatalf("expected 3 attempts on failing range, got %d", failedCalls)
	}
}

func TestPipelineMalformedLog(t *testing.T) {
	node := chaintest.NewNode(100, linearTimestamp)
	defer node.Close()
	short := eventtest.OrderFilledLog(t, fillAt(50, 1, 999))
	short.Data = short.Data[:128]
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(50, 0, 5)))
	node.AddLog(short)
	node.AddLog(eventtest.OrderFilledLog(t, fillAt(60, 0, 7)))

	p := newTestPipeline(t, newNodeClient(t, node), 2000, 1)
	rejects := &collector{}
	p.SetOutputs(Outputs{Rejects: rejects})

	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: 0, EndBlock: 100})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.MalformedCount != 1 || result.LogCount != 2 {
		t.Fatalf("expected 2 logs and 1 malformed, got %d / %d", result.LogCount, result.MalformedCount)
	}
	if result.TotalTakerAmountFilled.Int64() != 12 {
		t.Fatalf("malformed log must not contribute, total %s", result.TotalTakerAmountFilled)
	}
	if len(rejects.values) != 1 {
		t.Fatalf("expected one reject, got %d", len(rejects.values))
	}
	reject := rejects.values[0].(model.DecodeError)
	if reject.BlockNumber != 50 || reject.LogIndex != 1 {
		t.Fatalf("unexpected reject %+v", reject)
	}
}

func TestPipelineIdempotent(t *testing.T) {
	node := chaintest.NewNode(20_000, linearTimestamp)
	defer node.Close()
	for i := uint64(0); i < 40; i++ {
		node.AddLog(eventtest.OrderFilledLog(t, fillAt(i*450, i%3, int64(i+1))))
	}

	p := newTestPipeline(t, newNodeClient(t, node), 1000, 4)
	r := model.BlockRange{StartBlock: 0, EndBlock: 20_000}
	first, err := p.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.TotalTakerAmountFilled.Cmp(second.TotalTakerAmountFilled) != 0 || first.LogCount != second.LogCount {
		t.Fatalf("runs differ: %s/%d vs %s/%d", first.TotalTakerAmountFilled, first.LogCount, second.TotalTakerAmountFilled, second.LogCount)
	}
	if !reflect.DeepEqual(first.Ranges, second.Ranges) {
		t.Fatal("range stats differ between runs")
	}
	if first.RunID == second.RunID {
		t.Fatal("each run needs its own id")
	}
	// 1 + 2 + ... + 40
	if first.TotalTakerAmountFilled.Int64() != 820 || first.LogCount != 40 {
		t.Fatalf("unexpected totals %s / %d", first.TotalTakerAmountFilled, first.LogCount)
	}
}

type slowSource struct {
	logs  map[uint64][]model.LogRecord
	delay map[uint64]time.Duration
}

func (s *slowSource) GetLogs(ctx context.Context, q model.LogQuery) ([]model.LogRecord, error) {
	if d := s.delay[q.FromBlock]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.logs[q.FromBlock], nil
}

func TestPipelineFoldsInRangeOrder(t *testing.T) {
	source := &slowSource{
		logs:  make(map[uint64][]model.LogRecord),
		delay: map[uint64]time.Duration{0: 50 * time.Millisecond, 10: 20 * time.Millisecond},
	}
	for _, start := range []uint64{0, 10, 20, 30} {
		for i := uint64(0); i < 3; i++ {
			log := eventtest.OrderFilledLog(t, fillAt(start+i, i, int64(start+i+1)))
			source.logs[start] = append(source.logs[start], model.NewLogRecord(log))
		}
	}

	p := newTestPipeline(t, source, 10, 4)
	records := &collector{}
	var first model.LogRecord
	p.SetOutputs(Outputs{
		Records: records,
		FirstLog: func(log model.LogRecord) error {
			first = log
			return nil
		},
	})

	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: 0, EndBlock: 39})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.LogCount != 12 || len(records.values) != 12 {
		t.Fatalf("expected 12 records, got %d / %d", result.LogCount, len(records.values))
	}
	var last uint64
	for i, v := range records.values {
		fill := v.(model.FillRecord)
		if i > 0 && fill.BlockNumber < last {
			t.Fatalf("records out of order at %d: %d after %d", i, fill.BlockNumber, last)
		}
		last = fill.BlockNumber
	}
	if first.BlockNumber != hexutil.EncodeUint64(0) {
		t.Fatalf("first log should come from block 0, got %s", first.BlockNumber)
	}
}

type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (s *blockingSource) GetLogs(ctx context.Context, q model.LogQuery) ([]model.LogRecord, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPipelineCancelled(t *testing.T) {
	source := &blockingSource{started: make(chan struct{})}
	p := newTestPipeline(t, source, 10, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-source.started
		cancel()
	}()

	_, err := p.Run(ctx, model.BlockRange{StartBlock: 0, EndBlock: 99})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type countingSource struct {
	mu      sync.Mutex
	queries []model.LogQuery
}

func (s *countingSource) GetLogs(_ context.Context, q model.LogQuery) ([]model.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return nil, nil
}

func TestPipelineRejectsInvalidRange(t *testing.T) {
	source := &countingSource{}
	p := newTestPipeline(t, source, 10, 1)
	if _, err := p.Run(context.Background(), model.BlockRange{StartBlock: 10, EndBlock: 9}); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if len(source.queries) != 0 {
		t.Fatalf("inverted range must not query, got %d queries", len(source.queries))
	}
}

func TestPipelinePlansRangeEndingAtMaxBlock(t *testing.T) {
	source := &countingSource{}
	p := newTestPipeline(t, source, 2000, 1)
	start := uint64(math.MaxUint64 - 4999)

	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: start, EndBlock: math.MaxUint64})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []model.RangeStat{
		{FromBlock: start, ToBlock: start + 1999},
		{FromBlock: start + 2000, ToBlock: start + 3999},
		{FromBlock: start + 4000, ToBlock: math.MaxUint64},
	}
	if !reflect.DeepEqual(result.Ranges, want) {
		t.Fatalf("ranges mismatch: %+v", result.Ranges)
	}
	if len(source.queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(source.queries))
	}
}

func TestPipelineNodeErrorIsRecorded(t *testing.T) {
	node := chaintest.NewNode(100, linearTimestamp)
	defer node.Close()
	node.SetHook(func(method string, params []json.RawMessage) (int, string, bool) {
		if method == "eth_getLogs" {
			return http.StatusOK, `{"jsonrpc":"2.0","id":$ID,"error":{"code":-32000,"message":"query returned more than 10000 results"}}`, true
		}
		return 0, "", false
	})

	p := newTestPipeline(t, newNodeClient(t, node), 2000, 1)
	result, err := p.Run(context.Background(), model.BlockRange{StartBlock: 0, EndBlock: 100})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FailedRangeCount != 1 || result.LogCount != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Ranges) != 1 || result.Ranges[0].Error == "" {
		t.Fatalf("failed range missing error: %+v", result.Ranges)
	}
}
