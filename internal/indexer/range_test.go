package indexer

import (
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fillScope/internal/model"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(model.BlockRange{StartBlock: 100, EndBlock: 105}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.BlockRange{
		{StartBlock: 100, EndBlock: 101},
		{StartBlock: 102, EndBlock: 103},
		{StartBlock: 104, EndBlock: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(model.BlockRange{StartBlock: 5, EndBlock: 5}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.BlockRange{{StartBlock: 5, EndBlock: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(model.BlockRange{StartBlock: 10, EndBlock: 9}, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(model.BlockRange{StartBlock: 1, EndBlock: 10}, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestPlanPartitionsRange(t *testing.T) {
	address := common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	topic0 := common.HexToHash("0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6")

	cases := []struct {
		name string
		r    model.BlockRange
		span uint32
	}{
		{name: "exact multiple", r: model.BlockRange{StartBlock: 0, EndBlock: 3999}, span: 2000},
		{name: "remainder", r: model.BlockRange{StartBlock: 1000, EndBlock: 5500}, span: 2000},
		{name: "single block", r: model.BlockRange{StartBlock: 1000, EndBlock: 1000}, span: 2000},
		{name: "span one", r: model.BlockRange{StartBlock: 7, EndBlock: 12}, span: 1},
		{name: "chain end", r: model.BlockRange{StartBlock: math.MaxUint64 - 10, EndBlock: math.MaxUint64}, span: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queries := slices.Collect(Plan(tc.r, tc.span, address, topic0))
			if len(queries) == 0 {
				t.Fatal("no queries planned")
			}
			if queries[0].FromBlock != tc.r.StartBlock || queries[len(queries)-1].ToBlock != tc.r.EndBlock {
				t.Fatalf("plan does not cover range: %v", queries)
			}
			for i, q := range queries {
				if q.ToBlock < q.FromBlock || q.ToBlock-q.FromBlock+1 > uint64(tc.span) {
					t.Fatalf("query %d out of span: %s", i, q)
				}
				if i > 0 && q.FromBlock != queries[i-1].ToBlock+1 {
					t.Fatalf("gap or overlap at %d: %s after %s", i, q, queries[i-1])
				}
				if q.Address != address || q.Topic0 != topic0 {
					t.Fatalf("filter mismatch: %+v", q)
				}
			}

			split, err := SplitRange(tc.r, uint64(tc.span))
			if err != nil {
				t.Fatalf("split: %v", err)
			}
			if len(split) != len(queries) {
				t.Fatalf("split has %d ranges, plan %d", len(split), len(queries))
			}
		})
	}
}

func TestPlanRestartable(t *testing.T) {
	seq := Plan(model.BlockRange{StartBlock: 1, EndBlock: 10}, 3, common.Address{}, common.Hash{})
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !reflect.DeepEqual(first, second) || len(first) != 4 {
		t.Fatalf("plan not restartable: %v vs %v", first, second)
	}

	count := 0
	for range seq {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("early break not honored")
	}
}

func TestPlanInvalid(t *testing.T) {
	if got := slices.Collect(Plan(model.BlockRange{StartBlock: 5, EndBlock: 4}, 10, common.Address{}, common.Hash{})); len(got) != 0 {
		t.Fatalf("inverted range planned %v", got)
	}
	if got := slices.Collect(Plan(model.BlockRange{StartBlock: 1, EndBlock: 4}, 0, common.Address{}, common.Hash{})); len(got) != 0 {
		t.Fatalf("zero span planned %v", got)
	}
}
