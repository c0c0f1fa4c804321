// Package chaintest provides an in-process JSON-RPC node for tests.
package chaintest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"fillScope/internal/model"
)

// Hook can override the response for a request. Returning handled=false
// falls through to the default behavior.
type Hook func(method string, params []json.RawMessage) (status int, body string, handled bool)

// Node answers eth_blockNumber, eth_getBlockByNumber and eth_getLogs from
// synthetic data.
type Node struct {
	server *httptest.Server

	mu         sync.Mutex
	head       uint64
	timestamp  func(uint64) uint64
	missing    map[uint64]bool
	logs       []model.RawLog
	hook       Hook
	calls      map[string]int
	blockCalls map[uint64]int
}

// NewNode starts a node whose chain ends at head with the given timestamp function.
func NewNode(head uint64, timestamp func(uint64) uint64) *Node {
	n := &Node{
		head:       head,
		timestamp:  timestamp,
		missing:    make(map[uint64]bool),
		calls:      make(map[string]int),
		blockCalls: make(map[uint64]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

func (n *Node) URL() string {
	return n.server.URL
}

func (n *Node) Close() {
	n.server.Close()
}

// SetMissing makes the node answer null for the given block.
func (n *Node) SetMissing(block uint64) {
	n.mu.Lock()
	n.missing[block] = true
	n.mu.Unlock()
}

func (n *Node) SetHook(hook Hook) {
	n.mu.Lock()
	n.hook = hook
	n.mu.Unlock()
}

// AddLog registers a log. Logs are served ordered by block and log index.
func (n *Node) AddLog(log model.RawLog) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, log)
	sort.SliceStable(n.logs, func(i, j int) bool {
		if n.logs[i].BlockNumber != n.logs[j].BlockNumber {
			return n.logs[i].BlockNumber < n.logs[j].BlockNumber
		}
		return n.logs[i].LogIndex < n.logs[j].LogIndex
	})
}

// Calls returns how many requests for method were received.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// BlockCalls returns how many times a block was requested.
func (n *Node) BlockCalls(block uint64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blockCalls[block]
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type filter struct {
	FromBlock string   `json:"fromBlock"`
	ToBlock   string   `json:"toBlock"`
	Address   string   `json:"address"`
	Topics    []string `json:"topics"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	hook := n.hook
	n.mu.Unlock()

	if hook != nil {
		if status, raw, handled := hook(req.Method, req.Params); handled {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, strings.ReplaceAll(raw, "$ID", string(req.ID)))
			return
		}
	}

	result, rpcErr := n.dispatch(req)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *Node) dispatch(req request) (interface{}, map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_blockNumber":
		return hexutil.EncodeUint64(n.head), nil
	case "eth_getBlockByNumber":
		if len(req.Params) == 0 {
			return nil, invalidParams()
		}
		var tag string
		if err := json.Unmarshal(req.Params[0], &tag); err != nil {
			return nil, invalidParams()
		}
		number, err := hexutil.DecodeUint64(tag)
		if err != nil {
			return nil, invalidParams()
		}
		n.blockCalls[number]++
		if number > n.head || n.missing[number] {
			return nil, nil
		}
		return map[string]string{
			"number":    hexutil.EncodeUint64(number),
			"timestamp": hexutil.EncodeUint64(n.timestamp(number)),
		}, nil
	case "eth_getLogs":
		if len(req.Params) == 0 {
			return nil, invalidParams()
		}
		var f filter
		if err := json.Unmarshal(req.Params[0], &f); err != nil {
			return nil, invalidParams()
		}
		from, err1 := hexutil.DecodeUint64(f.FromBlock)
		to, err2 := hexutil.DecodeUint64(f.ToBlock)
		if err1 != nil || err2 != nil {
			return nil, invalidParams()
		}
		out := make([]model.LogRecord, 0)
		for _, log := range n.logs {
			if log.BlockNumber < from || log.BlockNumber > to {
				continue
			}
			if f.Address != "" && !strings.EqualFold(log.Address.Hex(), f.Address) {
				continue
			}
			if len(f.Topics) > 0 && (len(log.Topics) == 0 || log.Topics[0] != common.HexToHash(f.Topics[0])) {
				continue
			}
			out = append(out, model.NewLogRecord(log))
		}
		return out, nil
	default:
		return nil, map[string]interface{}{"code": -32601, "message": "method not found"}
	}
}

func invalidParams() map[string]interface{} {
	return map[string]interface{}{"code": -32602, "message": "invalid params"}
}
