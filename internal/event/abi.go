package event

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OrderFilledSignature is the canonical signature of the exchange fill event.
const OrderFilledSignature = "OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"

const exchangeABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "orderHash", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "taker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "makerAssetId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "takerAssetId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "makerAmountFilled", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "takerAmountFilled", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "OrderFilled",
    "type": "event"
  }
]`

var (
	exchangeABI     abi.ABI
	exchangeABIOnce sync.Once
	exchangeABIErr  error
)

// ExchangeABI returns the parsed exchange ABI.
func ExchangeABI() (abi.ABI, error) {
	exchangeABIOnce.Do(func() {
		exchangeABI, exchangeABIErr = abi.JSON(strings.NewReader(exchangeABIJSON))
	})
	return exchangeABI, exchangeABIErr
}
