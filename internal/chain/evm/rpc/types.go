package rpc

import (
	"encoding/json"
	"fmt"
)

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// EIP-1193 provider error codes returned by wallet signers.
const (
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeUnsupportedMethod  = 4200
	CodeDisconnected       = 4900
	CodeChainDisconnected  = 4901
	CodeExecutionReverted  = 3
	CodeInternalJSONRPC    = -32603
	CodeServerErrorDefault = -32000
)

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("%s (code %d, data %s)", e.Message, e.Code, string(e.Data))
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// CallMsg is the transaction object shared by eth_call and eth_sendTransaction.
// All quantities and data are 0x-prefixed hex strings.
type CallMsg struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

type TransactionReceipt struct {
	TransactionHash   string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	TransactionIndex  string `json:"transactionIndex"`
	Status            string `json:"status"`
	From              string `json:"from"`
	To                string `json:"to"`
	ContractAddress   string `json:"contractAddress"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
	Logs              []*Log `json:"logs"`
}

type Log struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex string   `json:"logIndex"`
	Removed  bool     `json:"removed"`
}
