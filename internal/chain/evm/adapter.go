package evm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ND68/TipJar/internal/chain/evm/rpc"
	"github.com/ND68/TipJar/internal/circuitbreaker"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const defaultReceiptPollInterval = 2 * time.Second

// Adapter implements chain.AccessPort on top of an Ethereum JSON-RPC endpoint
// that can sign (a wallet bridge or an unlocked dev node).
type Adapter struct {
	client      rpc.RPCClient
	breaker     *circuitbreaker.Breaker
	receiptPoll time.Duration
	logger      *slog.Logger
}

var _ chain.AccessPort = (*Adapter)(nil)

type Option func(*Adapter)

// WithReceiptPollInterval sets how often WaitForReceipt asks for the receipt.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.receiptPoll = d
		}
	}
}

// WithBreaker guards eth_call reads with b.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(a *Adapter) { a.breaker = b }
}

func NewAdapter(client rpc.RPCClient, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		client:      client,
		receiptPoll: defaultReceiptPollInterval,
		logger:      logger.With("component", "evm_adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) CurrentAccount(ctx context.Context) (common.Address, bool, error) {
	accounts, err := a.client.Accounts(ctx)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("list accounts: %w", err)
	}
	for _, acct := range accounts {
		if common.IsHexAddress(acct) {
			return common.HexToAddress(acct), true, nil
		}
	}
	return common.Address{}, false, nil
}

func (a *Adapter) SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	msg := rpc.CallMsg{
		From: req.From.Hex(),
		To:   req.To.Hex(),
		Data: hexutil.Encode(req.Data),
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		msg.Value = hexutil.EncodeBig(req.Value)
	}

	raw, err := a.client.SendTransaction(ctx, msg)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := parseHash(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	a.logger.Debug("transaction broadcast", "hash", hash.Hex(), "to", msg.To)
	return hash, nil
}

// WaitForReceipt polls eth_getTransactionReceipt until the receipt appears.
// It has no deadline of its own; ctx bounds the wait.
func (a *Adapter) WaitForReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	ticker := time.NewTicker(a.receiptPoll)
	defer ticker.Stop()

	for {
		raw, err := a.client.GetTransactionReceipt(ctx, hash.Hex())
		if err != nil {
			return nil, err
		}
		if raw != nil {
			return convertReceipt(hash, raw)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	read := func(ctx context.Context) error {
		raw, err := a.client.Call(ctx, rpc.CallMsg{To: to.Hex(), Data: hexutil.Encode(data)}, "latest")
		if err != nil {
			return err
		}
		decoded, err := hexutil.Decode(raw)
		if err != nil {
			return fmt.Errorf("decode call result: %w", err)
		}
		out = decoded
		return nil
	}

	if a.breaker == nil {
		if err := read(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := a.breaker.Do(ctx, read); err != nil {
		return nil, err
	}
	return out, nil
}

func convertReceipt(hash common.Hash, raw *rpc.TransactionReceipt) (*chain.Receipt, error) {
	status, err := rpc.ParseHexInt64(raw.Status)
	if err != nil {
		return nil, fmt.Errorf("parse receipt status: %w", err)
	}
	receipt := &chain.Receipt{
		TxHash: hash,
		Status: uint64(status),
		Logs:   make([]chain.Log, 0, len(raw.Logs)),
	}
	if raw.TransactionHash != "" {
		if h, err := parseHash(raw.TransactionHash); err == nil {
			receipt.TxHash = h
		}
	}
	if block, err := rpc.ParseHexInt64(raw.BlockNumber); err == nil {
		receipt.BlockNumber = uint64(block)
	}

	for i, l := range raw.Logs {
		if l == nil || l.Removed {
			continue
		}
		data, err := hexutil.Decode(normalizeHex(l.Data))
		if err != nil {
			return nil, fmt.Errorf("decode log %d data: %w", i, err)
		}
		topics := make([]common.Hash, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, common.HexToHash(t))
		}
		receipt.Logs = append(receipt.Logs, chain.Log{
			Address: common.HexToAddress(l.Address),
			Topics:  topics,
			Data:    data,
		})
	}
	return receipt, nil
}

func parseHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse hash %q: %w", raw, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("parse hash %q: want %d bytes, got %d", raw, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0x"
	}
	return s
}
