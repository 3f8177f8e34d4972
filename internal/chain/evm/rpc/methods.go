package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func (c *Client) ChainID(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}

	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, fmt.Errorf("unmarshal chain id: %w", err)
	}

	chainID, err := ParseHexInt64(hexID)
	if err != nil {
		return 0, fmt.Errorf("parse chain id: %w", err)
	}
	return chainID, nil
}

func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	if string(result) == "null" {
		return []string{}, nil
	}

	var accounts []string
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return accounts, nil
}

// SendTransaction submits msg through eth_sendTransaction. The endpoint is
// expected to hold the signing key (a wallet signer or an unlocked dev node);
// the call returns once the signer accepted and broadcast the transaction.
func (c *Client) SendTransaction(ctx context.Context, msg CallMsg) (string, error) {
	result, err := c.call(ctx, "eth_sendTransaction", []interface{}{msg})
	if err != nil {
		return "", fmt.Errorf("eth_sendTransaction: %w", err)
	}

	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", fmt.Errorf("unmarshal transaction hash: %w", err)
	}
	if strings.TrimSpace(hash) == "" {
		return "", fmt.Errorf("eth_sendTransaction: empty transaction hash")
	}
	return hash, nil
}

func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt(%s): %w", hash, err)
	}
	if string(result) == "null" {
		return nil, nil
	}

	var receipt TransactionReceipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal transaction receipt: %w", err)
	}

	return &receipt, nil
}

// Call runs eth_call at blockTag ("latest" when empty) and returns the raw hex result.
func (c *Client) Call(ctx context.Context, msg CallMsg, blockTag string) (string, error) {
	if blockTag == "" {
		blockTag = "latest"
	}
	result, err := c.call(ctx, "eth_call", []interface{}{msg, blockTag})
	if err != nil {
		return "", fmt.Errorf("eth_call(%s): %w", msg.To, err)
	}

	var data string
	if err := json.Unmarshal(result, &data); err != nil {
		return "", fmt.Errorf("unmarshal call result: %w", err)
	}
	return data, nil
}

func ParseHexInt64(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return int64(parsed), nil
}
