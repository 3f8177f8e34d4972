package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUserRejected is returned by SendTransaction when the wallet declined to sign.
var ErrUserRejected = errors.New("user rejected the request")

// AccessPort is the boundary capability the tip jar core uses to reach the chain.
// Implementations must be safe for concurrent reads alongside one in-flight write.
type AccessPort interface {
	// CurrentAccount returns the connected wallet account; ok is false when
	// no account is connected.
	CurrentAccount(ctx context.Context) (account common.Address, ok bool, err error)

	// SendTransaction asks the wallet to sign and broadcast req and returns
	// the transaction hash once the signer has accepted it.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// WaitForReceipt blocks until the receipt for hash is available or ctx is done.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)

	// Call performs a read-only contract call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// TxRequest is an unsigned contract call. Value is in wei and may be nil.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

const (
	ReceiptStatusFailed     uint64 = 0
	ReceiptStatusSuccessful uint64 = 1
)

// Receipt is the confirmation record of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      uint64
	Logs        []Log
}

// Succeeded reports whether the receipt carries a success status.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// Log is an event emitted by a transaction.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}
