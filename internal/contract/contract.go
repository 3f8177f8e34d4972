package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	MethodTip             = "tip"
	MethodWithdraw        = "withdraw"
	MethodOwner           = "owner"
	MethodGetTipHistory   = "getTipHistory"
	MethodGetContributors = "getContributors"
	MethodCreateMyTipJar  = "createMyTipJar"
)

// TipHistory is the raw parallel-array result of getTipHistory.
type TipHistory struct {
	Senders    []common.Address
	Amounts    []*big.Int
	Messages   []string
	Names      []string
	Timestamps []*big.Int
}

// Contributors is the raw parallel-array result of getContributors.
type Contributors struct {
	Addresses []common.Address
	Amounts   []*big.Int
	Names     []string
}

func PackTip(message, nickname string) ([]byte, error) {
	return pack(jarABI, MethodTip, message, nickname)
}

func PackWithdraw() ([]byte, error) {
	return pack(jarABI, MethodWithdraw)
}

func PackOwner() ([]byte, error) {
	return pack(jarABI, MethodOwner)
}

func PackGetTipHistory() ([]byte, error) {
	return pack(jarABI, MethodGetTipHistory)
}

func PackGetContributors() ([]byte, error) {
	return pack(jarABI, MethodGetContributors)
}

func PackCreateMyTipJar() ([]byte, error) {
	return pack(factoryABI, MethodCreateMyTipJar)
}

func UnpackTipHistory(data []byte) (*TipHistory, error) {
	var out TipHistory
	if err := jarABI.UnpackIntoInterface(&out, MethodGetTipHistory, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", MethodGetTipHistory, err)
	}
	return &out, nil
}

func UnpackContributors(data []byte) (*Contributors, error) {
	var out Contributors
	if err := jarABI.UnpackIntoInterface(&out, MethodGetContributors, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", MethodGetContributors, err)
	}
	return &out, nil
}

func UnpackOwner(data []byte) (common.Address, error) {
	values, err := jarABI.Unpack(MethodOwner, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", MethodOwner, err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unpack %s: want 1 value, got %d", MethodOwner, len(values))
	}
	return *abi.ConvertType(values[0], new(common.Address)).(*common.Address), nil
}

func pack(parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}
