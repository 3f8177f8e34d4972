package model

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var weiPerEther = big.NewInt(1_000_000_000_000_000_000)

// etherAmount is a plain non-negative decimal: no sign, exponent or fraction bar.
var etherAmount = regexp.MustCompile(`^([0-9]+)(\.([0-9]+))?$`)

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// DisplayName prefers the nickname and falls back to the short address.
func DisplayName(nickname string, addr common.Address) string {
	if name := strings.TrimSpace(nickname); name != "" {
		return name
	}
	return ShortAddress(addr)
}

// FormatEther converts wei to an ETH string with the given number of decimals.
func FormatEther(wei *big.Int, decimals int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	if decimals < 0 {
		decimals = 0
	}
	return new(big.Rat).SetFrac(wei, weiPerEther).FloatString(decimals)
}

// ParseEther converts a decimal ETH string such as "0.01" to wei. Amounts
// finer than one wei are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	m := etherAmount.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if len(m[3]) > 18 {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", s)
	}
	return new(big.Int).Set(r.Num()), nil
}
