package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ND68/TipJar/internal/chain"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errNoDeployLog     = errors.New("receipt has no logs")
	errShortDeployLog  = errors.New("first log data shorter than an address")
	errZeroDeployedJar = errors.New("extracted address is zero")
)

// DeployedAddress recovers the jar created by a factory call: the last 20
// bytes of the first log's data, taken verbatim rather than ABI-decoded.
func DeployedAddress(logs []chain.Log) (common.Address, error) {
	if len(logs) == 0 {
		return common.Address{}, errNoDeployLog
	}
	data := logs[0].Data
	if len(data) < common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: %d bytes", errShortDeployLog, len(data))
	}
	addr := common.BytesToAddress(data[len(data)-common.AddressLength:])
	if addr == (common.Address{}) {
		return common.Address{}, errZeroDeployedJar
	}
	return addr, nil
}
