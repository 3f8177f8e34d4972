package model

import "strings"

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
	NetworkHolesky Network = "holesky"
	NetworkLocal   Network = "local"
)

func (n Network) String() string {
	return string(n)
}

// DefaultChainID returns the EIP-155 chain id conventionally used by the network,
// or 0 when the network has no fixed id.
func (n Network) DefaultChainID() int64 {
	switch n {
	case NetworkMainnet:
		return 1
	case NetworkSepolia:
		return 11155111
	case NetworkHolesky:
		return 17000
	case NetworkLocal:
		return 31337
	default:
		return 0
	}
}

// ExplorerTxURL returns a block explorer link for a transaction hash.
// Networks without a public explorer return "".
func (n Network) ExplorerTxURL(txHash string) string {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return ""
	}
	switch n {
	case NetworkMainnet:
		return "https://etherscan.io/tx/" + txHash
	case NetworkSepolia:
		return "https://sepolia.etherscan.io/tx/" + txHash
	case NetworkHolesky:
		return "https://holesky.etherscan.io/tx/" + txHash
	default:
		return ""
	}
}
