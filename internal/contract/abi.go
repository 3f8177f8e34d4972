package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// JarABI is the subset of the tip jar contract the client talks to.
const JarABI = `[
  {"type":"function","name":"tip","stateMutability":"payable",
   "inputs":[{"name":"message","type":"string"},{"name":"nickname","type":"string"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getTipHistory","stateMutability":"view","inputs":[],
   "outputs":[
     {"name":"senders","type":"address[]"},
     {"name":"amounts","type":"uint256[]"},
     {"name":"messages","type":"string[]"},
     {"name":"names","type":"string[]"},
     {"name":"timestamps","type":"uint256[]"}]},
  {"type":"function","name":"getContributors","stateMutability":"view","inputs":[],
   "outputs":[
     {"name":"addresses","type":"address[]"},
     {"name":"amounts","type":"uint256[]"},
     {"name":"names","type":"string[]"}]}
]`

// FactoryABI describes the factory that deploys one jar per caller. The
// created jar address is read from the raw data of the receipt's first log,
// whatever event the factory emits.
const FactoryABI = `[
  {"type":"function","name":"createMyTipJar","stateMutability":"nonpayable","inputs":[],
   "outputs":[{"name":"","type":"address"}]}
]`

var (
	jarABI     = mustParse(JarABI)
	factoryABI = mustParse(FactoryABI)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contract: parse abi: " + err.Error())
	}
	return parsed
}
