package blockchain

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

type ChainType string

const (
	Mainnet ChainType = "btc"
	Testnet ChainType = "btct"
	Regtest ChainType = "btcrt"
	Signet  ChainType = "btcs"
)

// Params maps a configured chain name to its network parameters.
func Params(chainType ChainType) (*chaincfg.Params, error) {
	switch chainType {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown chain type %q", chainType)
}
