// Package explorers builds the verifier registry from configuration.
package explorers

import (
	"github.com/MrJamesThe3rd/cryptofund/internal/config"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/evm"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/utxo"
)

// NewRegistry maps BTC to Blockstream and ETH and USDC to Etherscan. The EVM
// verifiers answer not_configured until an Etherscan key is set.
func NewRegistry(cfg *config.Config) (ledger.Registry, error) {
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}

	etherscan := evm.NewClient(cfg.Explorer.EtherscanURL, cfg.Explorer.EtherscanAPIKey,
		cfg.Explorer.Timeout, cfg.Explorer.EtherscanRPS)
	blockstream := utxo.NewClient(cfg.Explorer.BlockstreamURL, cfg.Explorer.Timeout)

	return ledger.Registry{
		"BTC":  utxo.NewVerifier(blockstream, tolerance),
		"ETH":  evm.NewVerifier(etherscan, evm.Ether(), tolerance),
		"USDC": evm.NewVerifier(etherscan, evm.USDC(cfg.Explorer.USDCContract), tolerance),
	}, nil
}
