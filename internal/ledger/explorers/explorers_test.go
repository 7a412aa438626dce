package explorers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/cryptofund/internal/config"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger"
	"github.com/MrJamesThe3rd/cryptofund/internal/ledger/explorers"
)

func TestNewRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Explorer.AmountTolerance = "0.0001"
	cfg.Explorer.EtherscanURL = "http://127.0.0.1:1"
	cfg.Explorer.BlockstreamURL = "http://127.0.0.1:1"

	reg, err := explorers.NewRegistry(cfg)
	require.NoError(t, err)

	for _, code := range []string{"btc", "ETH", " usdc "} {
		_, ok := reg.Lookup(code)
		assert.True(t, ok, code)
	}

	_, ok := reg.Lookup("SOL")
	assert.False(t, ok)

	eth, _ := reg.Lookup("ETH")
	res := eth.Verify(context.Background(), ledger.Request{TxHash: "0xabc"})
	assert.Equal(t, ledger.ReasonNotConfigured, res.Reason)
}

func TestNewRegistry_BadTolerance(t *testing.T) {
	cfg := &config.Config{}
	cfg.Explorer.AmountTolerance = "-1"

	_, err := explorers.NewRegistry(cfg)
	assert.Error(t, err)
}
