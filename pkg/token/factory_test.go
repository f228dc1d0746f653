package token

import (
	"context"
	"testing"

	"governance-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromConfig_Memory(t *testing.T) {
	ctx := context.Background()
	gw, closer, err := NewFromConfig(ctx, &config.TokenConfig{
		Provider:       config.TokenProviderMemory,
		CustodyAddress: custody.Hex(),
		InitialBalances: map[string]string{
			alice.Hex(): "2500",
		},
	})
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, custody, gw.Custody())
	balance, err := gw.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "2500", balance.String())

	_, ok := gw.(OwnerApprover)
	assert.True(t, ok)
}

func TestNewFromConfig_InvalidBalance(t *testing.T) {
	cases := map[string]map[string]string{
		"bad amount":  {alice.Hex(): "lots"},
		"bad address": {"0x1234": "10"},
	}
	for name, balances := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewFromConfig(context.Background(), &config.TokenConfig{
				Provider:        config.TokenProviderMemory,
				CustodyAddress:  custody.Hex(),
				InitialBalances: balances,
			})
			assert.Error(t, err)
		})
	}
}
