package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000c0de5")
	alice   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
)

func TestMemoryToken_TransferFrom(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryToken(custody)
	require.NoError(t, m.Mint(alice, big.NewInt(1000)))

	err := m.TransferFrom(ctx, alice, custody, big.NewInt(100))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, m.ApproveFor(ctx, alice, custody, big.NewInt(600)))
	require.NoError(t, m.TransferFrom(ctx, alice, custody, big.NewInt(400)))

	bal, _ := m.BalanceOf(ctx, alice)
	assert.Equal(t, int64(600), bal.Int64())
	bal, _ = m.BalanceOf(ctx, custody)
	assert.Equal(t, int64(400), bal.Int64())
	allowed, _ := m.Allowance(ctx, alice, custody)
	assert.Equal(t, int64(200), allowed.Int64())

	assert.ErrorIs(t, m.TransferFrom(ctx, alice, custody, big.NewInt(0)), ErrInvalidAmount)
}

func TestMemoryToken_Transfer(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryToken(custody)
	require.NoError(t, m.Mint(custody, big.NewInt(50)))

	assert.ErrorIs(t, m.Transfer(ctx, alice, big.NewInt(51)), ErrInsufficientBalance)
	assert.ErrorIs(t, m.Transfer(ctx, common.Address{}, big.NewInt(1)), ErrZeroAddress)
	require.NoError(t, m.Transfer(ctx, alice, big.NewInt(50)))

	bal, _ := m.BalanceOf(ctx, alice)
	assert.Equal(t, int64(50), bal.Int64())
}

func TestMemoryToken_FailNext(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryToken(custody)
	require.NoError(t, m.Mint(custody, big.NewInt(10)))

	boom := errors.New("rpc unavailable")
	m.FailNext(boom)
	assert.ErrorIs(t, m.Transfer(ctx, alice, big.NewInt(1)), boom)
	require.NoError(t, m.Transfer(ctx, alice, big.NewInt(1)))
}

func TestMemoryToken_Validation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryToken(custody)
	assert.ErrorIs(t, m.Mint(alice, big.NewInt(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, m.Mint(common.Address{}, big.NewInt(1)), ErrZeroAddress)
	assert.ErrorIs(t, m.ApproveFor(ctx, alice, custody, nil), ErrInvalidAmount)

	require.NoError(t, m.Approve(ctx, alice, big.NewInt(7)))
	allowed, _ := m.Allowance(ctx, custody, alice)
	assert.Equal(t, int64(7), allowed.Int64())
	assert.Equal(t, custody, m.Custody())
}
