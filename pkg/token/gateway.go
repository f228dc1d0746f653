package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrZeroAddress           = errors.New("transfer to the zero address")
	ErrTransactionFailed     = errors.New("token transaction reverted")
	ErrNotSupported          = errors.New("operation not supported by token provider")
	ErrTransferPending       = errors.New("token transaction sent but not yet confirmed")
)

// PendingError 交易已广播，但等待期内未拿到回执
type PendingError struct {
	Method string
	TxHash common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.TxHash.Hex(), e.Err)
}

func (e *PendingError) Is(target error) bool {
	return target == ErrTransferPending
}

func (e *PendingError) Unwrap() error {
	return e.Err
}

// Gateway 同质化代币接口，custody为治理账本托管地址
type Gateway interface {
	// Transfer 从托管地址转出
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	// TransferFrom 以托管地址为spender从from转到to
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	// Approve 托管地址授权spender
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
	Custody() common.Address
}

// OwnerApprover 可代任意持有人授权的代币（仅模拟代币）
type OwnerApprover interface {
	ApproveFor(ctx context.Context, owner, spender common.Address, amount *big.Int) error
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
