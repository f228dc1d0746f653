package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"governance-backend/pkg/blockchain"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI 标准ERC20接口
const ERC20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20Gateway 链上ERC20代币，托管地址为客户端私钥地址
type ERC20Gateway struct {
	client   *blockchain.Client
	address  common.Address
	contract *bind.BoundContract
}

// NewERC20Gateway 绑定ERC20合约
func NewERC20Gateway(client *blockchain.Client, contractAddr common.Address) (*ERC20Gateway, error) {
	parsedABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	backend := client.Backend()
	return &ERC20Gateway{
		client:   client,
		address:  contractAddr,
		contract: bind.NewBoundContract(contractAddr, parsedABI, backend, backend, backend),
	}, nil
}

// Custody 托管地址
func (g *ERC20Gateway) Custody() common.Address {
	return g.client.From()
}

// Transfer 托管地址转出并等待回执
func (g *ERC20Gateway) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return g.transact(ctx, "transfer", to, amount)
}

// TransferFrom 托管地址作为spender转账
func (g *ERC20Gateway) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return g.transact(ctx, "transferFrom", from, to, amount)
}

// Approve 托管地址授权
func (g *ERC20Gateway) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return g.transact(ctx, "approve", spender, amount)
}

// BalanceOf 查询余额
func (g *ERC20Gateway) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	return g.callUint(ctx, "balanceOf", addr)
}

// Allowance 查询授权额度
func (g *ERC20Gateway) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return g.callUint(ctx, "allowance", owner, spender)
}

func (g *ERC20Gateway) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	var result []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &result, method, args...); err != nil {
		logger.Error("ERC20Gateway Call Error: ", err, "method", method, "token", g.address.Hex())
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty result from %s", method)
	}
	v, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from %s", result[0], method)
	}
	return v, nil
}

func (g *ERC20Gateway) transact(ctx context.Context, method string, args ...interface{}) error {
	auth, err := g.client.TransactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := g.contract.Transact(auth, method, args...)
	if err != nil {
		logger.Error("ERC20Gateway Transact Error: ", err, "method", method, "token", g.address.Hex())
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	logger.Info("ERC20Gateway Transact: ", "method", method, "tx_hash", tx.Hash().Hex())

	if _, err := g.client.WaitForReceipt(ctx, tx); err != nil {
		if errors.Is(err, blockchain.ErrTransactionReverted) {
			return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, method, err)
		}
		// 已广播的交易仍可能上链，不能按失败处理
		return &PendingError{Method: method, TxHash: tx.Hash(), Err: err}
	}
	return nil
}
