package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"governance-backend/internal/config"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTransactionReverted 交易已上链但执行失败
var ErrTransactionReverted = errors.New("transaction reverted")

// Client 单链RPC客户端，持有托管私钥
type Client struct {
	eth            *ethclient.Client
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	from           common.Address
	receiptTimeout time.Duration
}

// NewClient 连接RPC并校验链ID
func NewClient(ctx context.Context, cfg *config.TokenConfig) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		logger.Error("NewClient Error: ", errors.New("invalid private key"), "error: ", err)
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		logger.Error("NewClient Error: ", err, "rpc_url", maskURL(cfg.RPCURL))
		return nil, fmt.Errorf("failed to connect to rpc: %w", err)
	}

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chainID, err := eth.ChainID(pingCtx)
	if err != nil {
		eth.Close()
		logger.Error("NewClient Error: ", err, "rpc_url", maskURL(cfg.RPCURL))
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, rpc reports %s", cfg.ChainID, chainID)
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	c := &Client{
		eth:            eth,
		chainID:        chainID,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		receiptTimeout: timeout,
	}
	logger.Info("Successfully connected to chain", "chain_id", chainID.String(), "rpc_url", maskURL(cfg.RPCURL), "from", c.from.Hex())
	return c, nil
}

// Backend 底层客户端，用于绑定合约
func (c *Client) Backend() *ethclient.Client {
	return c.eth
}

// From 托管私钥对应地址
func (c *Client) From() common.Address {
	return c.from
}

// TransactOpts 生成签名交易参数
func (c *Client) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

// WaitForReceipt 等待交易上链，调用方取消不会中断等待，status非1视为失败
func (c *Client) WaitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		logger.Error("WaitForReceipt Error: ", err, "tx_hash", tx.Hash().Hex())
		return nil, fmt.Errorf("waiting for receipt of %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.Error("WaitForReceipt Error: ", ErrTransactionReverted, "tx_hash", tx.Hash().Hex())
		return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, tx.Hash().Hex())
	}
	logger.Info("WaitForReceipt: ", "tx_hash", tx.Hash().Hex(), "block", receipt.BlockNumber.String())
	return receipt, nil
}

// Close 关闭连接
func (c *Client) Close() {
	c.eth.Close()
	logger.Info("Closed RPC client", "chain_id", c.chainID.String())
}

// maskURL 遮蔽URL中的API密钥用于日志记录
func maskURL(url string) string {
	parts := strings.Split(url, "/")
	if len(parts) > 0 {
		lastPart := parts[len(parts)-1]
		if len(lastPart) > 8 {
			parts[len(parts)-1] = lastPart[:4] + "****" + lastPart[len(lastPart)-4:]
		}
	}
	return strings.Join(parts, "/")
}
