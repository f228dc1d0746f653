package token

import (
	"context"
	"fmt"
	"math/big"

	"governance-backend/internal/config"
	"governance-backend/pkg/blockchain"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// NewFromConfig 按配置创建代币网关，返回的closer释放RPC连接
func NewFromConfig(ctx context.Context, cfg *config.TokenConfig) (Gateway, func(), error) {
	switch cfg.Provider {
	case config.TokenProviderERC20:
		client, err := blockchain.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		gw, err := NewERC20Gateway(client, common.HexToAddress(cfg.ContractAddress))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return gw, client.Close, nil
	default:
		mem := NewMemoryToken(common.HexToAddress(cfg.CustodyAddress))
		for addr, raw := range cfg.InitialBalances {
			amount, ok := new(big.Int).SetString(raw, 10)
			if !ok || !common.IsHexAddress(addr) {
				return nil, nil, fmt.Errorf("invalid initial balance %s=%s", addr, raw)
			}
			if err := mem.Mint(common.HexToAddress(addr), amount); err != nil {
				return nil, nil, err
			}
		}
		logger.Info("NewFromConfig: memory token ready", "custody", mem.Custody().Hex(), "funded_accounts", len(cfg.InitialBalances))
		return mem, func() {}, nil
	}
}
