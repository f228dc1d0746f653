package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryToken 进程内ERC20模拟
type MemoryToken struct {
	mu         sync.RWMutex
	custody    common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	failNext   error
}

// NewMemoryToken 创建内存代币
func NewMemoryToken(custody common.Address) *MemoryToken {
	return &MemoryToken{
		custody:    custody,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Custody 托管地址
func (m *MemoryToken) Custody() common.Address {
	return m.custody
}

// Mint 铸造代币
func (m *MemoryToken) Mint(to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[to] = new(big.Int).Add(m.balanceLocked(to), amount)
	return nil
}

// FailNext 让下一次写操作返回指定错误
func (m *MemoryToken) FailNext(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

// Transfer 从托管地址转出
func (m *MemoryToken) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	return m.moveLocked(m.custody, to, amount)
}

// TransferFrom 托管地址作为spender转账
func (m *MemoryToken) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	allowed := m.allowanceLocked(from, m.custody)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err := m.moveLocked(from, to, amount); err != nil {
		return err
	}
	m.setAllowanceLocked(from, m.custody, new(big.Int).Sub(allowed, amount))
	return nil
}

// BalanceOf 查询余额
func (m *MemoryToken) BalanceOf(_ context.Context, addr common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.balanceLocked(addr)), nil
}

// Allowance 查询授权额度
func (m *MemoryToken) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(m.allowanceLocked(owner, spender)), nil
}

// Approve 托管地址授权spender
func (m *MemoryToken) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return m.ApproveFor(ctx, m.custody, spender, amount)
}

// ApproveFor 代持有人授权
func (m *MemoryToken) ApproveFor(_ context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAllowanceLocked(owner, spender, new(big.Int).Set(amount))
	logger.Debug("MemoryToken Approve: ", "owner", owner.Hex(), "spender", spender.Hex(), "amount", amount.String())
	return nil
}

func (m *MemoryToken) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *MemoryToken) moveLocked(from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal := m.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, bal, amount)
	}
	m.balances[from] = new(big.Int).Sub(bal, amount)
	m.balances[to] = new(big.Int).Add(m.balanceLocked(to), amount)
	return nil
}

func (m *MemoryToken) balanceLocked(addr common.Address) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

func (m *MemoryToken) allowanceLocked(owner, spender common.Address) *big.Int {
	if byOwner, ok := m.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (m *MemoryToken) setAllowanceLocked(owner, spender common.Address, amount *big.Int) {
	byOwner, ok := m.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		m.allowances[owner] = byOwner
	}
	byOwner[spender] = amount
}
