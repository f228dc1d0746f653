package governance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"governance-backend/internal/config"
	"governance-backend/internal/types"
	"governance-backend/pkg/logger"
	"governance-backend/pkg/token"

	"github.com/ethereum/go-ethereum/common"
)

// Service 治理服务接口
type Service interface {
	// 管理员注册表
	AddAdmin(ctx context.Context, caller, newAdmin common.Address, role types.AdminRole) error
	RemoveAdmin(ctx context.Context, caller, admin common.Address) error
	ChangeAdminRole(ctx context.Context, caller, admin common.Address, newRole types.AdminRole) error
	SetPermission(ctx context.Context, caller common.Address, selector [4]byte, signature string, minRole types.AdminRole) error
	HasRole(addr common.Address, required types.AdminRole) bool
	IsAdmin(addr common.Address) bool
	GetAdminRole(addr common.Address) types.AdminRole
	GetAdminInfo(addr common.Address) types.AdminInfo
	GetAllAdmins() []types.Admin
	TotalAdmins() uint64
	RequiredConfirmations() uint64
	AdminFloor() uint64
	RegistryStats() types.RegistryStats
	HasPermission(addr common.Address, selector [4]byte) bool
	GetPermissions() []types.Permission

	// 紧急模式
	TriggerEmergency(ctx context.Context, caller common.Address) error
	ResolveEmergency(ctx context.Context, caller common.Address) error
	EmergencyAddAdmin(ctx context.Context, caller, newAdmin common.Address, role types.AdminRole) error
	GetEmergencyState() types.EmergencyState

	// 质押
	StakeForAdmin(ctx context.Context, caller common.Address, amount *big.Int) error
	WithdrawStake(ctx context.Context, caller common.Address, amount *big.Int) error
	ClaimRewards(ctx context.Context, caller common.Address) (*big.Int, error)
	GetStake(addr common.Address) types.StakeRecord
	PendingRewards(addr common.Address) *big.Int
	StakingStats() types.StakingStats

	// 多签提案
	ProposeAddAdmin(ctx context.Context, caller, target common.Address, role types.AdminRole, reason string) (uint64, error)
	ProposeRemoveAdmin(ctx context.Context, caller, target common.Address, reason string) (uint64, error)
	ProposeRoleChange(ctx context.Context, caller, target common.Address, newRole types.AdminRole, reason string) (uint64, error)
	ProposeSlashAdmin(ctx context.Context, caller, target common.Address, reason string) (uint64, error)
	ProposeEmergencyAction(ctx context.Context, caller common.Address, reason string) (uint64, error)
	ConfirmAction(ctx context.Context, caller common.Address, id uint64) error
	ExecuteAction(ctx context.Context, caller common.Address, id uint64) error
	ExecuteSlash(ctx context.Context, caller common.Address, id uint64) error
	CancelAction(ctx context.Context, caller common.Address, id uint64) error
	GetPendingAction(id uint64) (types.PendingAction, bool)
	GetPendingActionsCount() uint64
	ListPendingActions(filter types.ActionFilter) []types.PendingAction
	CanExecuteAction(id uint64) bool
	ActionStatus(id uint64) (types.ActionStatus, bool)

	// 时间锁
	ScheduleTimeLockAddAdmin(ctx context.Context, caller, target common.Address, role types.AdminRole, delaySeconds uint64) (uint64, error)
	ExecuteTimeLock(ctx context.Context, caller common.Address, id uint64) error
	CancelTimeLock(ctx context.Context, caller common.Address, id uint64) error
	GetTimeLock(id uint64) (types.TimeLock, bool)
	GetTimeLocksCount() uint64
	ListTimeLocks(openOnly bool) []types.TimeLock

	// 审计事件
	ListEvents(filter types.EventFilter) ([]types.Event, int)
	VerifyEventLog() types.EventLogVerification
	Subscribe(fn func(events []types.Event))
}

// Params 治理参数
type Params struct {
	Mode             string
	InitialAdmins    []common.Address
	AdminFloor       uint64
	ProposalTTL      time.Duration
	MinTimeLockDelay time.Duration
	MinimumStake     *big.Int
	SlashPercentage  uint64
	MaxSlashCount    uint64
}

// StakingEnabled 是否启用质押
func (p Params) StakingEnabled() bool {
	return p.Mode == config.ModeStaking
}

// DefaultParams 默认参数（质押模式）
func DefaultParams() Params {
	return Params{
		Mode:             config.ModeStaking,
		AdminFloor:       3,
		ProposalTTL:      7 * 24 * time.Hour,
		MinTimeLockDelay: time.Hour,
		MinimumStake:     big.NewInt(1000),
		SlashPercentage:  10,
		MaxSlashCount:    3,
	}
}

// ParamsFromConfig 从配置构建参数
func ParamsFromConfig(cfg *config.GovernanceConfig) (Params, error) {
	minStake, err := cfg.MinimumStakeAmount()
	if err != nil {
		return Params{}, err
	}
	return Params{
		Mode:             cfg.Mode,
		InitialAdmins:    cfg.InitialAdminAddresses(),
		AdminFloor:       cfg.AdminFloor(),
		ProposalTTL:      cfg.ProposalTTL,
		MinTimeLockDelay: cfg.MinTimeLockDelay,
		MinimumStake:     minStake,
		SlashPercentage:  cfg.SlashPercentage,
		MaxSlashCount:    cfg.MaxSlashCount,
	}, nil
}

// Option 服务选项
type Option func(*service)

// WithClock 注入时钟
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

type service struct {
	mu      sync.RWMutex
	params  Params
	store   Store
	gateway token.Gateway
	clock   func() time.Time
	state   *state

	fanout      *fanout
	subMu       sync.RWMutex
	subscribers []func(events []types.Event)
}

// NewService 创建治理服务实例，无持久化数据时执行创世初始化
func NewService(ctx context.Context, params Params, store Store, gateway token.Gateway, opts ...Option) (Service, error) {
	s := &service{
		params:  params,
		store:   store,
		gateway: gateway,
		clock:   time.Now,
		fanout:  newFanout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if params.MinimumStake == nil {
		s.params.MinimumStake = new(big.Int)
	}
	if params.StakingEnabled() && gateway == nil {
		logger.Error("NewService Error: ", ErrInvalidStakingToken, "mode", params.Mode)
		return nil, ErrInvalidStakingToken
	}

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		logger.Error("NewService Error: ", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if snap != nil {
		s.state = stateFromSnapshot(snap)
		if v := VerifyChain(s.state.events); !v.Valid {
			logger.Warn("NewService: event log verification failed", "message", v.Message)
		}
		logger.Info("NewService: restored governance ledger", "total_admins", s.state.meta.TotalAdmins, "events", s.state.meta.EventCount)
		return s, nil
	}

	if err := s.genesis(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// genesis 初始管理员均为SUPER_ADMIN
func (s *service) genesis(ctx context.Context) error {
	admins := s.params.InitialAdmins
	if uint64(len(admins)) < s.params.AdminFloor || len(admins) == 0 {
		err := fmt.Errorf("%w: at least %d initial admin(s) required", ErrNotEnoughInitialAdmins, max(s.params.AdminFloor, 1))
		logger.Error("Genesis Error: ", err, "initial_admins", len(admins))
		return err
	}

	s.state = newState()
	tx := newTxn(s.state, s.clock().Unix())
	seen := make(map[common.Address]bool, len(admins))
	for _, addr := range admins {
		if addr == (common.Address{}) {
			logger.Error("Genesis Error: ", ErrInvalidAddress)
			return ErrInvalidAddress
		}
		if seen[addr] {
			logger.Error("Genesis Error: ", ErrAlreadyAdmin, "address", addr.Hex())
			return ErrAlreadyAdmin
		}
		seen[addr] = true
		tx.activate(addr, types.RoleSuperAdmin)
		tx.emit(types.Event{
			Type:    types.EventAdminAdded,
			Subject: addr,
			NewRole: rolePtr(types.RoleSuperAdmin),
		})
	}
	for _, p := range defaultPermissions() {
		tx.putPermission(p)
	}

	if err := s.store.Commit(ctx, tx.changeSet(), nil); err != nil {
		logger.Error("Genesis Error: ", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.state.merge(tx)
	logger.Info("Genesis: governance ledger initialized", "mode", s.params.Mode, "total_admins", s.state.meta.TotalAdmins, "required_confirmations", s.state.meta.RequiredConfirmations)
	return nil
}

// mutate 在写锁内执行事务，校验、效果、持久化全部成功才并入状态
func (s *service) mutate(ctx context.Context, op string, caller common.Address, fn func(tx *txn) error) error {
	s.mu.Lock()
	tx := newTxn(s.state, s.clock().Unix())
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		logger.Error(op+" Error: ", err, "caller", caller.Hex())
		return err
	}
	if tx.empty() {
		s.mu.Unlock()
		return nil
	}

	cs := tx.changeSet()
	commitCtx := ctx
	if len(tx.effects) > 0 {
		// 代币交易发出后，请求取消不能再回滚账本
		commitCtx = context.WithoutCancel(ctx)
	}
	var effectErr error
	err := s.store.Commit(commitCtx, cs, func(ctx context.Context) error {
		pending, err := tx.runEffects(ctx)
		if err != nil {
			effectErr = err
			return err
		}
		cs.PendingTransfers = pending
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		if effectErr != nil {
			err = fmt.Errorf("%w: %w", ErrTokenTransferFailed, effectErr)
		} else {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		logger.Error(op+" Error: ", err, "caller", caller.Hex())
		return err
	}

	for _, p := range cs.PendingTransfers {
		logger.Warn(op+": token transfer pending confirmation", "tx_hash", p.TxHash.Hex(), "method", p.Method, "account", p.Account.Hex(), "amount", p.Amount.String())
	}
	s.state.merge(tx)
	events := tx.events
	turn := s.fanout.take()
	s.mu.Unlock()

	s.fanout.deliver(turn, func() { s.publish(events) })
	return nil
}

// fanout 按提交顺序向订阅者投递，不持有账本锁
type fanout struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	next   uint64
}

func newFanout() *fanout {
	f := &fanout{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// take 领取投递序号，须在账本写锁内调用
func (f *fanout) take() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.issued
	f.issued++
	return t
}

// deliver 等到轮次后执行fn。订阅回调内不能再发起写操作
func (f *fanout) deliver(turn uint64, fn func()) {
	f.mu.Lock()
	for f.next != turn {
		f.cond.Wait()
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.next++
		f.mu.Unlock()
		f.cond.Broadcast()
	}()
	fn()
}

// Subscribe 订阅已提交事件，回调在锁外按提交顺序同步执行
func (s *service) Subscribe(fn func(events []types.Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *service) publish(events []types.Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.RLock()
	subs := append([]func([]types.Event){}, s.subscribers...)
	s.subMu.RUnlock()
	for _, fn := range subs {
		out := make([]types.Event, len(events))
		copy(out, events)
		fn(out)
	}
}

func (s *service) now() int64 {
	return s.clock().Unix()
}

// ListEvents 查询审计事件
func (s *service) ListEvents(filter types.EventFilter) ([]types.Event, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterEvents(s.state.events, filter)
}

// VerifyEventLog 校验审计日志哈希链
func (s *service) VerifyEventLog() types.EventLogVerification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := VerifyChain(s.state.events)
	if v.Valid && v.HeadHash != s.state.meta.HeadHash {
		v.Valid = false
		v.Message = "head hash does not match ledger state"
	}
	return v
}

// requireNotEmergency 紧急模式下拒绝常规写操作
func (tx *txn) requireNotEmergency() error {
	if tx.meta.Emergency.EmergencyMode {
		return ErrEmergencyMode
	}
	return nil
}

func (tx *txn) requireStaking(p Params) error {
	if !p.StakingEnabled() {
		return ErrStakingDisabled
	}
	return nil
}
