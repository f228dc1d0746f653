package governance

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"governance-backend/internal/types"
	"governance-backend/pkg/token"

	"github.com/ethereum/go-ethereum/common"
)

// Store 账本持久化接口
type Store interface {
	// LoadSnapshot 加载完整账本，未初始化时返回nil
	LoadSnapshot(ctx context.Context) (*types.LedgerSnapshot, error)
	// Commit 原子写入变更；effects在同一事务内执行，返回错误则整体回滚
	Commit(ctx context.Context, changes *types.LedgerChangeSet, effects func(ctx context.Context) error) error
}

// state 已提交的账本状态，仅在持有写锁时修改
type state struct {
	admins      map[common.Address]types.Admin
	stakes      map[common.Address]types.StakeRecord
	actions     map[uint64]types.PendingAction
	timelocks   map[uint64]types.TimeLock
	permissions map[[4]byte]types.Permission
	meta        types.LedgerMeta
	events      []types.Event
}

func newState() *state {
	return &state{
		admins:      make(map[common.Address]types.Admin),
		stakes:      make(map[common.Address]types.StakeRecord),
		actions:     make(map[uint64]types.PendingAction),
		timelocks:   make(map[uint64]types.TimeLock),
		permissions: make(map[[4]byte]types.Permission),
		meta: types.LedgerMeta{
			NextActionID:      1,
			NextTimeLockID:    1,
			NextOrdinal:       1,
			TotalStaked:       new(big.Int),
			RewardPool:        new(big.Int),
			AccRewardPerShare: new(big.Int),
		},
	}
}

func stateFromSnapshot(snap *types.LedgerSnapshot) *state {
	st := newState()
	for _, a := range snap.Admins {
		st.admins[a.Address] = a
	}
	for _, s := range snap.Stakes {
		st.stakes[s.Admin] = s.Clone()
	}
	for _, a := range snap.Actions {
		st.actions[a.ID] = a.Clone()
	}
	for _, t := range snap.TimeLocks {
		st.timelocks[t.ID] = t
	}
	for _, p := range snap.Permissions {
		st.permissions[p.Selector] = p
	}
	st.meta = snap.Meta.Clone()
	st.events = append(st.events, snap.Events...)
	sort.Slice(st.events, func(i, j int) bool { return st.events[i].Sequence < st.events[j].Sequence })
	return st
}

// txn 写时复制事务，提交成功前对读者不可见
type txn struct {
	base        *state
	now         int64
	admins      map[common.Address]types.Admin
	stakes      map[common.Address]types.StakeRecord
	actions     map[uint64]types.PendingAction
	timelocks   map[uint64]types.TimeLock
	permissions map[[4]byte]types.Permission
	meta        types.LedgerMeta
	events      []types.Event
	effects     []effect
}

// effect 提交时执行的代币转账
type effect struct {
	method  string
	account common.Address
	amount  *big.Int
	run     func(ctx context.Context) error
}

func newTxn(base *state, now int64) *txn {
	return &txn{
		base:        base,
		now:         now,
		admins:      make(map[common.Address]types.Admin),
		stakes:      make(map[common.Address]types.StakeRecord),
		actions:     make(map[uint64]types.PendingAction),
		timelocks:   make(map[uint64]types.TimeLock),
		permissions: make(map[[4]byte]types.Permission),
		meta:        base.meta.Clone(),
	}
}

func (tx *txn) admin(addr common.Address) (types.Admin, bool) {
	if a, ok := tx.admins[addr]; ok {
		return a, true
	}
	a, ok := tx.base.admins[addr]
	return a, ok
}

func (tx *txn) putAdmin(a types.Admin) {
	tx.admins[a.Address] = a
}

// serving 地址是否为在任管理员，返回其记录
func (tx *txn) serving(addr common.Address) (types.Admin, bool) {
	a, ok := tx.admin(addr)
	return a, ok && a.Serving()
}

// stake 返回可修改的质押记录副本
func (tx *txn) stake(addr common.Address) types.StakeRecord {
	if s, ok := tx.stakes[addr]; ok {
		return s.Clone()
	}
	if s, ok := tx.base.stakes[addr]; ok {
		return s.Clone()
	}
	return types.NewStakeRecord(addr)
}

func (tx *txn) putStake(s types.StakeRecord) {
	tx.stakes[s.Admin] = s
}

func (tx *txn) action(id uint64) (types.PendingAction, bool) {
	if a, ok := tx.actions[id]; ok {
		return a.Clone(), true
	}
	a, ok := tx.base.actions[id]
	if !ok {
		return types.PendingAction{}, false
	}
	return a.Clone(), true
}

func (tx *txn) putAction(a types.PendingAction) {
	tx.actions[a.ID] = a
}

func (tx *txn) timelock(id uint64) (types.TimeLock, bool) {
	if t, ok := tx.timelocks[id]; ok {
		return t, true
	}
	t, ok := tx.base.timelocks[id]
	return t, ok
}

func (tx *txn) putTimeLock(t types.TimeLock) {
	tx.timelocks[t.ID] = t
}

func (tx *txn) putPermission(p types.Permission) {
	tx.permissions[p.Selector] = p
}

func (tx *txn) permission(sel [4]byte) (types.Permission, bool) {
	if p, ok := tx.permissions[sel]; ok {
		return p, p.MinRole != types.RoleNone
	}
	p, ok := tx.base.permissions[sel]
	return p, ok
}

// deferEffect 登记提交时执行的代币操作，关联本事务最后一条事件
func (tx *txn) deferEffect(method string, account common.Address, amount *big.Int, fn func(ctx context.Context) error) {
	tx.effects = append(tx.effects, effect{method: method, account: account, amount: amount, run: fn})
}

// runEffects 依次执行代币操作；已广播未确认的交易不算失败，返回待确认列表
func (tx *txn) runEffects(ctx context.Context) ([]types.PendingTransfer, error) {
	var pending []types.PendingTransfer
	for _, e := range tx.effects {
		err := e.run(ctx)
		var pe *token.PendingError
		switch {
		case err == nil:
		case errors.As(err, &pe):
			p := types.PendingTransfer{
				TxHash:    pe.TxHash,
				Method:    e.method,
				Account:   e.account,
				Amount:    new(big.Int).Set(e.amount),
				CreatedAt: tx.now,
			}
			if n := len(tx.events); n > 0 {
				p.Sequence = tx.events[n-1].Sequence
			}
			pending = append(pending, p)
		default:
			return nil, err
		}
	}
	return pending, nil
}

func (tx *txn) empty() bool {
	return len(tx.admins) == 0 && len(tx.stakes) == 0 && len(tx.actions) == 0 &&
		len(tx.timelocks) == 0 && len(tx.permissions) == 0 && len(tx.events) == 0 && len(tx.effects) == 0
}

// changeSet 导出本次事务的变更，按键排序保证写入顺序稳定
func (tx *txn) changeSet() *types.LedgerChangeSet {
	cs := &types.LedgerChangeSet{Meta: tx.meta.Clone()}
	for _, a := range tx.admins {
		cs.Admins = append(cs.Admins, a)
	}
	sort.Slice(cs.Admins, func(i, j int) bool {
		return cs.Admins[i].Address.Cmp(cs.Admins[j].Address) < 0
	})
	for _, s := range tx.stakes {
		cs.Stakes = append(cs.Stakes, s.Clone())
	}
	sort.Slice(cs.Stakes, func(i, j int) bool {
		return cs.Stakes[i].Admin.Cmp(cs.Stakes[j].Admin) < 0
	})
	for _, a := range tx.actions {
		cs.Actions = append(cs.Actions, a.Clone())
	}
	sort.Slice(cs.Actions, func(i, j int) bool { return cs.Actions[i].ID < cs.Actions[j].ID })
	for _, t := range tx.timelocks {
		cs.TimeLocks = append(cs.TimeLocks, t)
	}
	sort.Slice(cs.TimeLocks, func(i, j int) bool { return cs.TimeLocks[i].ID < cs.TimeLocks[j].ID })
	for _, p := range tx.permissions {
		cs.Permissions = append(cs.Permissions, p)
	}
	sort.Slice(cs.Permissions, func(i, j int) bool {
		return string(cs.Permissions[i].Selector[:]) < string(cs.Permissions[j].Selector[:])
	})
	cs.Events = append(cs.Events, tx.events...)
	return cs
}

// merge 提交成功后并入已提交状态
func (st *state) merge(tx *txn) {
	for k, v := range tx.admins {
		st.admins[k] = v
	}
	for k, v := range tx.stakes {
		st.stakes[k] = v
	}
	for k, v := range tx.actions {
		st.actions[k] = v
	}
	for k, v := range tx.timelocks {
		st.timelocks[k] = v
	}
	for k, v := range tx.permissions {
		if v.MinRole == types.RoleNone {
			delete(st.permissions, k)
			continue
		}
		st.permissions[k] = v
	}
	st.meta = tx.meta
	st.events = append(st.events, tx.events...)
}

// MemoryStore 内存存储，用于测试和无数据库运行
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *types.LedgerSnapshot
	commits  int
	pending  []types.PendingTransfer
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadSnapshot 返回已保存账本的副本
func (m *MemoryStore) LoadSnapshot(_ context.Context) (*types.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	st := stateFromSnapshot(m.snapshot)
	return st.snapshot(), nil
}

// Commit 先执行effects，成功后应用变更
func (m *MemoryStore) Commit(ctx context.Context, changes *types.LedgerChangeSet, effects func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if effects != nil {
		if err := effects(ctx); err != nil {
			return err
		}
	}

	st := newState()
	if m.snapshot != nil {
		st = stateFromSnapshot(m.snapshot)
	}
	tx := newTxn(st, 0)
	for _, a := range changes.Admins {
		tx.putAdmin(a)
	}
	for _, s := range changes.Stakes {
		tx.putStake(s.Clone())
	}
	for _, a := range changes.Actions {
		tx.putAction(a.Clone())
	}
	for _, t := range changes.TimeLocks {
		tx.putTimeLock(t)
	}
	for _, p := range changes.Permissions {
		tx.putPermission(p)
	}
	tx.meta = changes.Meta.Clone()
	tx.events = append(tx.events, changes.Events...)
	st.merge(tx)

	m.snapshot = st.snapshot()
	m.commits++
	m.pending = append(m.pending, changes.PendingTransfers...)
	return nil
}

// PendingTransfers 已记录的未确认交易
func (m *MemoryStore) PendingTransfers() []types.PendingTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.PendingTransfer(nil), m.pending...)
}

// Commits 成功提交次数
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (st *state) snapshot() *types.LedgerSnapshot {
	snap := &types.LedgerSnapshot{Meta: st.meta.Clone()}
	for _, a := range st.admins {
		snap.Admins = append(snap.Admins, a)
	}
	for _, s := range st.stakes {
		snap.Stakes = append(snap.Stakes, s.Clone())
	}
	for _, a := range st.actions {
		snap.Actions = append(snap.Actions, a.Clone())
	}
	for _, t := range st.timelocks {
		snap.TimeLocks = append(snap.TimeLocks, t)
	}
	for _, p := range st.permissions {
		snap.Permissions = append(snap.Permissions, p)
	}
	snap.Events = append(snap.Events, st.events...)
	return snap
}
