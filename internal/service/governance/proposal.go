package governance

import (
	"context"
	"math/big"
	"sort"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// proposal 提案草稿
type proposal struct {
	actionType types.ActionType
	target     common.Address
	newRole    types.AdminRole
	amount     *big.Int
	reason     string
}

// propose 创建提案，提议者自动确认
func (tx *txn) propose(p Params, caller common.Address, draft proposal) uint64 {
	id := tx.meta.NextActionID
	tx.meta.NextActionID++

	amount := draft.amount
	if amount == nil {
		amount = new(big.Int)
	}
	tx.putAction(types.PendingAction{
		ID:                    id,
		ActionType:            draft.actionType,
		Proposer:              caller,
		Target:                draft.target,
		NewRole:               draft.newRole,
		Amount:                amount,
		Reason:                draft.reason,
		Confirmations:         1,
		Confirmers:            []common.Address{caller},
		RequiredConfirmations: tx.meta.RequiredConfirmations,
		CreatedAt:             tx.now,
		Deadline:              tx.now + int64(p.ProposalTTL.Seconds()),
	})

	ev := types.Event{
		Type:       types.EventActionProposed,
		Actor:      caller,
		Subject:    draft.target,
		ActionID:   id,
		ActionType: actionTypePtr(draft.actionType),
		Reason:     draft.reason,
	}
	if draft.actionType == types.ActionAddAdmin || draft.actionType == types.ActionChangeRole {
		ev.NewRole = rolePtr(draft.newRole)
	}
	if draft.actionType == types.ActionStakeSlash {
		ev.Amount = amountPtr(amount)
	}
	tx.emit(ev)
	return id
}

// proposeWith 提案公共校验：非紧急模式、调用者为SUPER_ADMIN
func (s *service) proposeWith(ctx context.Context, op string, caller common.Address, build func(tx *txn) (proposal, error)) (uint64, error) {
	var id uint64
	err := s.mutate(ctx, op, caller, func(tx *txn) error {
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		if err := tx.requireSuperAdmin(caller, ErrInsufficientPrivileges); err != nil {
			return err
		}
		draft, err := build(tx)
		if err != nil {
			return err
		}
		id = tx.propose(s.params, caller, draft)
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info(op+": ", "caller", caller.Hex(), "action_id", id)
	return id, nil
}

// ProposeAddAdmin 提议添加管理员
func (s *service) ProposeAddAdmin(ctx context.Context, caller, target common.Address, role types.AdminRole, reason string) (uint64, error) {
	return s.proposeWith(ctx, "ProposeAddAdmin", caller, func(tx *txn) (proposal, error) {
		if err := tx.validateNewAdmin(target, role); err != nil {
			return proposal{}, err
		}
		return proposal{actionType: types.ActionAddAdmin, target: target, newRole: role, reason: reason}, nil
	})
}

// ProposeRemoveAdmin 提议移除管理员
func (s *service) ProposeRemoveAdmin(ctx context.Context, caller, target common.Address, reason string) (uint64, error) {
	return s.proposeWith(ctx, "ProposeRemoveAdmin", caller, func(tx *txn) (proposal, error) {
		if _, err := tx.validateRemoval(target, s.params.AdminFloor); err != nil {
			return proposal{}, err
		}
		return proposal{actionType: types.ActionRemoveAdmin, target: target, reason: reason}, nil
	})
}

// ProposeRoleChange 提议修改角色
func (s *service) ProposeRoleChange(ctx context.Context, caller, target common.Address, newRole types.AdminRole, reason string) (uint64, error) {
	return s.proposeWith(ctx, "ProposeRoleChange", caller, func(tx *txn) (proposal, error) {
		if _, err := tx.validateRoleChange(target, newRole); err != nil {
			return proposal{}, err
		}
		return proposal{actionType: types.ActionChangeRole, target: target, newRole: newRole, reason: reason}, nil
	})
}

// ProposeSlashAdmin 提议罚没，amount为按当前质押预估的罚没额
func (s *service) ProposeSlashAdmin(ctx context.Context, caller, target common.Address, reason string) (uint64, error) {
	return s.proposeWith(ctx, "ProposeSlashAdmin", caller, func(tx *txn) (proposal, error) {
		if err := tx.requireStaking(s.params); err != nil {
			return proposal{}, err
		}
		if _, ok := tx.serving(target); !ok {
			return proposal{}, ErrNotAdmin
		}
		rec := tx.stake(target)
		if rec.StakedAmount.Sign() == 0 {
			return proposal{}, ErrNoStakeToSlash
		}
		estimate := new(big.Int).Mul(rec.StakedAmount, new(big.Int).SetUint64(s.params.SlashPercentage))
		estimate.Quo(estimate, big.NewInt(100))
		return proposal{actionType: types.ActionStakeSlash, target: target, amount: estimate, reason: reason}, nil
	})
}

// ProposeEmergencyAction 多签进入紧急模式
func (s *service) ProposeEmergencyAction(ctx context.Context, caller common.Address, reason string) (uint64, error) {
	return s.proposeWith(ctx, "ProposeEmergencyAction", caller, func(tx *txn) (proposal, error) {
		return proposal{actionType: types.ActionEmergency, reason: reason}, nil
	})
}

// openAction 校验提案存在且未终结
func (tx *txn) openAction(id uint64) (types.PendingAction, error) {
	a, ok := tx.action(id)
	if !ok {
		return a, ErrInvalidActionID
	}
	if a.Executed {
		return a, ErrActionExecuted
	}
	if a.Cancelled {
		return a, ErrActionCancelled
	}
	if tx.now > a.Deadline {
		return a, ErrActionExpired
	}
	return a, nil
}

// threshold 快照值与当前值取大
func threshold(a types.PendingAction, live uint64) uint64 {
	if live > a.RequiredConfirmations {
		return live
	}
	return a.RequiredConfirmations
}

// ConfirmAction 确认提案，截止时间当秒仍可确认
func (s *service) ConfirmAction(ctx context.Context, caller common.Address, id uint64) error {
	var confirmations uint64
	err := s.mutate(ctx, "ConfirmAction", caller, func(tx *txn) error {
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		a, err := tx.openAction(id)
		if err != nil {
			return err
		}
		if err := tx.requireActiveAdmin(caller); err != nil {
			return err
		}
		if a.HasConfirmed(caller) {
			return ErrAlreadyConfirmed
		}
		a.Confirmers = append(a.Confirmers, caller)
		a.Confirmations++
		tx.putAction(a)
		tx.emit(types.Event{
			Type:       types.EventActionConfirmed,
			Actor:      caller,
			Subject:    a.Target,
			ActionID:   id,
			ActionType: actionTypePtr(a.ActionType),
		})
		confirmations = a.Confirmations
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("ConfirmAction: ", "caller", caller.Hex(), "action_id", id, "confirmations", confirmations)
	return nil
}

// execute 执行提案；slashEntry区分ExecuteSlash入口
func (s *service) execute(ctx context.Context, op string, caller common.Address, id uint64, slashEntry bool) error {
	var actionType types.ActionType
	err := s.mutate(ctx, op, caller, func(tx *txn) error {
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		if err := tx.requireActiveAdmin(caller); err != nil {
			return err
		}
		a, err := tx.openAction(id)
		if err != nil {
			return err
		}
		if (a.ActionType == types.ActionStakeSlash) != slashEntry {
			return ErrWrongActionType
		}
		if a.Confirmations < threshold(a, tx.meta.RequiredConfirmations) {
			return ErrInsufficientConfirmations
		}
		actionType = a.ActionType

		switch a.ActionType {
		case types.ActionAddAdmin:
			err = tx.applyAddAdmin(caller, a.Target, a.NewRole, id)
		case types.ActionRemoveAdmin:
			err = tx.applyRemoveAdmin(caller, a.Target, s.params.AdminFloor, id)
		case types.ActionChangeRole:
			err = tx.applyRoleChange(caller, a.Target, a.NewRole, id)
		case types.ActionEmergency:
			err = tx.enterEmergency(caller, id)
		case types.ActionStakeSlash:
			if err = tx.requireStaking(s.params); err == nil {
				err = tx.slash(s.params, caller, a.Target, a.Reason, id)
			}
		default:
			err = ErrWrongActionType
		}
		if err != nil {
			return err
		}

		a.Executed = true
		a.ExecutedAt = tx.now
		tx.putAction(a)
		tx.emit(types.Event{
			Type:       types.EventActionExecuted,
			Actor:      caller,
			Subject:    a.Target,
			ActionID:   id,
			ActionType: actionTypePtr(a.ActionType),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(op+": ", "caller", caller.Hex(), "action_id", id, "action_type", actionType.String())
	return nil
}

// ExecuteAction 执行非罚没类提案
func (s *service) ExecuteAction(ctx context.Context, caller common.Address, id uint64) error {
	return s.execute(ctx, "ExecuteAction", caller, id, false)
}

// ExecuteSlash 执行罚没提案
func (s *service) ExecuteSlash(ctx context.Context, caller common.Address, id uint64) error {
	return s.execute(ctx, "ExecuteSlash", caller, id, true)
}

// CancelAction 提议者或SUPER_ADMIN取消，紧急模式下同样可用
func (s *service) CancelAction(ctx context.Context, caller common.Address, id uint64) error {
	err := s.mutate(ctx, "CancelAction", caller, func(tx *txn) error {
		a, ok := tx.action(id)
		if !ok {
			return ErrInvalidActionID
		}
		if a.Executed {
			return ErrActionExecuted
		}
		if a.Cancelled {
			return ErrActionCancelled
		}
		if caller != a.Proposer {
			if err := tx.requireSuperAdmin(caller, ErrNotProposer); err != nil {
				return err
			}
		}
		a.Cancelled = true
		a.CancelledAt = tx.now
		tx.putAction(a)
		tx.emit(types.Event{
			Type:       types.EventActionCancelled,
			Actor:      caller,
			Subject:    a.Target,
			ActionID:   id,
			ActionType: actionTypePtr(a.ActionType),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("CancelAction: ", "caller", caller.Hex(), "action_id", id)
	return nil
}

// GetPendingAction 查询提案
func (s *service) GetPendingAction(id uint64) (types.PendingAction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.actions[id]
	if !ok {
		return types.PendingAction{}, false
	}
	return a.Clone(), true
}

// GetPendingActionsCount 已分配的提案数量
func (s *service) GetPendingActionsCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.meta.NextActionID - 1
}

// ListPendingActions 按编号升序列出提案
func (s *service) ListPendingActions(filter types.ActionFilter) []types.PendingAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]types.PendingAction, 0)
	for _, a := range s.state.actions {
		if filter.OpenOnly && a.Status(now) != types.ActionStatusPending {
			continue
		}
		if filter.Type != nil && a.ActionType != *filter.Type {
			continue
		}
		if filter.Proposer != nil && a.Proposer != *filter.Proposer {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CanExecuteAction 未终结、未过期且确认数达到阈值
func (s *service) CanExecuteAction(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.actions[id]
	if !ok {
		return false
	}
	if a.Status(s.now()) != types.ActionStatusPending {
		return false
	}
	return a.Confirmations >= threshold(a, s.state.meta.RequiredConfirmations)
}

// ActionStatus 提案当前状态
func (s *service) ActionStatus(id uint64) (types.ActionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.actions[id]
	if !ok {
		return "", false
	}
	return a.Status(s.now()), true
}
