package governance

import (
	"context"
	"math"
	"sort"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ScheduleTimeLockAddAdmin 调度延时添加管理员，无需确认
func (s *service) ScheduleTimeLockAddAdmin(ctx context.Context, caller, target common.Address, role types.AdminRole, delaySeconds uint64) (uint64, error) {
	var id uint64
	var unlock int64
	err := s.mutate(ctx, "ScheduleTimeLockAddAdmin", caller, func(tx *txn) error {
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		if err := tx.requireSuperAdmin(caller, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if delaySeconds < uint64(s.params.MinTimeLockDelay.Seconds()) {
			return ErrDelayTooShort
		}
		if delaySeconds > uint64(math.MaxInt64-tx.now) {
			return ErrDelayTooLong
		}
		if err := tx.validateNewAdmin(target, role); err != nil {
			return err
		}

		id = tx.meta.NextTimeLockID
		tx.meta.NextTimeLockID++
		unlock = tx.now + int64(delaySeconds)
		tx.putTimeLock(types.TimeLock{
			ID: id,
			Action: types.TimeLockPayload{
				ActionType: types.ActionAddAdmin,
				Proposer:   caller,
				Target:     target,
				NewRole:    role,
			},
			UnlockTime: unlock,
			CreatedAt:  tx.now,
		})
		tx.emit(types.Event{
			Type:       types.EventTimeLockScheduled,
			Actor:      caller,
			Subject:    target,
			ActionID:   id,
			ActionType: actionTypePtr(types.ActionAddAdmin),
			NewRole:    rolePtr(role),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info("ScheduleTimeLockAddAdmin: ", "caller", caller.Hex(), "timelock_id", id, "target", target.Hex(), "unlock_time", unlock)
	return id, nil
}

func (tx *txn) openTimeLock(id uint64) (types.TimeLock, error) {
	t, ok := tx.timelock(id)
	if !ok {
		return t, ErrInvalidTimeLockID
	}
	if t.Executed {
		return t, ErrTimeLockExecuted
	}
	if t.Cancelled {
		return t, ErrTimeLockCancelled
	}
	return t, nil
}

// ExecuteTimeLock 解锁时间到达后执行，时间是唯一门槛
func (s *service) ExecuteTimeLock(ctx context.Context, caller common.Address, id uint64) error {
	err := s.mutate(ctx, "ExecuteTimeLock", caller, func(tx *txn) error {
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		if err := tx.requireActiveAdmin(caller); err != nil {
			return err
		}
		t, err := tx.openTimeLock(id)
		if err != nil {
			return err
		}
		if tx.now < t.UnlockTime {
			return ErrTimeLockNotReady
		}
		if err := tx.applyAddAdmin(caller, t.Action.Target, t.Action.NewRole, 0); err != nil {
			return err
		}
		t.Executed = true
		tx.putTimeLock(t)
		tx.emit(types.Event{
			Type:       types.EventTimeLockExecuted,
			Actor:      caller,
			Subject:    t.Action.Target,
			ActionID:   id,
			ActionType: actionTypePtr(t.Action.ActionType),
			NewRole:    rolePtr(t.Action.NewRole),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("ExecuteTimeLock: ", "caller", caller.Hex(), "timelock_id", id)
	return nil
}

// CancelTimeLock 提议者或SUPER_ADMIN取消
func (s *service) CancelTimeLock(ctx context.Context, caller common.Address, id uint64) error {
	err := s.mutate(ctx, "CancelTimeLock", caller, func(tx *txn) error {
		t, err := tx.openTimeLock(id)
		if err != nil {
			return err
		}
		if caller != t.Action.Proposer {
			if err := tx.requireSuperAdmin(caller, ErrNotProposer); err != nil {
				return err
			}
		}
		t.Cancelled = true
		tx.putTimeLock(t)
		tx.emit(types.Event{
			Type:       types.EventTimeLockCancelled,
			Actor:      caller,
			Subject:    t.Action.Target,
			ActionID:   id,
			ActionType: actionTypePtr(t.Action.ActionType),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("CancelTimeLock: ", "caller", caller.Hex(), "timelock_id", id)
	return nil
}

// GetTimeLock 查询时间锁
func (s *service) GetTimeLock(id uint64) (types.TimeLock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.timelocks[id]
	return t, ok
}

// GetTimeLocksCount 已分配的时间锁数量
func (s *service) GetTimeLocksCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.meta.NextTimeLockID - 1
}

// ListTimeLocks 按编号升序列出时间锁
func (s *service) ListTimeLocks(openOnly bool) []types.TimeLock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TimeLock, 0)
	for _, t := range s.state.timelocks {
		if openOnly && (t.Executed || t.Cancelled) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
