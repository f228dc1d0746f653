package governance

import (
	"context"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// enterEmergency NORMAL -> EMERGENCY
func (tx *txn) enterEmergency(actor common.Address, actionID uint64) error {
	if tx.meta.Emergency.EmergencyMode {
		return ErrAlreadyInEmergency
	}
	tx.meta.Emergency = types.EmergencyState{
		EmergencyMode: true,
		TriggeredBy:   actor,
		StartTime:     tx.now,
	}
	tx.emit(types.Event{
		Type:     types.EventEmergencyModeToggled,
		Actor:    actor,
		ActionID: actionID,
		Enabled:  boolPtr(true),
	})
	return nil
}

// requireExactRole 角色必须等于role
func (tx *txn) requireExactRole(caller common.Address, role types.AdminRole, denied error) error {
	a, ok := tx.serving(caller)
	if !ok || a.Role != role {
		return denied
	}
	return nil
}

// TriggerEmergency 仅RECOVERY_ADMIN可触发
func (s *service) TriggerEmergency(ctx context.Context, caller common.Address) error {
	err := s.mutate(ctx, "TriggerEmergency", caller, func(tx *txn) error {
		if err := tx.requireExactRole(caller, types.RoleRecoveryAdmin, ErrOnlyRecoveryAdmin); err != nil {
			return err
		}
		return tx.enterEmergency(caller, 0)
	})
	if err != nil {
		return err
	}
	logger.Warn("TriggerEmergency: emergency mode enabled", "caller", caller.Hex())
	return nil
}

// ResolveEmergency 仅SUPER_ADMIN可解除
func (s *service) ResolveEmergency(ctx context.Context, caller common.Address) error {
	err := s.mutate(ctx, "ResolveEmergency", caller, func(tx *txn) error {
		if err := tx.requireExactRole(caller, types.RoleSuperAdmin, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if !tx.meta.Emergency.EmergencyMode {
			return ErrNotInEmergency
		}
		tx.meta.Emergency = types.EmergencyState{}
		tx.emit(types.Event{
			Type:    types.EventEmergencyModeToggled,
			Actor:   caller,
			Enabled: boolPtr(false),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("ResolveEmergency: emergency mode disabled", "caller", caller.Hex())
	return nil
}

// EmergencyAddAdmin 紧急模式下唯一允许的注册表写操作
func (s *service) EmergencyAddAdmin(ctx context.Context, caller, newAdmin common.Address, role types.AdminRole) error {
	err := s.mutate(ctx, "EmergencyAddAdmin", caller, func(tx *txn) error {
		if !tx.meta.Emergency.EmergencyMode {
			return ErrEmergencyRequired
		}
		if err := tx.requireExactRole(caller, types.RoleRecoveryAdmin, ErrOnlyRecoveryAdmin); err != nil {
			return err
		}
		return tx.applyAddAdmin(caller, newAdmin, role, 0)
	})
	if err != nil {
		return err
	}
	logger.Warn("EmergencyAddAdmin: ", "caller", caller.Hex(), "admin", newAdmin.Hex(), "role", role.String())
	return nil
}

// GetEmergencyState 紧急模式状态
func (s *service) GetEmergencyState() types.EmergencyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.meta.Emergency
}
