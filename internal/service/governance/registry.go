package governance

import (
	"context"
	"fmt"
	"sort"

	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// requiredConfirmations max(2, ceil(0.6 * n))
func requiredConfirmations(totalAdmins uint64) uint64 {
	required := (3*totalAdmins + 4) / 5
	if required < 2 {
		return 2
	}
	return required
}

// defaultPermissions 默认函数权限表
func defaultPermissions() []types.Permission {
	table := []struct {
		role       types.AdminRole
		signatures []string
	}{
		{types.RoleTeamManager, []string{"addTeam(string,address,address)", "removeTeam(string)"}},
		{types.RoleVoteAdmin, []string{"setReadyToVote(uint256)", "disableVoting()", "setVotingLimits(uint256,uint256)", "setVotingToken(address)"}},
		{types.RoleRecoveryAdmin, []string{"triggerEmergency()", "emergencyAddAdmin(address,uint8)", "emergencyWithdraw(address)"}},
		{types.RoleSuperAdmin, []string{"reset()", "addAdmin(address,uint8)", "removeAdmin(address)", "changeAdminRole(address,uint8)", "resolveEmergency()"}},
	}

	var perms []types.Permission
	for _, entry := range table {
		for _, sig := range entry.signatures {
			perms = append(perms, types.Permission{
				Selector:  crypto.Selector(sig),
				Signature: sig,
				MinRole:   entry.role,
			})
		}
	}
	return perms
}

// activate 新增或重新激活管理员，加入顺序取新序号
func (tx *txn) activate(addr common.Address, role types.AdminRole) {
	tx.putAdmin(types.Admin{
		Address:       addr,
		Role:          role,
		JoinTimestamp: tx.now,
		IsActive:      true,
		Ordinal:       tx.meta.NextOrdinal,
	})
	tx.meta.NextOrdinal++
	tx.meta.TotalAdmins++
	tx.meta.RequiredConfirmations = requiredConfirmations(tx.meta.TotalAdmins)
}

// deactivate 停用管理员；clearRole为false时保留角色记录（罚没停用）
func (tx *txn) deactivate(addr common.Address, clearRole bool, floor uint64) error {
	a, ok := tx.serving(addr)
	if !ok {
		return ErrNotAdmin
	}
	if tx.meta.TotalAdmins-1 < floor {
		return fmt.Errorf("%w: minimum %d", ErrBelowAdminFloor, floor)
	}
	a.IsActive = false
	if clearRole {
		a.Role = types.RoleNone
	}
	tx.putAdmin(a)
	tx.meta.TotalAdmins--
	tx.meta.RequiredConfirmations = requiredConfirmations(tx.meta.TotalAdmins)
	return nil
}

// requireSuperAdmin 调用者必须为在任SUPER_ADMIN
func (tx *txn) requireSuperAdmin(caller common.Address, denied error) error {
	a, ok := tx.serving(caller)
	if !ok || a.Role != types.RoleSuperAdmin {
		return denied
	}
	return nil
}

// requireActiveAdmin 调用者必须为在任管理员
func (tx *txn) requireActiveAdmin(caller common.Address) error {
	if _, ok := tx.serving(caller); !ok {
		return ErrCallerNotAdmin
	}
	return nil
}

func (tx *txn) validateNewAdmin(target common.Address, role types.AdminRole) error {
	if target == (common.Address{}) {
		return ErrInvalidAddress
	}
	if _, ok := tx.serving(target); ok {
		return ErrAlreadyAdmin
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

func (tx *txn) validateRemoval(target common.Address, floor uint64) (types.Admin, error) {
	a, ok := tx.serving(target)
	if !ok {
		return a, ErrNotAdmin
	}
	if tx.meta.TotalAdmins-1 < floor {
		return a, fmt.Errorf("%w: minimum %d", ErrBelowAdminFloor, floor)
	}
	return a, nil
}

func (tx *txn) validateRoleChange(target common.Address, newRole types.AdminRole) (types.Admin, error) {
	a, ok := tx.serving(target)
	if !ok {
		return a, ErrNotAdmin
	}
	if !newRole.Valid() {
		return a, ErrInvalidRole
	}
	if a.Role == newRole {
		return a, ErrSameRole
	}
	return a, nil
}

// applyAddAdmin 添加管理员并记录事件
func (tx *txn) applyAddAdmin(actor, target common.Address, role types.AdminRole, actionID uint64) error {
	if err := tx.validateNewAdmin(target, role); err != nil {
		return err
	}
	tx.activate(target, role)
	tx.emit(types.Event{
		Type:     types.EventAdminAdded,
		Actor:    actor,
		Subject:  target,
		ActionID: actionID,
		NewRole:  rolePtr(role),
	})
	return nil
}

func (tx *txn) applyRemoveAdmin(actor, target common.Address, floor uint64, actionID uint64) error {
	a, err := tx.validateRemoval(target, floor)
	if err != nil {
		return err
	}
	if err := tx.deactivate(target, true, floor); err != nil {
		return err
	}
	tx.emit(types.Event{
		Type:     types.EventAdminRemoved,
		Actor:    actor,
		Subject:  target,
		ActionID: actionID,
		OldRole:  rolePtr(a.Role),
	})
	return nil
}

func (tx *txn) applyRoleChange(actor, target common.Address, newRole types.AdminRole, actionID uint64) error {
	a, err := tx.validateRoleChange(target, newRole)
	if err != nil {
		return err
	}
	old := a.Role
	a.Role = newRole
	tx.putAdmin(a)
	tx.emit(types.Event{
		Type:     types.EventAdminRoleChanged,
		Actor:    actor,
		Subject:  target,
		ActionID: actionID,
		OldRole:  rolePtr(old),
		NewRole:  rolePtr(newRole),
	})
	return nil
}

// AddAdmin 添加管理员
func (s *service) AddAdmin(ctx context.Context, caller, newAdmin common.Address, role types.AdminRole) error {
	err := s.mutate(ctx, "AddAdmin", caller, func(tx *txn) error {
		if err := tx.requireSuperAdmin(caller, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		return tx.applyAddAdmin(caller, newAdmin, role, 0)
	})
	if err != nil {
		return err
	}
	logger.Info("AddAdmin: ", "caller", caller.Hex(), "admin", newAdmin.Hex(), "role", role.String())
	return nil
}

// RemoveAdmin 移除管理员
func (s *service) RemoveAdmin(ctx context.Context, caller, admin common.Address) error {
	err := s.mutate(ctx, "RemoveAdmin", caller, func(tx *txn) error {
		if err := tx.requireSuperAdmin(caller, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		return tx.applyRemoveAdmin(caller, admin, s.params.AdminFloor, 0)
	})
	if err != nil {
		return err
	}
	logger.Info("RemoveAdmin: ", "caller", caller.Hex(), "admin", admin.Hex())
	return nil
}

// ChangeAdminRole 修改管理员角色
func (s *service) ChangeAdminRole(ctx context.Context, caller, admin common.Address, newRole types.AdminRole) error {
	err := s.mutate(ctx, "ChangeAdminRole", caller, func(tx *txn) error {
		if err := tx.requireSuperAdmin(caller, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		return tx.applyRoleChange(caller, admin, newRole, 0)
	})
	if err != nil {
		return err
	}
	logger.Info("ChangeAdminRole: ", "caller", caller.Hex(), "admin", admin.Hex(), "new_role", newRole.String())
	return nil
}

// SetPermission 设置函数选择器所需最低角色，RoleNone表示删除
func (s *service) SetPermission(ctx context.Context, caller common.Address, selector [4]byte, signature string, minRole types.AdminRole) error {
	err := s.mutate(ctx, "SetPermission", caller, func(tx *txn) error {
		if err := tx.requireSuperAdmin(caller, ErrOnlySuperAdmin); err != nil {
			return err
		}
		if err := tx.requireNotEmergency(); err != nil {
			return err
		}
		if minRole != types.RoleNone && !minRole.Valid() {
			return ErrInvalidRole
		}
		existing, ok := tx.permission(selector)
		if signature == "" && ok {
			signature = existing.Signature
		}
		if !ok && minRole == types.RoleNone {
			return nil
		}
		tx.putPermission(types.Permission{Selector: selector, Signature: signature, MinRole: minRole})
		var oldRole *types.AdminRole
		if ok {
			oldRole = rolePtr(existing.MinRole)
		}
		tx.emit(types.Event{
			Type:    types.EventPermissionUpdated,
			Actor:   caller,
			OldRole: oldRole,
			NewRole: rolePtr(minRole),
			Reason:  crypto.SelectorHex(selector),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("SetPermission: ", "caller", caller.Hex(), "selector", crypto.SelectorHex(selector), "min_role", minRole.String())
	return nil
}

// HasRole 在任且角色不低于required
func (s *service) HasRole(addr common.Address, required types.AdminRole) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.admins[addr]
	return ok && a.Serving() && a.Role >= required
}

// IsAdmin 是否为在任管理员
func (s *service) IsAdmin(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.admins[addr]
	return ok && a.Serving()
}

// GetAdminRole 未知地址返回RoleNone
func (s *service) GetAdminRole(addr common.Address) types.AdminRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.admins[addr].Role
}

// GetAdminInfo 管理员信息，未知地址返回零值
func (s *service) GetAdminInfo(addr common.Address) types.AdminInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.state.admins[addr]
	stake, ok := s.state.stakes[addr]
	if !ok {
		stake = types.NewStakeRecord(addr)
	}
	return types.AdminInfo{
		Address:        addr,
		Role:           a.Role,
		RoleName:       a.Role.String(),
		JoinTimestamp:  a.JoinTimestamp,
		IsActive:       a.IsActive,
		StakedAmount:   amountPtr(stake.StakedAmount),
		SlashCount:     stake.SlashCount,
		RewardsClaimed: amountPtr(stake.RewardsClaimed),
	}
}

// GetAllAdmins 在任管理员，按加入顺序
func (s *service) GetAllAdmins() []types.Admin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admins := make([]types.Admin, 0, s.state.meta.TotalAdmins)
	for _, a := range s.state.admins {
		if a.Serving() {
			admins = append(admins, a)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Ordinal < admins[j].Ordinal })
	return admins
}

// TotalAdmins 在任管理员数量
func (s *service) TotalAdmins() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.meta.TotalAdmins
}

// RequiredConfirmations 当前所需确认数
func (s *service) RequiredConfirmations() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.meta.RequiredConfirmations
}

// AdminFloor 管理员人数下限
func (s *service) AdminFloor() uint64 {
	return s.params.AdminFloor
}

// RegistryStats 注册表统计
func (s *service) RegistryStats() types.RegistryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.RegistryStats{
		Mode:                  s.params.Mode,
		TotalAdmins:           s.state.meta.TotalAdmins,
		RequiredConfirmations: s.state.meta.RequiredConfirmations,
		AdminFloor:            s.params.AdminFloor,
		PendingActionsCount:   s.state.meta.NextActionID - 1,
		TimeLocksCount:        s.state.meta.NextTimeLockID - 1,
	}
}

// HasPermission SUPER_ADMIN恒为true，其余需在任且角色不低于权限表要求
func (s *service) HasPermission(addr common.Address, selector [4]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.admins[addr]
	if !ok || !a.Serving() {
		return false
	}
	if a.Role == types.RoleSuperAdmin {
		return true
	}
	p, ok := s.state.permissions[selector]
	if !ok {
		return false
	}
	return a.Role >= p.MinRole
}

// GetPermissions 权限表，按角色和签名排序
func (s *service) GetPermissions() []types.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := make([]types.Permission, 0, len(s.state.permissions))
	for _, p := range s.state.permissions {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].MinRole != perms[j].MinRole {
			return perms[i].MinRole < perms[j].MinRole
		}
		if perms[i].Signature != perms[j].Signature {
			return perms[i].Signature < perms[j].Signature
		}
		return string(perms[i].Selector[:]) < string(perms[j].Selector[:])
	})
	return perms
}
