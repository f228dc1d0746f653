package governance

import (
	"context"
	"net/http"
	"strings"

	"governance-backend/internal/api/response"
	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// ===== 注册表 =====

// AddAdmin 添加管理员
// @Summary 添加管理员（SUPER_ADMIN）
// @Tags Governance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.AddAdminRequest true "添加请求"
// @Success 200 {object} types.APIResponse
// @Failure 400 {object} types.APIResponse{error=types.APIError}
// @Failure 403 {object} types.APIResponse{error=types.APIError}
// @Failure 409 {object} types.APIResponse{error=types.APIError}
// @Failure 423 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/admins [post]
func (h *Handler) AddAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Address)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	if err := h.govService.AddAdmin(c.Request.Context(), caller, target, role); err != nil {
		h.reject(c, "AddAdmin", err)
		return
	}
	response.OK(c, h.govService.GetAdminInfo(target))
}

// RemoveAdmin 移除管理员
// @Summary 移除管理员（SUPER_ADMIN）
// @Tags Governance
// @Produce json
// @Security BearerAuth
// @Param address path string true "管理员地址"
// @Success 200 {object} types.APIResponse
// @Failure 403 {object} types.APIResponse{error=types.APIError}
// @Failure 409 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/admins/{address} [delete]
func (h *Handler) RemoveAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	target, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	if err := h.govService.RemoveAdmin(c.Request.Context(), caller, target); err != nil {
		h.reject(c, "RemoveAdmin", err)
		return
	}
	response.OK(c, gin.H{"message": "Admin removed successfully"})
}

// ChangeAdminRole 修改角色
// @Summary 修改管理员角色（SUPER_ADMIN）
// @Tags Governance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param address path string true "管理员地址"
// @Param request body types.ChangeRoleRequest true "新角色"
// @Success 200 {object} types.APIResponse{data=types.AdminInfo}
// @Router /api/v1/governance/admins/{address}/role [put]
func (h *Handler) ChangeAdminRole(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	target, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	var req types.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	if err := h.govService.ChangeAdminRole(c.Request.Context(), caller, target, role); err != nil {
		h.reject(c, "ChangeAdminRole", err)
		return
	}
	response.OK(c, h.govService.GetAdminInfo(target))
}

// SetPermission 设置函数权限
// @Summary 设置函数选择器所需最低角色，NONE表示删除（SUPER_ADMIN）
// @Tags Governance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.SetPermissionRequest true "权限设置"
// @Success 200 {object} types.APIResponse{data=types.PermissionView}
// @Router /api/v1/governance/permissions [put]
func (h *Handler) SetPermission(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.SetPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	sel, err := crypto.ParseSelector(req.Selector)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_SELECTOR", "Invalid function selector", err.Error())
		return
	}
	role, ok := parseRole(c, req.MinRole)
	if !ok {
		return
	}
	signature := ""
	if !strings.HasPrefix(strings.TrimSpace(req.Selector), "0x") {
		signature = strings.TrimSpace(req.Selector)
	}
	if err := h.govService.SetPermission(c.Request.Context(), caller, sel, signature, role); err != nil {
		h.reject(c, "SetPermission", err)
		return
	}
	response.OK(c, types.PermissionView{
		Selector:  crypto.SelectorHex(sel),
		Signature: signature,
		MinRole:   role,
		RoleName:  role.String(),
	})
}

// ===== 紧急模式 =====

// TriggerEmergency 进入紧急模式
// @Summary 进入紧急模式（仅RECOVERY_ADMIN）
// @Tags Emergency
// @Produce json
// @Security BearerAuth
// @Success 200 {object} types.APIResponse{data=types.EmergencyState}
// @Router /api/v1/governance/emergency/trigger [post]
func (h *Handler) TriggerEmergency(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.govService.TriggerEmergency(c.Request.Context(), caller); err != nil {
		h.reject(c, "TriggerEmergency", err)
		return
	}
	response.OK(c, h.govService.GetEmergencyState())
}

// ResolveEmergency 退出紧急模式
// @Summary 退出紧急模式（SUPER_ADMIN）
// @Tags Emergency
// @Produce json
// @Security BearerAuth
// @Success 200 {object} types.APIResponse{data=types.EmergencyState}
// @Router /api/v1/governance/emergency/resolve [post]
func (h *Handler) ResolveEmergency(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.govService.ResolveEmergency(c.Request.Context(), caller); err != nil {
		h.reject(c, "ResolveEmergency", err)
		return
	}
	response.OK(c, h.govService.GetEmergencyState())
}

// EmergencyAddAdmin 紧急模式下添加管理员
// @Summary 紧急模式下添加管理员（仅RECOVERY_ADMIN）
// @Tags Emergency
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.AddAdminRequest true "添加请求"
// @Success 200 {object} types.APIResponse{data=types.AdminInfo}
// @Router /api/v1/governance/emergency/admins [post]
func (h *Handler) EmergencyAddAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Address)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	if err := h.govService.EmergencyAddAdmin(c.Request.Context(), caller, target, role); err != nil {
		h.reject(c, "EmergencyAddAdmin", err)
		return
	}
	response.OK(c, h.govService.GetAdminInfo(target))
}

// ===== 质押 =====

// StakeForAdmin 质押
// @Summary 在任管理员质押代币
// @Tags Staking
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.AmountRequest true "金额"
// @Success 200 {object} types.APIResponse{data=types.StakeView}
// @Failure 422 {object} types.APIResponse{error=types.APIError}
// @Failure 502 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/staking/stake [post]
func (h *Handler) StakeForAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	if err := h.govService.StakeForAdmin(c.Request.Context(), caller, amount); err != nil {
		h.reject(c, "StakeForAdmin", err)
		return
	}
	response.OK(c, h.stakeView(caller))
}

// WithdrawStake 提取质押
// @Summary 非在任管理员提取质押
// @Tags Staking
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.AmountRequest true "金额"
// @Success 200 {object} types.APIResponse{data=types.StakeView}
// @Router /api/v1/governance/staking/withdraw [post]
func (h *Handler) WithdrawStake(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	if err := h.govService.WithdrawStake(c.Request.Context(), caller, amount); err != nil {
		h.reject(c, "WithdrawStake", err)
		return
	}
	response.OK(c, h.stakeView(caller))
}

// ClaimRewards 领取奖励
// @Summary 领取质押奖励
// @Tags Staking
// @Produce json
// @Security BearerAuth
// @Success 200 {object} types.APIResponse{data=types.RewardsResponse}
// @Router /api/v1/governance/staking/claim [post]
func (h *Handler) ClaimRewards(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	amount, err := h.govService.ClaimRewards(c.Request.Context(), caller)
	if err != nil {
		h.reject(c, "ClaimRewards", err)
		return
	}
	response.OK(c, types.RewardsResponse{Address: caller.Hex(), Amount: amount.String()})
}

// ===== 多签提案 =====

// ProposeAddAdmin 提议添加管理员
// @Summary 提议添加管理员（VOTE_ADMIN及以上）
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ProposeAddAdminRequest true "提案"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Router /api/v1/governance/actions/add-admin [post]
func (h *Handler) ProposeAddAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ProposeAddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Target)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	id, err := h.govService.ProposeAddAdmin(c.Request.Context(), caller, target, role, req.Reason)
	if err != nil {
		h.reject(c, "ProposeAddAdmin", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ProposeRemoveAdmin 提议移除管理员
// @Summary 提议移除管理员（VOTE_ADMIN及以上）
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ProposeRemoveAdminRequest true "提案"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Router /api/v1/governance/actions/remove-admin [post]
func (h *Handler) ProposeRemoveAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ProposeRemoveAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Target)
	if !ok {
		return
	}
	id, err := h.govService.ProposeRemoveAdmin(c.Request.Context(), caller, target, req.Reason)
	if err != nil {
		h.reject(c, "ProposeRemoveAdmin", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ProposeRoleChange 提议修改角色
// @Summary 提议修改管理员角色（VOTE_ADMIN及以上）
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ProposeRoleChangeRequest true "提案"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Router /api/v1/governance/actions/role-change [post]
func (h *Handler) ProposeRoleChange(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ProposeRoleChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Target)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	id, err := h.govService.ProposeRoleChange(c.Request.Context(), caller, target, role, req.Reason)
	if err != nil {
		h.reject(c, "ProposeRoleChange", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ProposeSlashAdmin 提议罚没
// @Summary 提议罚没管理员质押（SUPER_ADMIN）
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ProposeSlashRequest true "提案"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Router /api/v1/governance/actions/slash [post]
func (h *Handler) ProposeSlashAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ProposeSlashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Target)
	if !ok {
		return
	}
	id, err := h.govService.ProposeSlashAdmin(c.Request.Context(), caller, target, req.Reason)
	if err != nil {
		h.reject(c, "ProposeSlashAdmin", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ProposeEmergencyAction 提议进入紧急模式
// @Summary 多签提议进入紧急模式（RECOVERY_ADMIN及以上）
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ProposeEmergencyRequest true "提案"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Router /api/v1/governance/actions/emergency [post]
func (h *Handler) ProposeEmergencyAction(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ProposeEmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	id, err := h.govService.ProposeEmergencyAction(c.Request.Context(), caller, req.Reason)
	if err != nil {
		h.reject(c, "ProposeEmergencyAction", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ConfirmAction 确认提案
// @Summary 确认提案
// @Tags Actions
// @Produce json
// @Security BearerAuth
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.ActionView}
// @Failure 409 {object} types.APIResponse{error=types.APIError}
// @Failure 410 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/actions/{id}/confirm [post]
func (h *Handler) ConfirmAction(c *gin.Context) {
	h.actOnAction(c, "ConfirmAction", h.govService.ConfirmAction)
}

// ExecuteAction 执行提案
// @Summary 执行已达确认数的提案
// @Tags Actions
// @Produce json
// @Security BearerAuth
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.ActionView}
// @Failure 422 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/actions/{id}/execute [post]
func (h *Handler) ExecuteAction(c *gin.Context) {
	h.actOnAction(c, "ExecuteAction", h.govService.ExecuteAction)
}

// ExecuteSlash 执行罚没提案
// @Summary 执行罚没提案
// @Tags Actions
// @Produce json
// @Security BearerAuth
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.ActionView}
// @Router /api/v1/governance/actions/{id}/execute-slash [post]
func (h *Handler) ExecuteSlash(c *gin.Context) {
	h.actOnAction(c, "ExecuteSlash", h.govService.ExecuteSlash)
}

// CancelAction 取消提案
// @Summary 取消提案（提议者或SUPER_ADMIN）
// @Tags Actions
// @Produce json
// @Security BearerAuth
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.ActionView}
// @Router /api/v1/governance/actions/{id}/cancel [post]
func (h *Handler) CancelAction(c *gin.Context) {
	h.actOnAction(c, "CancelAction", h.govService.CancelAction)
}

func (h *Handler) actOnAction(c *gin.Context, op string, fn func(ctx context.Context, caller common.Address, id uint64) error) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), caller, id); err != nil {
		h.reject(c, op, err)
		return
	}
	action, _ := h.govService.GetPendingAction(id)
	response.OK(c, h.actionView(action))
}

// ===== 时间锁 =====

// ScheduleTimeLockAddAdmin 调度时间锁添加管理员
// @Summary 调度延时添加管理员（SUPER_ADMIN）
// @Tags TimeLocks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.ScheduleTimeLockRequest true "时间锁"
// @Success 200 {object} types.APIResponse{data=types.ProposalCreatedResponse}
// @Failure 425 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/timelocks/add-admin [post]
func (h *Handler) ScheduleTimeLockAddAdmin(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req types.ScheduleTimeLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	target, ok := parseAddress(c, req.Target)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}
	id, err := h.govService.ScheduleTimeLockAddAdmin(c.Request.Context(), caller, target, role, req.DelaySeconds)
	if err != nil {
		h.reject(c, "ScheduleTimeLockAddAdmin", err)
		return
	}
	response.OK(c, types.ProposalCreatedResponse{ID: id})
}

// ExecuteTimeLock 执行时间锁
// @Summary 执行已解锁的时间锁（SUPER_ADMIN）
// @Tags TimeLocks
// @Produce json
// @Security BearerAuth
// @Param id path int true "时间锁ID"
// @Success 200 {object} types.APIResponse{data=types.TimeLock}
// @Failure 425 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/timelocks/{id}/execute [post]
func (h *Handler) ExecuteTimeLock(c *gin.Context) {
	h.actOnTimeLock(c, "ExecuteTimeLock", h.govService.ExecuteTimeLock)
}

// CancelTimeLock 取消时间锁
// @Summary 取消时间锁（SUPER_ADMIN）
// @Tags TimeLocks
// @Produce json
// @Security BearerAuth
// @Param id path int true "时间锁ID"
// @Success 200 {object} types.APIResponse{data=types.TimeLock}
// @Router /api/v1/governance/timelocks/{id}/cancel [post]
func (h *Handler) CancelTimeLock(c *gin.Context) {
	h.actOnTimeLock(c, "CancelTimeLock", h.govService.CancelTimeLock)
}

func (h *Handler) actOnTimeLock(c *gin.Context, op string, fn func(ctx context.Context, caller common.Address, id uint64) error) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), caller, id); err != nil {
		h.reject(c, op, err)
		return
	}
	lock, _ := h.govService.GetTimeLock(id)
	response.OK(c, lock)
}
