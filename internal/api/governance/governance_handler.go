package governance

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"governance-backend/internal/api/response"
	"governance-backend/internal/middleware"
	"governance-backend/internal/service/auth"
	"governance-backend/internal/service/governance"
	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// RejectionObserver 记录被拒绝的治理操作
type RejectionObserver interface {
	ObserveRejection(code string)
}

// Handler 治理API处理器
type Handler struct {
	govService  governance.Service
	authService auth.Service
	observer    RejectionObserver
}

// NewHandler 创建治理处理器，observer可为nil
func NewHandler(govService governance.Service, authService auth.Service, observer RejectionObserver) *Handler {
	return &Handler{
		govService:  govService,
		authService: authService,
		observer:    observer,
	}
}

// RegisterRoutes 注册治理相关路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	g := router.Group("/governance")
	{
		// 只读查询，无需认证
		// http://localhost:8080/api/v1/governance/admins
		g.GET("/admins", h.GetAllAdmins)
		g.GET("/admins/:address", h.GetAdminInfo)
		g.GET("/admins/:address/role", h.GetAdminRole)
		g.GET("/admins/:address/has-role/:role", h.HasRole)
		g.GET("/admins/:address/permissions/:selector", h.HasPermission)
		g.GET("/permissions", h.GetPermissions)
		g.GET("/stats", h.GetStats)
		g.GET("/emergency", h.GetEmergencyState)
		g.GET("/actions", h.ListActions)
		g.GET("/actions/:id", h.GetAction)
		g.GET("/actions/:id/can-execute", h.CanExecuteAction)
		g.GET("/timelocks", h.ListTimeLocks)
		g.GET("/timelocks/:id", h.GetTimeLock)
		g.GET("/staking", h.GetStakingStats)
		g.GET("/staking/:address", h.GetStake)
		g.GET("/events", h.ListEvents)
		g.GET("/events/verify", h.VerifyEventLog)
	}

	// 写操作，调用者为令牌中的钱包地址
	w := router.Group("/governance", middleware.AuthMiddleware(h.authService))
	{
		w.POST("/admins", h.AddAdmin)
		w.DELETE("/admins/:address", h.RemoveAdmin)
		w.PUT("/admins/:address/role", h.ChangeAdminRole)
		w.PUT("/permissions", h.SetPermission)

		w.POST("/emergency/trigger", h.TriggerEmergency)
		w.POST("/emergency/resolve", h.ResolveEmergency)
		w.POST("/emergency/admins", h.EmergencyAddAdmin)

		w.POST("/staking/stake", h.StakeForAdmin)
		w.POST("/staking/withdraw", h.WithdrawStake)
		w.POST("/staking/claim", h.ClaimRewards)

		w.POST("/actions/add-admin", h.ProposeAddAdmin)
		w.POST("/actions/remove-admin", h.ProposeRemoveAdmin)
		w.POST("/actions/role-change", h.ProposeRoleChange)
		w.POST("/actions/slash", h.ProposeSlashAdmin)
		w.POST("/actions/emergency", h.ProposeEmergencyAction)
		w.POST("/actions/:id/confirm", h.ConfirmAction)
		w.POST("/actions/:id/execute", h.ExecuteAction)
		w.POST("/actions/:id/execute-slash", h.ExecuteSlash)
		w.POST("/actions/:id/cancel", h.CancelAction)

		w.POST("/timelocks/add-admin", h.ScheduleTimeLockAddAdmin)
		w.POST("/timelocks/:id/execute", h.ExecuteTimeLock)
		w.POST("/timelocks/:id/cancel", h.CancelTimeLock)
	}
}

// reject 返回治理错误并计数
func (h *Handler) reject(c *gin.Context, op string, err error) {
	code := governance.CodeOf(err)
	if h.observer != nil {
		h.observer.ObserveRejection(code)
	}
	logger.Debug(op+": rejected", "code", code, "request_id", middleware.GetRequestID(c))
	response.Fail(c, statusOf(err), code, err.Error(), "")
}

func (h *Handler) caller(c *gin.Context) (common.Address, bool) {
	addr, ok := middleware.GetCaller(c)
	if !ok {
		response.Unauthorized(c)
	}
	return addr, ok
}

func parseAddress(c *gin.Context, raw string) (common.Address, bool) {
	if !crypto.ValidateEthereumAddress(raw) {
		response.Fail(c, http.StatusBadRequest, "INVALID_ADDRESS", "Invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseRole(c *gin.Context, raw string) (types.AdminRole, bool) {
	role, err := types.ParseAdminRole(raw)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_ROLE", "Invalid role", err.Error())
		return types.RoleNone, false
	}
	return role, true
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid id", err.Error())
		return 0, false
	}
	return id, true
}

// parseAmount 十进制整数字符串
func parseAmount(c *gin.Context, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		response.Fail(c, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a non-negative decimal integer", raw)
		return nil, false
	}
	return amount, true
}

func (h *Handler) actionView(a types.PendingAction) types.ActionView {
	status, _ := h.govService.ActionStatus(a.ID)
	return types.ActionView{
		PendingAction: a,
		TypeName:      a.ActionType.String(),
		Status:        status,
	}
}

func (h *Handler) stakeView(addr common.Address) types.StakeView {
	rec := h.govService.GetStake(addr)
	return types.StakeView{
		Address:        addr.Hex(),
		StakedAmount:   rec.StakedAmount.String(),
		SlashCount:     rec.SlashCount,
		RewardsClaimed: rec.RewardsClaimed.String(),
		PendingRewards: h.govService.PendingRewards(addr).String(),
	}
}

// ===== 查询 =====

// GetAllAdmins 获取在任管理员
// @Summary 获取在任管理员
// @Tags Governance
// @Produce json
// @Success 200 {object} types.APIResponse{data=[]types.AdminInfo}
// @Router /api/v1/governance/admins [get]
func (h *Handler) GetAllAdmins(c *gin.Context) {
	admins := h.govService.GetAllAdmins()
	infos := make([]types.AdminInfo, 0, len(admins))
	for _, a := range admins {
		infos = append(infos, h.govService.GetAdminInfo(a.Address))
	}
	response.OK(c, infos)
}

// GetAdminInfo 获取管理员信息
// @Summary 获取管理员信息（角色与质押）
// @Tags Governance
// @Produce json
// @Param address path string true "管理员地址"
// @Success 200 {object} types.APIResponse{data=types.AdminInfo}
// @Failure 400 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/admins/{address} [get]
func (h *Handler) GetAdminInfo(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	response.OK(c, h.govService.GetAdminInfo(addr))
}

// GetAdminRole 获取管理员角色
// @Summary 获取管理员角色，非在任返回NONE
// @Tags Governance
// @Produce json
// @Param address path string true "地址"
// @Success 200 {object} types.APIResponse
// @Router /api/v1/governance/admins/{address}/role [get]
func (h *Handler) GetAdminRole(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	role := h.govService.GetAdminRole(addr)
	response.OK(c, gin.H{
		"address":  addr.Hex(),
		"role":     role,
		"roleName": role.String(),
		"isAdmin":  h.govService.IsAdmin(addr),
	})
}

// HasRole 判断是否拥有角色
// @Summary 判断地址是否拥有不低于指定角色的权限
// @Tags Governance
// @Produce json
// @Param address path string true "地址"
// @Param role path string true "角色名或数值"
// @Success 200 {object} types.APIResponse{data=types.HasRoleResponse}
// @Router /api/v1/governance/admins/{address}/has-role/{role} [get]
func (h *Handler) HasRole(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	role, ok := parseRole(c, c.Param("role"))
	if !ok {
		return
	}
	response.OK(c, types.HasRoleResponse{
		Address:  addr.Hex(),
		Required: role,
		HasRole:  h.govService.HasRole(addr, role),
	})
}

// HasPermission 判断是否可调用函数选择器
// @Summary 判断地址是否可调用函数选择器
// @Tags Governance
// @Produce json
// @Param address path string true "地址"
// @Param selector path string true "0x开头的4字节选择器或函数签名"
// @Success 200 {object} types.APIResponse{data=types.HasPermissionResponse}
// @Router /api/v1/governance/admins/{address}/permissions/{selector} [get]
func (h *Handler) HasPermission(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	sel, err := crypto.ParseSelector(c.Param("selector"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "INVALID_SELECTOR", "Invalid function selector", err.Error())
		return
	}
	response.OK(c, types.HasPermissionResponse{
		Address:       addr.Hex(),
		Selector:      crypto.SelectorHex(sel),
		HasPermission: h.govService.HasPermission(addr, sel),
	})
}

// GetPermissions 获取权限表
// @Summary 获取函数选择器权限表
// @Tags Governance
// @Produce json
// @Success 200 {object} types.APIResponse{data=[]types.PermissionView}
// @Router /api/v1/governance/permissions [get]
func (h *Handler) GetPermissions(c *gin.Context) {
	perms := h.govService.GetPermissions()
	views := make([]types.PermissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, types.PermissionView{
			Selector:  crypto.SelectorHex(p.Selector),
			Signature: p.Signature,
			MinRole:   p.MinRole,
			RoleName:  p.MinRole.String(),
		})
	}
	response.OK(c, views)
}

// GetStats 注册表统计
// @Summary 注册表统计
// @Tags Governance
// @Produce json
// @Success 200 {object} types.APIResponse{data=types.RegistryStats}
// @Router /api/v1/governance/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	response.OK(c, h.govService.RegistryStats())
}

// GetEmergencyState 紧急模式状态
// @Summary 紧急模式状态
// @Tags Governance
// @Produce json
// @Success 200 {object} types.APIResponse{data=types.EmergencyState}
// @Router /api/v1/governance/emergency [get]
func (h *Handler) GetEmergencyState(c *gin.Context) {
	response.OK(c, h.govService.GetEmergencyState())
}

// ListActions 提案列表
// @Summary 提案列表
// @Tags Governance
// @Produce json
// @Param open_only query bool false "仅未执行且未取消"
// @Param type query string false "提案类型"
// @Param proposer query string false "提议者地址"
// @Success 200 {object} types.APIResponse{data=[]types.ActionView}
// @Router /api/v1/governance/actions [get]
func (h *Handler) ListActions(c *gin.Context) {
	var filter types.ActionFilter
	filter.OpenOnly = c.Query("open_only") == "true"
	if raw := c.Query("type"); raw != "" {
		t, err := types.ParseActionType(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, "INVALID_ACTION_TYPE", "Invalid action type", err.Error())
			return
		}
		filter.Type = &t
	}
	if raw := c.Query("proposer"); raw != "" {
		addr, ok := parseAddress(c, raw)
		if !ok {
			return
		}
		filter.Proposer = &addr
	}

	actions := h.govService.ListPendingActions(filter)
	views := make([]types.ActionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, h.actionView(a))
	}
	response.OK(c, views)
}

// GetAction 提案详情
// @Summary 提案详情
// @Tags Governance
// @Produce json
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.ActionView}
// @Failure 404 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/actions/{id} [get]
func (h *Handler) GetAction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	action, found := h.govService.GetPendingAction(id)
	if !found {
		h.reject(c, "GetAction", governance.ErrInvalidActionID)
		return
	}
	response.OK(c, h.actionView(action))
}

// CanExecuteAction 提案是否可执行
// @Summary 提案是否可执行
// @Tags Governance
// @Produce json
// @Param id path int true "提案ID"
// @Success 200 {object} types.APIResponse{data=types.CanExecuteResponse}
// @Router /api/v1/governance/actions/{id}/can-execute [get]
func (h *Handler) CanExecuteAction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	status, found := h.govService.ActionStatus(id)
	if !found {
		h.reject(c, "CanExecuteAction", governance.ErrInvalidActionID)
		return
	}
	response.OK(c, types.CanExecuteResponse{
		ID:         id,
		CanExecute: h.govService.CanExecuteAction(id),
		Status:     status,
	})
}

// ListTimeLocks 时间锁列表
// @Summary 时间锁列表
// @Tags Governance
// @Produce json
// @Param open_only query bool false "仅未执行且未取消"
// @Success 200 {object} types.APIResponse{data=[]types.TimeLock}
// @Router /api/v1/governance/timelocks [get]
func (h *Handler) ListTimeLocks(c *gin.Context) {
	response.OK(c, h.govService.ListTimeLocks(c.Query("open_only") == "true"))
}

// GetTimeLock 时间锁详情
// @Summary 时间锁详情
// @Tags Governance
// @Produce json
// @Param id path int true "时间锁ID"
// @Success 200 {object} types.APIResponse{data=types.TimeLock}
// @Failure 404 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/governance/timelocks/{id} [get]
func (h *Handler) GetTimeLock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lock, found := h.govService.GetTimeLock(id)
	if !found {
		h.reject(c, "GetTimeLock", governance.ErrInvalidTimeLockID)
		return
	}
	response.OK(c, lock)
}

// GetStakingStats 质押统计
// @Summary 质押统计
// @Tags Staking
// @Produce json
// @Success 200 {object} types.APIResponse{data=types.StakingStats}
// @Router /api/v1/governance/staking [get]
func (h *Handler) GetStakingStats(c *gin.Context) {
	response.OK(c, h.govService.StakingStats())
}

// GetStake 质押记录
// @Summary 地址的质押记录及待领取奖励
// @Tags Staking
// @Produce json
// @Param address path string true "地址"
// @Success 200 {object} types.APIResponse{data=types.StakeView}
// @Router /api/v1/governance/staking/{address} [get]
func (h *Handler) GetStake(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	response.OK(c, h.stakeView(addr))
}

// ListEvents 审计事件
// @Summary 审计事件查询
// @Tags Events
// @Produce json
// @Param type query string false "事件类型，逗号分隔"
// @Param address query string false "匹配actor或subject"
// @Param action_id query int false "提案或时间锁ID"
// @Param from_seq query int false "起始序号"
// @Param limit query int false "条数，默认100"
// @Param order query string false "asc或desc，默认desc"
// @Success 200 {object} types.APIResponse{data=types.EventListResponse}
// @Router /api/v1/governance/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	filter, err := eventFilterFromQuery(c)
	if err != nil {
		response.InvalidRequest(c, err)
		return
	}
	events, total := h.govService.ListEvents(filter)
	response.OK(c, types.EventListResponse{Events: events, Total: total})
}

func eventFilterFromQuery(c *gin.Context) (types.EventFilter, error) {
	filter := types.EventFilter{Limit: 100}
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, types.EventType(t))
			}
		}
	}
	if raw := c.Query("address"); raw != "" {
		if !crypto.ValidateEthereumAddress(raw) {
			return filter, fmt.Errorf("invalid address: %s", raw)
		}
		addr := common.HexToAddress(raw)
		filter.Address = &addr
	}
	var err error
	if raw := c.Query("action_id"); raw != "" {
		if filter.ActionID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return filter, fmt.Errorf("invalid action_id: %w", err)
		}
	}
	if raw := c.Query("from_seq"); raw != "" {
		if filter.FromSeq, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return filter, fmt.Errorf("invalid from_seq: %w", err)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 1000 {
			return filter, fmt.Errorf("limit must be between 1 and 1000")
		}
		filter.Limit = limit
	}
	filter.Ascending = c.Query("order") == "asc"
	return filter, nil
}

// VerifyEventLog 校验事件哈希链
// @Summary 重新计算并校验审计事件哈希链
// @Tags Events
// @Produce json
// @Success 200 {object} types.APIResponse{data=types.EventLogVerification}
// @Router /api/v1/governance/events/verify [get]
func (h *Handler) VerifyEventLog(c *gin.Context) {
	result := h.govService.VerifyEventLog()
	if !result.Valid {
		logger.Warn("VerifyEventLog: chain broken", "message", result.Message)
	}
	response.OK(c, result)
}
