package types

// AddAdminRequest 添加管理员请求
type AddAdminRequest struct {
	Address string `json:"address" binding:"required"`
	Role    string `json:"role" binding:"required"` // 角色名或数值
}

// ChangeRoleRequest 修改角色请求
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetPermissionRequest 设置权限请求
type SetPermissionRequest struct {
	Selector string `json:"selector" binding:"required"` // 0x12345678 或函数签名
	MinRole  string `json:"min_role" binding:"required"`
}

// AmountRequest 金额请求（十进制字符串）
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// ProposeAddAdminRequest 提议添加管理员
type ProposeAddAdminRequest struct {
	Target string `json:"target" binding:"required"`
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

// ProposeRemoveAdminRequest 提议移除管理员
type ProposeRemoveAdminRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

// ProposeRoleChangeRequest 提议修改角色
type ProposeRoleChangeRequest struct {
	Target string `json:"target" binding:"required"`
	Role   string `json:"role" binding:"required"`
	Reason string `json:"reason"`
}

// ProposeSlashRequest 提议罚没
type ProposeSlashRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// ProposeEmergencyRequest 提议进入紧急模式
type ProposeEmergencyRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ScheduleTimeLockRequest 调度时间锁添加管理员
type ScheduleTimeLockRequest struct {
	Target       string `json:"target" binding:"required"`
	Role         string `json:"role" binding:"required"`
	DelaySeconds uint64 `json:"delay_seconds" binding:"required"`
}

// ProposalCreatedResponse 创建提案/时间锁响应
type ProposalCreatedResponse struct {
	ID uint64 `json:"id"`
}

// CanExecuteResponse 可执行判断响应
type CanExecuteResponse struct {
	ID         uint64       `json:"id"`
	CanExecute bool         `json:"canExecute"`
	Status     ActionStatus `json:"status"`
}

// HasRoleResponse 角色判断响应
type HasRoleResponse struct {
	Address  string    `json:"address"`
	Required AdminRole `json:"required"`
	HasRole  bool      `json:"hasRole"`
}

// HasPermissionResponse 权限判断响应
type HasPermissionResponse struct {
	Address       string `json:"address"`
	Selector      string `json:"selector"`
	HasPermission bool   `json:"hasPermission"`
}

// PermissionView 权限表条目
type PermissionView struct {
	Selector  string    `json:"selector"`
	Signature string    `json:"signature,omitempty"`
	MinRole   AdminRole `json:"minRole"`
	RoleName  string    `json:"roleName"`
}

// RewardsResponse 奖励响应
type RewardsResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// StakeView 质押记录视图
type StakeView struct {
	Address        string `json:"address"`
	StakedAmount   string `json:"stakedAmount"`
	SlashCount     uint64 `json:"slashCount"`
	RewardsClaimed string `json:"rewardsClaimed"`
	PendingRewards string `json:"pendingRewards"`
}

// ActionView 提案视图，附带推导状态
type ActionView struct {
	PendingAction
	TypeName string       `json:"typeName"`
	Status   ActionStatus `json:"status"`
}

// EventListResponse 事件列表响应
type EventListResponse struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}
