package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AdminRole 管理员角色，数值越大权限越高
type AdminRole uint8

const (
	RoleNone AdminRole = iota
	RoleTeamManager
	RoleVoteAdmin
	RoleRecoveryAdmin
	RoleSuperAdmin
)

var roleNames = map[AdminRole]string{
	RoleNone:          "NONE",
	RoleTeamManager:   "TEAM_MANAGER",
	RoleVoteAdmin:     "VOTE_ADMIN",
	RoleRecoveryAdmin: "RECOVERY_ADMIN",
	RoleSuperAdmin:    "SUPER_ADMIN",
}

func (r AdminRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", uint8(r))
}

// Valid 是否为可授予的角色（不含NONE）
func (r AdminRole) Valid() bool {
	return r >= RoleTeamManager && r <= RoleSuperAdmin
}

// ParseAdminRole 解析角色名或数值
func ParseAdminRole(s string) (AdminRole, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		r := AdminRole(n)
		if r > RoleSuperAdmin {
			return RoleNone, fmt.Errorf("unknown role: %s", s)
		}
		return r, nil
	}
	upper := strings.ToUpper(s)
	for r, name := range roleNames {
		if name == upper {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role: %s", s)
}

// ActionType 多签提案类型
type ActionType uint8

const (
	ActionAddAdmin ActionType = iota
	ActionRemoveAdmin
	ActionChangeRole
	ActionEmergency
	ActionStakeSlash
)

func (t ActionType) String() string {
	switch t {
	case ActionAddAdmin:
		return "ADD_ADMIN"
	case ActionRemoveAdmin:
		return "REMOVE_ADMIN"
	case ActionChangeRole:
		return "CHANGE_ROLE"
	case ActionEmergency:
		return "EMERGENCY_ACTION"
	case ActionStakeSlash:
		return "STAKE_SLASH"
	default:
		return fmt.Sprintf("ACTION(%d)", uint8(t))
	}
}

// ParseActionType 解析提案类型名或数值
func ParseActionType(s string) (ActionType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 8); err == nil && ActionType(n) <= ActionStakeSlash {
		return ActionType(n), nil
	}
	upper := strings.ToUpper(s)
	for t := ActionAddAdmin; t <= ActionStakeSlash; t++ {
		if t.String() == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown action type: %s", s)
}

// ActionStatus 提案状态，由存储字段和当前时间推导
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "PENDING"
	ActionStatusExecuted  ActionStatus = "EXECUTED"
	ActionStatusCancelled ActionStatus = "CANCELLED"
	ActionStatusExpired   ActionStatus = "EXPIRED"
)

// Admin 管理员记录，移除后保留历史
type Admin struct {
	Address       common.Address `json:"address"`
	Role          AdminRole      `json:"role"`
	JoinTimestamp int64          `json:"joinTimestamp"`
	IsActive      bool           `json:"isActive"`
	Ordinal       uint64         `json:"-"`
}

// Serving 是否为在任管理员
func (a Admin) Serving() bool {
	return a.IsActive && a.Role != RoleNone
}

// StakeRecord 管理员质押记录
type StakeRecord struct {
	Admin          common.Address `json:"admin"`
	StakedAmount   *big.Int       `json:"stakedAmount"`
	SlashCount     uint64         `json:"slashCount"`
	RewardsClaimed *big.Int       `json:"rewardsClaimed"`
	RewardDebt     *big.Int       `json:"-"`
	AccruedRewards *big.Int       `json:"-"`
}

// NewStakeRecord 创建空质押记录
func NewStakeRecord(admin common.Address) StakeRecord {
	return StakeRecord{
		Admin:          admin,
		StakedAmount:   new(big.Int),
		RewardsClaimed: new(big.Int),
		RewardDebt:     new(big.Int),
		AccruedRewards: new(big.Int),
	}
}

// Clone 深拷贝
func (s StakeRecord) Clone() StakeRecord {
	return StakeRecord{
		Admin:          s.Admin,
		StakedAmount:   cloneInt(s.StakedAmount),
		SlashCount:     s.SlashCount,
		RewardsClaimed: cloneInt(s.RewardsClaimed),
		RewardDebt:     cloneInt(s.RewardDebt),
		AccruedRewards: cloneInt(s.AccruedRewards),
	}
}

// AdminInfo 管理员信息（角色+质押）
type AdminInfo struct {
	Address        common.Address `json:"address"`
	Role           AdminRole      `json:"role"`
	RoleName       string         `json:"roleName"`
	JoinTimestamp  int64          `json:"joinTimestamp"`
	IsActive       bool           `json:"isActive"`
	StakedAmount   *big.Int       `json:"stakedAmount"`
	SlashCount     uint64         `json:"slashCount"`
	RewardsClaimed *big.Int       `json:"rewardsClaimed"`
}

// PendingAction 多签提案
type PendingAction struct {
	ID                    uint64           `json:"id"`
	ActionType            ActionType       `json:"actionType"`
	Proposer              common.Address   `json:"proposer"`
	Target                common.Address   `json:"target"`
	NewRole               AdminRole        `json:"newRole"`
	Amount                *big.Int         `json:"amount"`
	Reason                string           `json:"reason"`
	Data                  []byte           `json:"data,omitempty"`
	Confirmations         uint64           `json:"confirmations"`
	Confirmers            []common.Address `json:"confirmers"`
	RequiredConfirmations uint64           `json:"requiredConfirmations"`
	CreatedAt             int64            `json:"createdAt"`
	Deadline              int64            `json:"deadline"`
	Executed              bool             `json:"executed"`
	Cancelled             bool             `json:"cancelled"`
	ExecutedAt            int64            `json:"executedAt,omitempty"`
	CancelledAt           int64            `json:"cancelledAt,omitempty"`
}

// Clone 深拷贝
func (a PendingAction) Clone() PendingAction {
	out := a
	out.Amount = cloneInt(a.Amount)
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	out.Confirmers = append([]common.Address(nil), a.Confirmers...)
	return out
}

// HasConfirmed 地址是否已确认
func (a PendingAction) HasConfirmed(addr common.Address) bool {
	for _, c := range a.Confirmers {
		if c == addr {
			return true
		}
	}
	return false
}

// Status 根据当前时间推导状态，过期为隐式终态
func (a PendingAction) Status(now int64) ActionStatus {
	switch {
	case a.Executed:
		return ActionStatusExecuted
	case a.Cancelled:
		return ActionStatusCancelled
	case now > a.Deadline:
		return ActionStatusExpired
	default:
		return ActionStatusPending
	}
}

// TimeLockPayload 时间锁携带的操作
type TimeLockPayload struct {
	ActionType ActionType     `json:"actionType"`
	Proposer   common.Address `json:"proposer"`
	Target     common.Address `json:"target"`
	NewRole    AdminRole      `json:"newRole"`
}

// TimeLock 时间锁，编号独立于提案
type TimeLock struct {
	ID         uint64          `json:"id"`
	Action     TimeLockPayload `json:"action"`
	UnlockTime int64           `json:"unlockTime"`
	CreatedAt  int64           `json:"createdAt"`
	Executed   bool            `json:"executed"`
	Cancelled  bool            `json:"cancelled"`
}

// EmergencyState 紧急模式状态
type EmergencyState struct {
	EmergencyMode bool           `json:"emergencyMode"`
	TriggeredBy   common.Address `json:"triggeredBy"`
	StartTime     int64          `json:"startTime"`
}

// Permission 函数选择器所需最低角色
type Permission struct {
	Selector  [4]byte   `json:"-"`
	Signature string    `json:"signature,omitempty"`
	MinRole   AdminRole `json:"minRole"`
}

// StakingStats 质押全局统计
type StakingStats struct {
	Enabled         bool     `json:"enabled"`
	MinimumStake    *big.Int `json:"minimumStake"`
	SlashPercentage uint64   `json:"slashPercentage"`
	MaxSlashCount   uint64   `json:"maxSlashCount"`
	TotalStaked     *big.Int `json:"totalStaked"`
	RewardPool      *big.Int `json:"rewardPool"`
}

// RegistryStats 注册表统计
type RegistryStats struct {
	Mode                  string `json:"mode"`
	TotalAdmins           uint64 `json:"totalAdmins"`
	RequiredConfirmations uint64 `json:"requiredConfirmations"`
	AdminFloor            uint64 `json:"adminFloor"`
	PendingActionsCount   uint64 `json:"pendingActionsCount"`
	TimeLocksCount        uint64 `json:"timeLocksCount"`
}

// LedgerMeta 账本单例状态
type LedgerMeta struct {
	TotalAdmins           uint64
	RequiredConfirmations uint64
	NextActionID          uint64
	NextTimeLockID        uint64
	NextOrdinal           uint64
	Emergency             EmergencyState
	TotalStaked           *big.Int
	RewardPool            *big.Int
	AccRewardPerShare     *big.Int
	EventCount            uint64
	HeadHash              common.Hash
}

// Clone 深拷贝
func (m LedgerMeta) Clone() LedgerMeta {
	out := m
	out.TotalStaked = cloneInt(m.TotalStaked)
	out.RewardPool = cloneInt(m.RewardPool)
	out.AccRewardPerShare = cloneInt(m.AccRewardPerShare)
	return out
}

// LedgerChangeSet 一次提交产生的全部变更
type LedgerChangeSet struct {
	Admins      []Admin
	Stakes      []StakeRecord
	Actions     []PendingAction
	TimeLocks   []TimeLock
	Permissions []Permission // MinRole为NONE表示删除
	Meta        LedgerMeta
	Events      []Event
	// PendingTransfers 提交期间已广播但未确认的代币交易
	PendingTransfers []PendingTransfer
}

// PendingTransfer 未确认的代币交易，账本扣减已生效
type PendingTransfer struct {
	TxHash    common.Hash
	Method    string
	Account   common.Address
	Amount    *big.Int
	Sequence  uint64 // 对应事件序号
	CreatedAt int64
}

// LedgerSnapshot 持久化的完整账本
type LedgerSnapshot struct {
	Admins      []Admin
	Stakes      []StakeRecord
	Actions     []PendingAction
	TimeLocks   []TimeLock
	Permissions []Permission
	Meta        LedgerMeta
	Events      []Event
}

// ActionFilter 提案查询条件
type ActionFilter struct {
	OpenOnly bool
	Type     *ActionType
	Proposer *common.Address
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
