package types

import "time"

// 治理账本持久化模型，金额以十进制字符串存储

// AdminModel 管理员表
type AdminModel struct {
	Address       string    `json:"address" gorm:"primaryKey;size:42"`
	Role          uint8     `json:"role" gorm:"not null;default:0"`
	JoinTimestamp int64     `json:"join_timestamp" gorm:"not null;default:0"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:false;index"`
	Ordinal       uint64    `json:"ordinal" gorm:"not null;default:0;index"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AdminModel) TableName() string {
	return "gov_admins"
}

// StakeModel 质押表
type StakeModel struct {
	Admin          string    `json:"admin" gorm:"primaryKey;size:42"`
	StakedAmount   string    `json:"staked_amount" gorm:"size:80;not null;default:'0'"`
	SlashCount     uint64    `json:"slash_count" gorm:"not null;default:0"`
	RewardsClaimed string    `json:"rewards_claimed" gorm:"size:80;not null;default:'0'"`
	RewardDebt     string    `json:"reward_debt" gorm:"size:120;not null;default:'0'"`
	AccruedRewards string    `json:"accrued_rewards" gorm:"size:80;not null;default:'0'"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (StakeModel) TableName() string {
	return "gov_stakes"
}

// ActionModel 多签提案表
type ActionModel struct {
	ID                    uint64 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ActionType            uint8  `json:"action_type" gorm:"not null;index"`
	Proposer              string `json:"proposer" gorm:"size:42;not null;index"`
	Target                string `json:"target" gorm:"size:42;not null"`
	NewRole               uint8  `json:"new_role" gorm:"not null;default:0"`
	Amount                string `json:"amount" gorm:"size:80;not null;default:'0'"`
	Reason                string `json:"reason" gorm:"type:text"`
	Data                  []byte `json:"data"`
	Confirmations         uint64 `json:"confirmations" gorm:"not null;default:0"`
	RequiredConfirmations uint64 `json:"required_confirmations" gorm:"not null"`
	ProposedAt            int64  `json:"proposed_at" gorm:"not null"`
	Deadline              int64  `json:"deadline" gorm:"not null;index"`
	Executed              bool   `json:"executed" gorm:"not null;default:false"`
	Cancelled             bool   `json:"cancelled" gorm:"not null;default:false"`
	ExecutedAt            int64  `json:"executed_at" gorm:"not null;default:0"`
	CancelledAt           int64  `json:"cancelled_at" gorm:"not null;default:0"`
}

func (ActionModel) TableName() string {
	return "gov_actions"
}

// ActionConfirmationModel 提案确认表，Position保持确认顺序
type ActionConfirmationModel struct {
	ActionID  uint64 `json:"action_id" gorm:"primaryKey;autoIncrement:false"`
	Confirmer string `json:"confirmer" gorm:"primaryKey;size:42"`
	Position  int    `json:"position" gorm:"not null"`
}

func (ActionConfirmationModel) TableName() string {
	return "gov_action_confirmations"
}

// TimeLockModel 时间锁表
type TimeLockModel struct {
	ID          uint64 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ActionType  uint8  `json:"action_type" gorm:"not null"`
	Proposer    string `json:"proposer" gorm:"size:42;not null"`
	Target      string `json:"target" gorm:"size:42;not null"`
	NewRole     uint8  `json:"new_role" gorm:"not null"`
	UnlockTime  int64  `json:"unlock_time" gorm:"not null;index"`
	ScheduledAt int64  `json:"scheduled_at" gorm:"not null"`
	Executed    bool   `json:"executed" gorm:"not null;default:false"`
	Cancelled   bool   `json:"cancelled" gorm:"not null;default:false"`
}

func (TimeLockModel) TableName() string {
	return "gov_timelocks"
}

// PermissionModel 函数选择器权限表
type PermissionModel struct {
	Selector  string `json:"selector" gorm:"primaryKey;size:10"`
	Signature string `json:"signature" gorm:"size:200"`
	MinRole   uint8  `json:"min_role" gorm:"not null"`
}

func (PermissionModel) TableName() string {
	return "gov_permissions"
}

// LedgerMetaModel 账本单例行，ID固定为1
type LedgerMetaModel struct {
	ID                    uint8     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	TotalAdmins           uint64    `json:"total_admins" gorm:"not null"`
	RequiredConfirmations uint64    `json:"required_confirmations" gorm:"not null"`
	NextActionID          uint64    `json:"next_action_id" gorm:"not null"`
	NextTimeLockID        uint64    `json:"next_timelock_id" gorm:"not null"`
	NextOrdinal           uint64    `json:"next_ordinal" gorm:"not null"`
	EmergencyMode         bool      `json:"emergency_mode" gorm:"not null;default:false"`
	EmergencyTriggeredBy  string    `json:"emergency_triggered_by" gorm:"size:42"`
	EmergencyStartTime    int64     `json:"emergency_start_time" gorm:"not null;default:0"`
	TotalStaked           string    `json:"total_staked" gorm:"size:80;not null;default:'0'"`
	RewardPool            string    `json:"reward_pool" gorm:"size:80;not null;default:'0'"`
	AccRewardPerShare     string    `json:"acc_reward_per_share" gorm:"size:120;not null;default:'0'"`
	EventCount            uint64    `json:"event_count" gorm:"not null;default:0"`
	HeadHash              string    `json:"head_hash" gorm:"size:66"`
	UpdatedAt             time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (LedgerMetaModel) TableName() string {
	return "gov_ledger_meta"
}

// EventModel 审计事件表，可空列保持原值以便重算哈希
type EventModel struct {
	Sequence   uint64  `json:"sequence" gorm:"primaryKey;autoIncrement:false"`
	Type       string  `json:"type" gorm:"size:40;not null;index"`
	Timestamp  int64   `json:"timestamp" gorm:"not null;index"`
	Actor      string  `json:"actor" gorm:"size:42;not null;index"`
	Subject    string  `json:"subject" gorm:"size:42;index"`
	ActionID   uint64  `json:"action_id" gorm:"not null;default:0;index"`
	ActionType *uint8  `json:"action_type"`
	OldRole    *uint8  `json:"old_role"`
	NewRole    *uint8  `json:"new_role"`
	Amount     *string `json:"amount" gorm:"size:80"`
	Enabled    *bool   `json:"enabled"`
	Reason     string  `json:"reason" gorm:"type:text"`
	PrevHash   string  `json:"prev_hash" gorm:"size:66;not null"`
	Hash       string  `json:"hash" gorm:"size:66;not null;uniqueIndex"`
}

func (EventModel) TableName() string {
	return "gov_events"
}

// PendingTransferModel 已广播未确认的代币交易
type PendingTransferModel struct {
	TxHash    string    `json:"tx_hash" gorm:"primaryKey;size:66"`
	Method    string    `json:"method" gorm:"size:20;not null"`
	Account   string    `json:"account" gorm:"size:42;not null;index"`
	Amount    string    `json:"amount" gorm:"size:80;not null"`
	Sequence  uint64    `json:"sequence" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (PendingTransferModel) TableName() string {
	return "gov_pending_transfers"
}
