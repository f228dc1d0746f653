package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType 审计事件类型
type EventType string

const (
	EventAdminAdded           EventType = "AdminAdded"
	EventAdminRemoved         EventType = "AdminRemoved"
	EventAdminRoleChanged     EventType = "AdminRoleChanged"
	EventAdminDeactivated     EventType = "AdminDeactivated"
	EventEmergencyModeToggled EventType = "EmergencyModeToggled"
	EventActionProposed       EventType = "ActionProposed"
	EventActionConfirmed      EventType = "ActionConfirmed"
	EventActionExecuted       EventType = "ActionExecuted"
	EventActionCancelled      EventType = "ActionCancelled"
	EventTimeLockScheduled    EventType = "TimeLockScheduled"
	EventTimeLockExecuted     EventType = "TimeLockExecuted"
	EventTimeLockCancelled    EventType = "TimeLockCancelled"
	EventAdminStaked          EventType = "AdminStaked"
	EventStakeWithdrawn       EventType = "StakeWithdrawn"
	EventAdminSlashed         EventType = "AdminSlashed"
	EventRewardsClaimed       EventType = "RewardsClaimed"
	EventPermissionUpdated    EventType = "PermissionUpdated"
)

// Event 审计事件，按序号哈希链接
type Event struct {
	Sequence   uint64         `json:"sequence"`
	Type       EventType      `json:"type"`
	Timestamp  int64          `json:"timestamp"`
	Actor      common.Address `json:"actor"`
	Subject    common.Address `json:"subject,omitempty"`
	ActionID   uint64         `json:"actionId,omitempty"`
	ActionType *ActionType    `json:"actionType,omitempty"`
	OldRole    *AdminRole     `json:"oldRole,omitempty"`
	NewRole    *AdminRole     `json:"newRole,omitempty"`
	Amount     *big.Int       `json:"amount,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	PrevHash   common.Hash    `json:"prevHash"`
	Hash       common.Hash    `json:"hash"`
}

// EventFilter 事件查询条件
type EventFilter struct {
	Types     []EventType
	Address   *common.Address // 匹配Actor或Subject
	ActionID  uint64
	FromSeq   uint64
	Limit     int
	Ascending bool
}

// Match 是否满足过滤条件
func (f EventFilter) Match(e Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Address != nil && e.Actor != *f.Address && e.Subject != *f.Address {
		return false
	}
	if f.ActionID != 0 && e.ActionID != f.ActionID {
		return false
	}
	if f.FromSeq != 0 && e.Sequence < f.FromSeq {
		return false
	}
	return true
}

// EventLogVerification 哈希链校验结果
type EventLogVerification struct {
	Valid    bool        `json:"valid"`
	Message  string      `json:"message"`
	Length   uint64      `json:"length"`
	HeadHash common.Hash `json:"headHash"`
}
