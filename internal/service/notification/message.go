package notification

import (
	"fmt"
	"strings"

	"governance-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// alertEvents 需要推送告警的事件
var alertEvents = map[types.EventType]bool{
	types.EventEmergencyModeToggled: true,
	types.EventAdminSlashed:         true,
	types.EventAdminDeactivated:     true,
	types.EventActionProposed:       true,
	types.EventTimeLockScheduled:    true,
	types.EventAdminRemoved:         true,
}

// IsAlertEvent 是否推送告警
func IsAlertEvent(t types.EventType) bool {
	return alertEvents[t]
}

// IsCritical 紧急模式与罚没额外发送邮件
func IsCritical(t types.EventType) bool {
	switch t {
	case types.EventEmergencyModeToggled, types.EventAdminSlashed, types.EventAdminDeactivated:
		return true
	}
	return false
}

func eventEmoji(e types.Event) string {
	switch e.Type {
	case types.EventEmergencyModeToggled:
		if e.Enabled != nil && *e.Enabled {
			return "🚨"
		}
		return "✅"
	case types.EventAdminSlashed, types.EventAdminDeactivated:
		return "⚔️"
	case types.EventActionProposed:
		return "📋"
	case types.EventTimeLockScheduled:
		return "⏳"
	case types.EventAdminRemoved:
		return "❌"
	default:
		return "📣"
	}
}

// Title 告警标题
func Title(e types.Event) string {
	switch e.Type {
	case types.EventEmergencyModeToggled:
		if e.Enabled != nil && *e.Enabled {
			return "Emergency Mode Activated"
		}
		return "Emergency Mode Resolved"
	case types.EventAdminSlashed:
		return "Admin Slashed"
	case types.EventAdminDeactivated:
		return "Admin Deactivated"
	case types.EventActionProposed:
		return "New Governance Proposal"
	case types.EventTimeLockScheduled:
		return "Time Lock Scheduled"
	case types.EventAdminRemoved:
		return "Admin Removed"
	default:
		return string(e.Type)
	}
}

// FormatMessage 生成文本告警
func FormatMessage(e types.Event) string {
	var b strings.Builder
	b.WriteString("━━━━━━━━━━━━━━━━\n")
	b.WriteString("⚡ Governance Notification\n")
	b.WriteString("━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "%s %s\n", eventEmoji(e), Title(e))
	if e.Actor != (common.Address{}) {
		fmt.Fprintf(&b, "👤 Actor    : %s\n", e.Actor.Hex())
	}
	if e.Subject != (common.Address{}) {
		fmt.Fprintf(&b, "🎯 Subject  : %s\n", e.Subject.Hex())
	}
	if e.ActionID != 0 {
		if e.ActionType != nil {
			fmt.Fprintf(&b, "#️⃣ Action   : #%d %s\n", e.ActionID, e.ActionType.String())
		} else {
			fmt.Fprintf(&b, "#️⃣ Action   : #%d\n", e.ActionID)
		}
	}
	if e.NewRole != nil {
		fmt.Fprintf(&b, "🛡 Role     : %s\n", e.NewRole.String())
	}
	if e.Amount != nil {
		fmt.Fprintf(&b, "💰 Amount   : %s\n", e.Amount.String())
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, "📝 Reason   : %s\n", e.Reason)
	}
	fmt.Fprintf(&b, "🔗 Event    : #%d %s", e.Sequence, e.Hash.Hex())
	return b.String()
}
