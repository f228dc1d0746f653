package governance

import (
	"errors"
)

// ErrorKind 错误分类，决定HTTP状态码
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindInvalidArgument
	KindStateConflict
	KindInvariantViolation
	KindTemporal
	KindInsufficientResource
	KindEmergencyGate
	KindNotFound
	KindExternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "AuthorizationError"
	case KindInvalidArgument:
		return "InvalidArgumentError"
	case KindStateConflict:
		return "StateConflictError"
	case KindInvariantViolation:
		return "InvariantViolationError"
	case KindTemporal:
		return "TemporalError"
	case KindInsufficientResource:
		return "InsufficientResourceError"
	case KindEmergencyGate:
		return "EmergencyGateError"
	case KindNotFound:
		return "NotFoundError"
	case KindExternal:
		return "ExternalError"
	default:
		return "UnknownError"
	}
}

// Error 治理操作拒绝原因
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// Authorization
	ErrOnlySuperAdmin         = newError(KindAuthorization, "ONLY_SUPER_ADMIN", "Only super admin can perform this action")
	ErrInsufficientPrivileges = newError(KindAuthorization, "INSUFFICIENT_PRIVILEGES", "Insufficient admin privileges")
	ErrOnlyRecoveryAdmin      = newError(KindAuthorization, "ONLY_RECOVERY_ADMIN", "Only recovery admin can trigger emergency")
	ErrCallerNotAdmin         = newError(KindAuthorization, "CALLER_NOT_ADMIN", "Caller is not an active admin")
	ErrNotProposer            = newError(KindAuthorization, "NOT_PROPOSER", "Only proposer or super admin can cancel")

	// Invalid argument
	ErrInvalidAddress         = newError(KindInvalidArgument, "INVALID_ADDRESS", "Invalid admin address")
	ErrInvalidRole            = newError(KindInvalidArgument, "INVALID_ROLE", "Invalid role")
	ErrSameRole               = newError(KindInvalidArgument, "SAME_ROLE", "Same role")
	ErrInvalidAmount          = newError(KindInvalidArgument, "INVALID_AMOUNT", "Amount must be greater than zero")
	ErrWrongActionType        = newError(KindInvalidArgument, "WRONG_ACTION_TYPE", "Wrong action type for this entry point")
	ErrInvalidStakingToken    = newError(KindInvalidArgument, "INVALID_STAKING_TOKEN", "Invalid staking token")
	ErrNotEnoughInitialAdmins = newError(KindInvalidArgument, "NOT_ENOUGH_INITIAL_ADMINS", "Not enough initial admins")

	// Not found
	ErrInvalidActionID   = newError(KindNotFound, "INVALID_ACTION_ID", "Invalid action ID")
	ErrInvalidTimeLockID = newError(KindNotFound, "INVALID_TIMELOCK_ID", "Invalid time lock ID")

	// State conflict
	ErrAlreadyAdmin        = newError(KindStateConflict, "ALREADY_ADMIN", "Already an admin")
	ErrNotAdmin            = newError(KindStateConflict, "NOT_ADMIN", "Not an admin")
	ErrAlreadyConfirmed    = newError(KindStateConflict, "ALREADY_CONFIRMED", "Already confirmed")
	ErrActionExecuted      = newError(KindStateConflict, "ACTION_EXECUTED", "Action already executed")
	ErrActionCancelled     = newError(KindStateConflict, "ACTION_CANCELLED", "Action cancelled")
	ErrTimeLockExecuted    = newError(KindStateConflict, "TIMELOCK_EXECUTED", "Time lock already executed")
	ErrTimeLockCancelled   = newError(KindStateConflict, "TIMELOCK_CANCELLED", "Time lock cancelled")
	ErrAlreadyInEmergency  = newError(KindStateConflict, "ALREADY_IN_EMERGENCY", "Already in emergency mode")
	ErrNotInEmergency      = newError(KindStateConflict, "NOT_IN_EMERGENCY", "Not in emergency mode")
	ErrActiveAdminWithdraw = newError(KindStateConflict, "ACTIVE_ADMIN_WITHDRAW", "Active admins cannot withdraw stake")
	ErrStakingDisabled     = newError(KindStateConflict, "STAKING_DISABLED", "Staking is not enabled")

	// Invariant
	ErrBelowAdminFloor = newError(KindInvariantViolation, "BELOW_ADMIN_FLOOR", "Cannot go below minimum admins")

	// Temporal
	ErrActionExpired    = newError(KindTemporal, "ACTION_EXPIRED", "Action expired")
	ErrTimeLockNotReady = newError(KindTemporal, "TIMELOCK_NOT_READY", "Time lock not yet unlocked")
	ErrDelayTooShort    = newError(KindTemporal, "DELAY_TOO_SHORT", "Minimum 1 hour delay required")
	ErrDelayTooLong     = newError(KindTemporal, "DELAY_TOO_LONG", "Delay too long")

	// Insufficient resource
	ErrInsufficientStake         = newError(KindInsufficientResource, "INSUFFICIENT_STAKE", "Insufficient stake amount")
	ErrInsufficientConfirmations = newError(KindInsufficientResource, "INSUFFICIENT_CONFIRMATIONS", "Insufficient confirmations")
	ErrNoStakeToSlash            = newError(KindInsufficientResource, "NO_STAKE_TO_SLASH", "No stake to slash")
	ErrNoStakeToClaim            = newError(KindInsufficientResource, "NO_STAKE_TO_CLAIM", "No stake to claim rewards for")
	ErrNoRewards                 = newError(KindInsufficientResource, "NO_REWARDS", "No rewards to claim")
	ErrWithdrawExceedsStake      = newError(KindInsufficientResource, "WITHDRAW_EXCEEDS_STAKE", "Insufficient staked amount")

	// Emergency gate
	ErrEmergencyMode     = newError(KindEmergencyGate, "EMERGENCY_MODE", "Contract is in emergency mode")
	ErrEmergencyRequired = newError(KindEmergencyGate, "EMERGENCY_REQUIRED", "Emergency mode required")

	// External
	ErrTokenTransferFailed = newError(KindExternal, "TOKEN_TRANSFER_FAILED", "Token transfer failed")
	ErrPersistence         = newError(KindExternal, "PERSISTENCE_FAILED", "Failed to persist governance state")
)

// KindOf 获取错误分类，非治理错误返回KindUnknown
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// CodeOf 获取错误码
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return "INTERNAL_ERROR"
}
