package governance

import (
	"errors"
	"net/http"

	"governance-backend/internal/service/governance"
)

// statusOf 治理错误分类到HTTP状态码
func statusOf(err error) int {
	if errors.Is(err, governance.ErrActionExpired) {
		return http.StatusGone
	}
	switch governance.KindOf(err) {
	case governance.KindAuthorization:
		return http.StatusForbidden
	case governance.KindInvalidArgument:
		return http.StatusBadRequest
	case governance.KindNotFound:
		return http.StatusNotFound
	case governance.KindStateConflict, governance.KindInvariantViolation:
		return http.StatusConflict
	case governance.KindTemporal:
		return http.StatusTooEarly
	case governance.KindInsufficientResource:
		return http.StatusUnprocessableEntity
	case governance.KindEmergencyGate:
		return http.StatusLocked
	case governance.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
