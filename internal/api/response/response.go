package response

import (
	"net/http"

	"governance-backend/internal/types"

	"github.com/gin-gonic/gin"
)

// OK 成功响应
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, types.APIResponse{
		Success: true,
		Data:    data,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, types.APIResponse{
		Success: false,
		Error: &types.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// InvalidRequest 参数错误
func InvalidRequest(c *gin.Context, err error) {
	Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request parameters", err.Error())
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context) {
	Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated", "")
}
