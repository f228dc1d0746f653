package middleware

import (
	"net/http"
	"strings"

	"governance-backend/internal/service/auth"
	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	ctxUserID        = "user_id"
	ctxWalletAddress = "wallet_address"
)

// AuthMiddleware 校验Bearer访问令牌，写入调用者身份
func AuthMiddleware(authService auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if authHeader == "" || len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abortUnauthorized(c, "Missing or malformed Authorization header")
			return
		}

		claims, err := authService.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			logger.Error("AuthMiddleware Error: ", err, "path", c.FullPath())
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxWalletAddress, claims.WalletAddress)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
		Success: false,
		Error: &types.APIError{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}

// GetUserFromContext 获取已认证用户的ID和钱包地址
func GetUserFromContext(c *gin.Context) (int64, string, bool) {
	userID, ok := c.Get(ctxUserID)
	if !ok {
		return 0, "", false
	}
	wallet, ok := c.Get(ctxWalletAddress)
	if !ok {
		return 0, "", false
	}
	id, ok1 := userID.(int64)
	addr, ok2 := wallet.(string)
	if !ok1 || !ok2 {
		return 0, "", false
	}
	return id, addr, true
}

// GetCaller 已认证调用者的地址
func GetCaller(c *gin.Context) (common.Address, bool) {
	_, wallet, ok := GetUserFromContext(c)
	if !ok || !common.IsHexAddress(wallet) {
		return common.Address{}, false
	}
	return common.HexToAddress(wallet), true
}
