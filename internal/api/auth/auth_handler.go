package auth

import (
	"errors"
	"net/http"

	"governance-backend/internal/api/response"
	"governance-backend/internal/middleware"
	"governance-backend/internal/service/auth"
	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler 认证处理器
type Handler struct {
	authService auth.Service
}

// NewHandler 创建认证处理器
func NewHandler(authService auth.Service) *Handler {
	return &Handler{
		authService: authService,
	}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	authGroup := router.Group("/auth")
	{
		// 申请登录挑战
		// http://localhost:8080/api/v1/auth/nonce
		authGroup.POST("/nonce", h.IssueChallenge)
		// 钱包连接认证
		// http://localhost:8080/api/v1/auth/wallet-connect
		authGroup.POST("/wallet-connect", h.WalletConnect)
		// 刷新访问令牌
		// http://localhost:8080/api/v1/auth/refresh
		authGroup.POST("/refresh", h.RefreshToken)
		// 获取用户资料
		// http://localhost:8080/api/v1/auth/profile
		authGroup.GET("/profile", middleware.AuthMiddleware(h.authService), h.GetProfile)
	}
}

// authStatus 认证错误到HTTP状态和错误码
func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidAddress):
		return http.StatusBadRequest, "INVALID_WALLET_ADDRESS"
	case errors.Is(err, auth.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, auth.ErrInvalidChallenge):
		return http.StatusUnauthorized, "INVALID_CHALLENGE"
	case errors.Is(err, auth.ErrNonceUsed):
		return http.StatusUnauthorized, "NONCE_EXPIRED_OR_USED"
	case errors.Is(err, auth.ErrSignatureRecovery):
		return http.StatusUnauthorized, "SIGNATURE_RECOVERY_FAILED"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"
	case errors.Is(err, auth.ErrUserDisabled):
		return http.StatusForbidden, "USER_DISABLED"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// IssueChallenge 申请登录挑战
// @Summary 申请登录挑战
// @Description 返回一次性nonce及待签名消息，消息绑定域名、钱包地址和过期时间
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body types.NonceRequest true "挑战请求"
// @Success 200 {object} types.APIResponse{data=types.NonceResponse}
// @Failure 400 {object} types.APIResponse
// @Router /api/v1/auth/nonce [post]
func (h *Handler) IssueChallenge(c *gin.Context) {
	var req types.NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("IssueChallenge Error: ", errors.New("invalid request parameters"), "error", err)
		return
	}

	resp, err := h.authService.IssueChallenge(c.Request.Context(), &req)
	if err != nil {
		status, code := authStatus(err)
		response.Fail(c, status, code, err.Error(), "")
		return
	}
	response.OK(c, resp)
}

// WalletConnect 钱包连接认证
// @Summary 钱包连接认证
// @Description 对/auth/nonce签发的消息做EIP-191签名完成认证，nonce只能使用一次
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body types.WalletConnectRequest true "钱包连接请求"
// @Success 200 {object} types.APIResponse{data=types.WalletConnectResponse}
// @Failure 400 {object} types.APIResponse
// @Failure 401 {object} types.APIResponse
// @Router /api/v1/auth/wallet-connect [post]
func (h *Handler) WalletConnect(c *gin.Context) {
	var req types.WalletConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("WalletConnect Error: ", errors.New("invalid request parameters"), "error", err)
		return
	}

	resp, err := h.authService.WalletConnect(c.Request.Context(), &req)
	if err != nil {
		status, code := authStatus(err)
		response.Fail(c, status, code, err.Error(), "")
		logger.Error("WalletConnect Error: ", err, "error_code", code)
		return
	}
	logger.Info("WalletConnect: ", "user", resp.User.WalletAddress)
	response.OK(c, resp)
}

// RefreshToken 刷新访问令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌获取新的访问令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body types.RefreshTokenRequest true "刷新令牌请求"
// @Success 200 {object} types.APIResponse{data=types.WalletConnectResponse}
// @Failure 400 {object} types.APIResponse
// @Failure 401 {object} types.APIResponse
// @Router /api/v1/auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	var req types.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("RefreshToken Error: ", errors.New("invalid request parameters"), "error", err)
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), &req)
	if err != nil {
		status, code := authStatus(err)
		response.Fail(c, status, code, err.Error(), "")
		logger.Error("RefreshToken Error: ", err, "error_code", code)
		return
	}
	response.OK(c, resp)
}

// GetProfile 获取用户资料
// @Summary 获取用户资料
// @Description 获取当前认证用户的资料及治理角色
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} types.APIResponse{data=types.UserProfile}
// @Failure 401 {object} types.APIResponse
// @Failure 404 {object} types.APIResponse
// @Router /api/v1/auth/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	userID, _, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	profile, err := h.authService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		status, code := authStatus(err)
		response.Fail(c, status, code, err.Error(), "")
		logger.Error("GetProfile Error: ", err, "user_id", userID)
		return
	}
	response.OK(c, profile)
}
