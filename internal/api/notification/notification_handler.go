package notification

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"governance-backend/internal/api/response"
	"governance-backend/internal/middleware"
	"governance-backend/internal/service/auth"
	"governance-backend/internal/service/notification"
	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知API处理器
type NotificationHandler struct {
	notificationService notification.NotificationService
	authService         auth.Service
}

// NewNotificationHandler 创建通知处理器实例
func NewNotificationHandler(notificationService notification.NotificationService, authService auth.Service) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		authService:         authService,
	}
}

// RegisterRoutes 注册通知相关路由
func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	// 通知API组 - 需要认证
	notificationGroup := router.Group("/notifications", middleware.AuthMiddleware(h.authService))
	{
		// 获取所有通知配置
		// POST /api/v1/notifications/configs
		notificationGroup.POST("/configs", h.GetAllNotificationConfigs)

		// 创建通知配置
		// POST /api/v1/notifications/create
		notificationGroup.POST("/create", h.CreateNotificationConfig)

		// 更新通知配置
		// POST /api/v1/notifications/update
		notificationGroup.POST("/update", h.UpdateNotificationConfig)

		// 删除通知配置
		// POST /api/v1/notifications/delete
		notificationGroup.POST("/delete", h.DeleteNotificationConfig)

		// 告警发送记录
		// GET /api/v1/notifications/logs?limit=50
		notificationGroup.GET("/logs", h.GetNotificationLogs)
	}
}

// failNotification 通知服务错误到HTTP状态
func failNotification(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrConfigExists):
		response.Fail(c, http.StatusConflict, "CONFIG_EXISTS", err.Error(), "")
	case errors.Is(err, notification.ErrConfigNotFound):
		response.Fail(c, http.StatusNotFound, "CONFIG_NOT_FOUND", err.Error(), "")
	case errors.Is(err, notification.ErrInvalidChannel):
		response.Fail(c, http.StatusBadRequest, "INVALID_CHANNEL", err.Error(), "")
	case errors.Is(err, notification.ErrMissingField), errors.Is(err, notification.ErrNoFieldsUpdate):
		response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), "")
	default:
		response.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), "")
	}
}

// GetAllNotificationConfigs 获取所有通知配置
// @Summary 获取所有通知配置
// @Description 获取当前管理员的所有告警渠道配置
// @Tags Notification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} types.APIResponse{data=types.NotificationConfigListResponse} "获取成功"
// @Failure 401 {object} types.APIResponse{error=types.APIError} "未认证"
// @Failure 500 {object} types.APIResponse{error=types.APIError} "服务器内部错误"
// @Router /api/v1/notifications/configs [post]
func (h *NotificationHandler) GetAllNotificationConfigs(c *gin.Context) {
	_, userAddress, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	configs, err := h.notificationService.GetAllNotificationConfigs(c.Request.Context(), userAddress)
	if err != nil {
		failNotification(c, err)
		logger.Error("GetAllNotificationConfigs Error: ", err, "user_address", userAddress)
		return
	}
	response.OK(c, configs)
}

// CreateNotificationConfig 创建通知配置
// @Summary 创建通知配置
// @Description 为当前管理员创建告警渠道, 名字的空格会被自动去除
// @Tags Notification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.CreateNotificationRequest true "创建请求"
// @Success 200 {object} types.APIResponse "创建成功"
// @Failure 400 {object} types.APIResponse{error=types.APIError} "请求参数错误"
// @Failure 401 {object} types.APIResponse{error=types.APIError} "未认证"
// @Failure 409 {object} types.APIResponse{error=types.APIError} "配置名称已存在"
// @Router /api/v1/notifications/create [post]
func (h *NotificationHandler) CreateNotificationConfig(c *gin.Context) {
	_, userAddress, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	var req types.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("CreateNotificationConfig Error: ", err, "user_address", userAddress)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.Fail(c, http.StatusBadRequest, "INVALID_NAME", "Name cannot be empty", "")
		return
	}

	if err := h.notificationService.CreateNotificationConfig(c.Request.Context(), userAddress, &req); err != nil {
		failNotification(c, err)
		logger.Error("CreateNotificationConfig Error: ", err, "user_address", userAddress, "name", req.Name)
		return
	}

	logger.Info("CreateNotificationConfig: ", "user_address", userAddress, "channel", req.Channel, "name", req.Name)
	response.OK(c, gin.H{"message": "Notification config created successfully"})
}

// UpdateNotificationConfig 更新通知配置
// @Summary 更新通知配置
// @Description 按名称更新配置, 未传字段保持不变, 至少传一个字段
// @Tags Notification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.UpdateNotificationRequest true "更新请求"
// @Success 200 {object} types.APIResponse "更新成功"
// @Failure 400 {object} types.APIResponse{error=types.APIError} "请求参数错误"
// @Failure 404 {object} types.APIResponse{error=types.APIError} "配置不存在"
// @Router /api/v1/notifications/update [post]
func (h *NotificationHandler) UpdateNotificationConfig(c *gin.Context) {
	_, userAddress, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	var req types.UpdateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("UpdateNotificationConfig Error: ", err, "user_address", userAddress)
		return
	}

	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		response.Fail(c, http.StatusBadRequest, "INVALID_NAME", "Name is required", "")
		return
	}

	if err := h.notificationService.UpdateNotificationConfig(c.Request.Context(), userAddress, &req); err != nil {
		failNotification(c, err)
		logger.Error("UpdateNotificationConfig Error: ", err, "user_address", userAddress, "name", *req.Name)
		return
	}

	logger.Info("UpdateNotificationConfig: ", "user_address", userAddress, "name", *req.Name)
	response.OK(c, gin.H{"message": "Notification config updated successfully"})
}

// DeleteNotificationConfig 删除通知配置
// @Summary 删除通知配置
// @Tags Notification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.DeleteNotificationRequest true "删除请求"
// @Success 200 {object} types.APIResponse "删除成功"
// @Failure 404 {object} types.APIResponse{error=types.APIError} "配置不存在"
// @Router /api/v1/notifications/delete [post]
func (h *NotificationHandler) DeleteNotificationConfig(c *gin.Context) {
	_, userAddress, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	var req types.DeleteNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		logger.Error("DeleteNotificationConfig Error: ", err, "user_address", userAddress)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.Fail(c, http.StatusBadRequest, "INVALID_NAME", "Name cannot be empty", "")
		return
	}

	if err := h.notificationService.DeleteNotificationConfig(c.Request.Context(), userAddress, &req); err != nil {
		failNotification(c, err)
		logger.Error("DeleteNotificationConfig Error: ", err, "user_address", userAddress, "name", req.Name)
		return
	}

	logger.Info("DeleteNotificationConfig: ", "user_address", userAddress, "name", req.Name)
	response.OK(c, gin.H{"message": "Notification config deleted successfully"})
}

// GetNotificationLogs 告警发送记录
// @Summary 告警发送记录
// @Tags Notification
// @Produce json
// @Security BearerAuth
// @Param limit query int false "条数，默认100"
// @Success 200 {object} types.APIResponse{data=[]types.NotificationLog}
// @Router /api/v1/notifications/logs [get]
func (h *NotificationHandler) GetNotificationLogs(c *gin.Context) {
	_, userAddress, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.Unauthorized(c)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Fail(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer", raw)
			return
		}
		limit = n
	}

	logs, err := h.notificationService.GetNotificationLogs(c.Request.Context(), userAddress, limit)
	if err != nil {
		failNotification(c, err)
		logger.Error("GetNotificationLogs Error: ", err, "user_address", userAddress)
		return
	}
	response.OK(c, logs)
}
