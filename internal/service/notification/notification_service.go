package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"governance-backend/internal/repository/notification"
	"governance-backend/internal/types"
	"governance-backend/pkg/logger"
)

var (
	ErrInvalidChannel = errors.New("unsupported notification channel")
	ErrConfigExists   = errors.New("notification config with this name already exists")
	ErrConfigNotFound = errors.New("notification config not found")
	ErrNoFieldsUpdate = errors.New("no fields to update")
	ErrMissingField   = errors.New("missing required field")
)

// NotificationService 通知配置管理
type NotificationService interface {
	CreateNotificationConfig(ctx context.Context, userAddress string, req *types.CreateNotificationRequest) error
	UpdateNotificationConfig(ctx context.Context, userAddress string, req *types.UpdateNotificationRequest) error
	DeleteNotificationConfig(ctx context.Context, userAddress string, req *types.DeleteNotificationRequest) error
	GetAllNotificationConfigs(ctx context.Context, userAddress string) (*types.NotificationConfigListResponse, error)
	GetNotificationLogs(ctx context.Context, userAddress string, limit int) ([]*types.NotificationLog, error)
}

type notificationService struct {
	repo notification.NotificationRepository
}

// NewNotificationService 创建通知服务实例
func NewNotificationService(repo notification.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

// CreateNotificationConfig 按通道创建配置，同一用户下名称唯一
func (s *notificationService) CreateNotificationConfig(ctx context.Context, userAddress string, req *types.CreateNotificationRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if err := s.ensureNameFree(ctx, req.Channel, userAddress, name); err != nil {
		return err
	}

	var err error
	switch req.Channel {
	case types.ChannelTelegram:
		if req.BotToken == "" || req.ChatID == "" {
			return fmt.Errorf("%w: bot_token and chat_id", ErrMissingField)
		}
		err = s.repo.CreateTelegramConfig(ctx, &types.TelegramConfig{
			UserAddress: userAddress,
			Name:        name,
			BotToken:    req.BotToken,
			ChatID:      req.ChatID,
			IsActive:    true,
		})
	case types.ChannelLark:
		if req.WebhookURL == "" {
			return fmt.Errorf("%w: webhook_url", ErrMissingField)
		}
		err = s.repo.CreateLarkConfig(ctx, &types.LarkConfig{
			UserAddress: userAddress,
			Name:        name,
			WebhookURL:  req.WebhookURL,
			Secret:      req.Secret,
			IsActive:    true,
		})
	case types.ChannelFeishu:
		if req.WebhookURL == "" {
			return fmt.Errorf("%w: webhook_url", ErrMissingField)
		}
		err = s.repo.CreateFeishuConfig(ctx, &types.FeishuConfig{
			UserAddress: userAddress,
			Name:        name,
			WebhookURL:  req.WebhookURL,
			Secret:      req.Secret,
			IsActive:    true,
		})
	default:
		return ErrInvalidChannel
	}
	if err != nil {
		logger.Error("CreateNotificationConfig Error: ", err, "channel", req.Channel, "user_address", userAddress, "name", name)
		return fmt.Errorf("failed to create %s config: %w", req.Channel, err)
	}
	logger.Info("CreateNotificationConfig: ", "channel", req.Channel, "user_address", userAddress, "name", name)
	return nil
}

func (s *notificationService) ensureNameFree(ctx context.Context, channel types.NotificationChannel, userAddress, name string) error {
	var err error
	switch channel {
	case types.ChannelTelegram:
		_, err = s.repo.GetTelegramConfigByUserAddressAndName(ctx, userAddress, name)
	case types.ChannelLark:
		_, err = s.repo.GetLarkConfigByUserAddressAndName(ctx, userAddress, name)
	case types.ChannelFeishu:
		_, err = s.repo.GetFeishuConfigByUserAddressAndName(ctx, userAddress, name)
	default:
		return ErrInvalidChannel
	}
	if err == nil {
		return ErrConfigExists
	}
	if notification.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("failed to check existing %s config: %w", channel, err)
}

// UpdateNotificationConfig 只更新请求中给出的字段
func (s *notificationService) UpdateNotificationConfig(ctx context.Context, userAddress string, req *types.UpdateNotificationRequest) error {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	name := strings.TrimSpace(*req.Name)

	updates := make(map[string]interface{})
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	switch req.Channel {
	case types.ChannelTelegram:
		if req.BotToken != nil {
			updates["bot_token"] = *req.BotToken
		}
		if req.ChatID != nil {
			updates["chat_id"] = *req.ChatID
		}
	case types.ChannelLark, types.ChannelFeishu:
		if req.WebhookURL != nil {
			updates["webhook_url"] = *req.WebhookURL
		}
		if req.Secret != nil {
			updates["secret"] = *req.Secret
		}
	default:
		return ErrInvalidChannel
	}
	if len(updates) == 0 {
		return ErrNoFieldsUpdate
	}

	var err error
	switch req.Channel {
	case types.ChannelTelegram:
		err = s.repo.UpdateTelegramConfig(ctx, userAddress, name, updates)
	case types.ChannelLark:
		err = s.repo.UpdateLarkConfig(ctx, userAddress, name, updates)
	case types.ChannelFeishu:
		err = s.repo.UpdateFeishuConfig(ctx, userAddress, name, updates)
	}
	if notification.IsNotFound(err) {
		return ErrConfigNotFound
	}
	if err != nil {
		logger.Error("UpdateNotificationConfig Error: ", err, "channel", req.Channel, "user_address", userAddress, "name", name)
		return fmt.Errorf("failed to update %s config: %w", req.Channel, err)
	}
	logger.Info("UpdateNotificationConfig: ", "channel", req.Channel, "user_address", userAddress, "name", name)
	return nil
}

// DeleteNotificationConfig 删除配置
func (s *notificationService) DeleteNotificationConfig(ctx context.Context, userAddress string, req *types.DeleteNotificationRequest) error {
	name := strings.TrimSpace(req.Name)
	var err error
	switch req.Channel {
	case types.ChannelTelegram:
		err = s.repo.DeleteTelegramConfig(ctx, userAddress, name)
	case types.ChannelLark:
		err = s.repo.DeleteLarkConfig(ctx, userAddress, name)
	case types.ChannelFeishu:
		err = s.repo.DeleteFeishuConfig(ctx, userAddress, name)
	default:
		return ErrInvalidChannel
	}
	if notification.IsNotFound(err) {
		return ErrConfigNotFound
	}
	if err != nil {
		logger.Error("DeleteNotificationConfig Error: ", err, "channel", req.Channel, "user_address", userAddress, "name", name)
		return fmt.Errorf("failed to delete %s config: %w", req.Channel, err)
	}
	logger.Info("DeleteNotificationConfig: ", "channel", req.Channel, "user_address", userAddress, "name", name)
	return nil
}

// GetAllNotificationConfigs 获取所有通知配置
func (s *notificationService) GetAllNotificationConfigs(ctx context.Context, userAddress string) (*types.NotificationConfigListResponse, error) {
	response := &types.NotificationConfigListResponse{}

	telegramConfigs, err := s.repo.GetTelegramConfigsByUserAddress(ctx, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get telegram configs: %w", err)
	}
	response.TelegramConfigs = telegramConfigs

	larkConfigs, err := s.repo.GetLarkConfigsByUserAddress(ctx, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get lark configs: %w", err)
	}
	response.LarkConfigs = larkConfigs

	feishuConfigs, err := s.repo.GetFeishuConfigsByUserAddress(ctx, userAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get feishu configs: %w", err)
	}
	response.FeishuConfigs = feishuConfigs

	return response, nil
}

// GetNotificationLogs 获取发送日志
func (s *notificationService) GetNotificationLogs(ctx context.Context, userAddress string, limit int) ([]*types.NotificationLog, error) {
	return s.repo.GetNotificationLogs(ctx, userAddress, limit)
}
