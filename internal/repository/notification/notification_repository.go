package notification

import (
	"context"
	"errors"

	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"

	"gorm.io/gorm"
)

// NotificationRepository 通知配置与发送日志仓库
type NotificationRepository interface {
	// Telegram配置
	CreateTelegramConfig(ctx context.Context, config *types.TelegramConfig) error
	GetTelegramConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.TelegramConfig, error)
	GetTelegramConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.TelegramConfig, error)
	UpdateTelegramConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error
	DeleteTelegramConfig(ctx context.Context, userAddress, name string) error

	// Lark配置
	CreateLarkConfig(ctx context.Context, config *types.LarkConfig) error
	GetLarkConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.LarkConfig, error)
	GetLarkConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.LarkConfig, error)
	UpdateLarkConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error
	DeleteLarkConfig(ctx context.Context, userAddress, name string) error

	// Feishu配置
	CreateFeishuConfig(ctx context.Context, config *types.FeishuConfig) error
	GetFeishuConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.FeishuConfig, error)
	GetFeishuConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.FeishuConfig, error)
	UpdateFeishuConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error
	DeleteFeishuConfig(ctx context.Context, userAddress, name string) error

	// 发送相关
	GetUserActiveNotificationConfigs(ctx context.Context, userAddress string) (*types.UserNotificationConfigs, error)
	CheckNotificationLogExists(ctx context.Context, channel types.NotificationChannel, configID uint, eventSequence uint64) (bool, error)
	CreateNotificationLog(ctx context.Context, log *types.NotificationLog) error
	GetNotificationLogs(ctx context.Context, userAddress string, limit int) ([]*types.NotificationLog, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// 三种通道的配置表结构一致，以下按模型类型复用查询

func listByUser[T any](ctx context.Context, db *gorm.DB, userAddress string, activeOnly bool) ([]*T, error) {
	var rows []*T
	q := db.WithContext(ctx).Where("user_address = ?", crypto.NormalizeAddress(userAddress))
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func getByName[T any](ctx context.Context, db *gorm.DB, userAddress, name string) (*T, error) {
	var row T
	err := db.WithContext(ctx).
		Where("user_address = ? AND name = ?", crypto.NormalizeAddress(userAddress), name).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func updateByName[T any](ctx context.Context, db *gorm.DB, userAddress, name string, updates map[string]interface{}) error {
	var model T
	result := db.WithContext(ctx).Model(&model).
		Where("user_address = ? AND name = ?", crypto.NormalizeAddress(userAddress), name).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func deleteByName[T any](ctx context.Context, db *gorm.DB, userAddress, name string) error {
	var model T
	result := db.WithContext(ctx).
		Where("user_address = ? AND name = ?", crypto.NormalizeAddress(userAddress), name).
		Delete(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ===== Telegram =====

// CreateTelegramConfig 创建Telegram配置
func (r *notificationRepository) CreateTelegramConfig(ctx context.Context, config *types.TelegramConfig) error {
	config.UserAddress = crypto.NormalizeAddress(config.UserAddress)
	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		logger.Error("CreateTelegramConfig Error: ", err, "user_address", config.UserAddress, "name", config.Name)
		return err
	}
	logger.Info("CreateTelegramConfig: ", "user_address", config.UserAddress, "name", config.Name)
	return nil
}

func (r *notificationRepository) GetTelegramConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.TelegramConfig, error) {
	return listByUser[types.TelegramConfig](ctx, r.db, userAddress, false)
}

func (r *notificationRepository) GetTelegramConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.TelegramConfig, error) {
	return getByName[types.TelegramConfig](ctx, r.db, userAddress, name)
}

func (r *notificationRepository) UpdateTelegramConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error {
	return updateByName[types.TelegramConfig](ctx, r.db, userAddress, name, updates)
}

func (r *notificationRepository) DeleteTelegramConfig(ctx context.Context, userAddress, name string) error {
	return deleteByName[types.TelegramConfig](ctx, r.db, userAddress, name)
}

// ===== Lark =====

// CreateLarkConfig 创建Lark配置
func (r *notificationRepository) CreateLarkConfig(ctx context.Context, config *types.LarkConfig) error {
	config.UserAddress = crypto.NormalizeAddress(config.UserAddress)
	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		logger.Error("CreateLarkConfig Error: ", err, "user_address", config.UserAddress, "name", config.Name)
		return err
	}
	logger.Info("CreateLarkConfig: ", "user_address", config.UserAddress, "name", config.Name)
	return nil
}

func (r *notificationRepository) GetLarkConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.LarkConfig, error) {
	return listByUser[types.LarkConfig](ctx, r.db, userAddress, false)
}

func (r *notificationRepository) GetLarkConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.LarkConfig, error) {
	return getByName[types.LarkConfig](ctx, r.db, userAddress, name)
}

func (r *notificationRepository) UpdateLarkConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error {
	return updateByName[types.LarkConfig](ctx, r.db, userAddress, name, updates)
}

func (r *notificationRepository) DeleteLarkConfig(ctx context.Context, userAddress, name string) error {
	return deleteByName[types.LarkConfig](ctx, r.db, userAddress, name)
}

// ===== Feishu =====

// CreateFeishuConfig 创建Feishu配置
func (r *notificationRepository) CreateFeishuConfig(ctx context.Context, config *types.FeishuConfig) error {
	config.UserAddress = crypto.NormalizeAddress(config.UserAddress)
	if err := r.db.WithContext(ctx).Create(config).Error; err != nil {
		logger.Error("CreateFeishuConfig Error: ", err, "user_address", config.UserAddress, "name", config.Name)
		return err
	}
	logger.Info("CreateFeishuConfig: ", "user_address", config.UserAddress, "name", config.Name)
	return nil
}

func (r *notificationRepository) GetFeishuConfigsByUserAddress(ctx context.Context, userAddress string) ([]*types.FeishuConfig, error) {
	return listByUser[types.FeishuConfig](ctx, r.db, userAddress, false)
}

func (r *notificationRepository) GetFeishuConfigByUserAddressAndName(ctx context.Context, userAddress, name string) (*types.FeishuConfig, error) {
	return getByName[types.FeishuConfig](ctx, r.db, userAddress, name)
}

func (r *notificationRepository) UpdateFeishuConfig(ctx context.Context, userAddress, name string, updates map[string]interface{}) error {
	return updateByName[types.FeishuConfig](ctx, r.db, userAddress, name, updates)
}

func (r *notificationRepository) DeleteFeishuConfig(ctx context.Context, userAddress, name string) error {
	return deleteByName[types.FeishuConfig](ctx, r.db, userAddress, name)
}

// GetUserActiveNotificationConfigs 获取用户全部启用的通知配置
func (r *notificationRepository) GetUserActiveNotificationConfigs(ctx context.Context, userAddress string) (*types.UserNotificationConfigs, error) {
	out := &types.UserNotificationConfigs{}
	var err error
	if out.TelegramConfigs, err = listByUser[types.TelegramConfig](ctx, r.db, userAddress, true); err != nil {
		logger.Error("GetUserActiveNotificationConfigs Error: ", err, "channel", types.ChannelTelegram, "user_address", userAddress)
		return nil, err
	}
	if out.LarkConfigs, err = listByUser[types.LarkConfig](ctx, r.db, userAddress, true); err != nil {
		logger.Error("GetUserActiveNotificationConfigs Error: ", err, "channel", types.ChannelLark, "user_address", userAddress)
		return nil, err
	}
	if out.FeishuConfigs, err = listByUser[types.FeishuConfig](ctx, r.db, userAddress, true); err != nil {
		logger.Error("GetUserActiveNotificationConfigs Error: ", err, "channel", types.ChannelFeishu, "user_address", userAddress)
		return nil, err
	}
	return out, nil
}

// CheckNotificationLogExists 同一配置对同一事件只成功发送一次
func (r *notificationRepository) CheckNotificationLogExists(ctx context.Context, channel types.NotificationChannel, configID uint, eventSequence uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&types.NotificationLog{}).
		Where("channel = ? AND config_id = ? AND event_sequence = ? AND send_status = ?", channel, configID, eventSequence, types.SendStatusSuccess).
		Count(&count).Error
	if err != nil {
		logger.Error("CheckNotificationLogExists Error: ", err, "channel", channel, "config_id", configID, "event_sequence", eventSequence)
		return false, err
	}
	return count > 0, nil
}

// CreateNotificationLog 记录发送日志
func (r *notificationRepository) CreateNotificationLog(ctx context.Context, log *types.NotificationLog) error {
	log.UserAddress = crypto.NormalizeAddress(log.UserAddress)
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		logger.Error("CreateNotificationLog Error: ", err, "channel", log.Channel, "event_sequence", log.EventSequence)
		return err
	}
	return nil
}

// GetNotificationLogs 获取用户最近的发送日志
func (r *notificationRepository) GetNotificationLogs(ctx context.Context, userAddress string, limit int) ([]*types.NotificationLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []*types.NotificationLog
	err := r.db.WithContext(ctx).
		Where("user_address = ?", crypto.NormalizeAddress(userAddress)).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		logger.Error("GetNotificationLogs Error: ", err, "user_address", userAddress)
		return nil, err
	}
	return logs, nil
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
