package types

import (
	"time"
)

// NotificationChannel 通知通道类型
type NotificationChannel string

const (
	ChannelTelegram NotificationChannel = "telegram"
	ChannelLark     NotificationChannel = "lark"
	ChannelFeishu   NotificationChannel = "feishu"
	ChannelEmail    NotificationChannel = "email"
)

// 发送状态
const (
	SendStatusSuccess = "success"
	SendStatusFailed  = "failed"
)

// TelegramConfig Telegram通知配置
type TelegramConfig struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserAddress string    `json:"user_address" gorm:"not null;index;size:42"`
	Name        string    `json:"name" gorm:"size:100"`
	BotToken    string    `json:"bot_token" gorm:"not null;size:500"`
	ChatID      string    `json:"chat_id" gorm:"not null;size:100"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TelegramConfig) TableName() string {
	return "telegram_configs"
}

// LarkConfig Lark通知配置
type LarkConfig struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserAddress string    `json:"user_address" gorm:"not null;index;size:42"`
	Name        string    `json:"name" gorm:"size:100"`
	WebhookURL  string    `json:"webhook_url" gorm:"not null;size:1000"`
	Secret      string    `json:"secret" gorm:"size:500"` // 签名校验密钥
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (LarkConfig) TableName() string {
	return "lark_configs"
}

// FeishuConfig Feishu通知配置
type FeishuConfig struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserAddress string    `json:"user_address" gorm:"not null;index;size:42"`
	Name        string    `json:"name" gorm:"size:100"`
	WebhookURL  string    `json:"webhook_url" gorm:"not null;size:1000"`
	Secret      string    `json:"secret" gorm:"size:500"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FeishuConfig) TableName() string {
	return "feishu_configs"
}

// NotificationLog 通知发送日志，按(通道,配置,事件序号)去重
type NotificationLog struct {
	ID            uint                `json:"id" gorm:"primaryKey"`
	UserAddress   string              `json:"user_address" gorm:"not null;index;size:42"`
	Channel       NotificationChannel `json:"channel" gorm:"not null;size:20"`
	ConfigID      uint                `json:"config_id" gorm:"not null"`
	Recipient     string              `json:"recipient" gorm:"size:200"` // 邮件收件人
	EventSequence uint64              `json:"event_sequence" gorm:"not null;index"`
	EventType     EventType           `json:"event_type" gorm:"not null;size:40"`
	ActionID      uint64              `json:"action_id"`
	Subject       string              `json:"subject" gorm:"size:42"`
	SendStatus    string              `json:"send_status" gorm:"not null;size:20"`
	ErrorMessage  string              `json:"error_message" gorm:"type:text"`
	SentAt        time.Time           `json:"sent_at"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}

// CreateNotificationRequest 创建通知配置请求
type CreateNotificationRequest struct {
	Channel    NotificationChannel `json:"channel" binding:"required"`
	Name       string              `json:"name" binding:"required"`
	BotToken   string              `json:"bot_token"`
	ChatID     string              `json:"chat_id"`
	WebhookURL string              `json:"webhook_url"`
	Secret     string              `json:"secret"`
}

// UpdateNotificationRequest 更新通知配置请求
type UpdateNotificationRequest struct {
	Channel    NotificationChannel `json:"channel" binding:"required"`
	Name       *string             `json:"name"`
	BotToken   *string             `json:"bot_token"`
	ChatID     *string             `json:"chat_id"`
	WebhookURL *string             `json:"webhook_url"`
	Secret     *string             `json:"secret"`
	IsActive   *bool               `json:"is_active"`
}

// DeleteNotificationRequest 删除通知配置请求
type DeleteNotificationRequest struct {
	Channel NotificationChannel `json:"channel" binding:"required"`
	Name    string              `json:"name" binding:"required"`
}

// UserNotificationConfigs 用户通知配置集合
type UserNotificationConfigs struct {
	TelegramConfigs []*TelegramConfig `json:"telegram_configs"`
	LarkConfigs     []*LarkConfig     `json:"lark_configs"`
	FeishuConfigs   []*FeishuConfig   `json:"feishu_configs"`
}

// NotificationConfigListResponse 通知配置列表响应
type NotificationConfigListResponse struct {
	TelegramConfigs []*TelegramConfig `json:"telegram_configs"`
	LarkConfigs     []*LarkConfig     `json:"lark_configs"`
	FeishuConfigs   []*FeishuConfig   `json:"feishu_configs"`
}
