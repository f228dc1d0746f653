package types

import (
	"time"
)

// User 用户模型，钱包地址即调用者身份
type User struct {
	ID            int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	WalletAddress string     `json:"wallet_address" gorm:"uniqueIndex;size:42;not null"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	LastLogin     *time.Time `json:"last_login"`
	Status        int        `json:"status" gorm:"default:1"`
}

// TableName 设置表名
func (User) TableName() string {
	return "users"
}

// NonceRequest 申请登录挑战
type NonceRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,len=42"`
}

// NonceResponse 登录挑战，客户端对Message原文签名
type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WalletConnectRequest 钱包连接请求，Message须为服务端签发的挑战原文
type WalletConnectRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,len=42"`
	Signature     string `json:"signature" binding:"required"`
	Message       string `json:"message" binding:"required"`
}

// WalletConnectResponse 钱包连接响应
type WalletConnectResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UserProfile 用户资料，附带治理身份
type UserProfile struct {
	WalletAddress string     `json:"wallet_address"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login"`
	Role          AdminRole  `json:"role"`
	RoleName      string     `json:"role_name"`
	IsAdmin       bool       `json:"is_admin"`
}

// JWTClaims JWT声明
type JWTClaims struct {
	UserID        int64  `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Type          string `json:"type"` // access or refresh
}
