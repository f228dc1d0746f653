package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"gorm.io/gorm"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

type Repository interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByWallet(ctx context.Context, walletAddress string) (*types.User, error)
	GetUserByID(ctx context.Context, id int64) (*types.User, error)
	UpdateLastLogin(ctx context.Context, walletAddress string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// CreateUser 创建新用户，地址统一小写存储
func (r *repository) CreateUser(ctx context.Context, user *types.User) error {
	user.WalletAddress = strings.ToLower(user.WalletAddress)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		logger.Error("CreateUser Error: ", err, "wallet_address", user.WalletAddress)
		return err
	}
	logger.Info("CreateUser: ", "user_id", user.ID, "wallet_address", user.WalletAddress)
	return nil
}

// GetUserByWallet 根据钱包地址获取用户
func (r *repository) GetUserByWallet(ctx context.Context, walletAddress string) (*types.User, error) {
	var user types.User
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", strings.ToLower(walletAddress)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("GetUserByWallet Error: ", err, "wallet_address", walletAddress)
		return nil, err
	}
	return &user, nil
}

// GetUserByID 根据ID获取用户
func (r *repository) GetUserByID(ctx context.Context, id int64) (*types.User, error) {
	var user types.User
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("GetUserByID Error: ", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin 更新用户最后登录时间
func (r *repository) UpdateLastLogin(ctx context.Context, walletAddress string) error {
	now := time.Now()
	logger.Info("UpdateLastLogin: ", "wallet_address", walletAddress, "last_login", now)
	return r.db.WithContext(ctx).
		Model(&types.User{}).
		Where("wallet_address = ?", strings.ToLower(walletAddress)).
		Update("last_login", &now).Error
}
