package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"governance-backend/internal/repository/nonce"
	"governance-backend/internal/repository/user"
	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"
	"governance-backend/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const (
	DefaultDomain   = "governance-backend"
	DefaultNonceTTL = 5 * time.Minute
)

var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUserDisabled      = errors.New("user account is disabled")
	ErrSignatureRecovery = errors.New("failed to recover address from signature")
	ErrInvalidChallenge  = errors.New("invalid sign-in message")
	ErrNonceUsed         = errors.New("login nonce is unknown, expired or already used")
)

// RoleReader 读取调用者的治理角色
type RoleReader interface {
	GetAdminRole(addr common.Address) types.AdminRole
	IsAdmin(addr common.Address) bool
}

// Service 认证服务接口
type Service interface {
	IssueChallenge(ctx context.Context, req *types.NonceRequest) (*types.NonceResponse, error)
	WalletConnect(ctx context.Context, req *types.WalletConnectRequest) (*types.WalletConnectResponse, error)
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.WalletConnectResponse, error)
	GetProfile(ctx context.Context, userID int64) (*types.UserProfile, error)
	VerifyToken(ctx context.Context, tokenString string) (*types.JWTClaims, error)
}

// Option 认证服务选项
type Option func(*service)

// WithDomain 签名消息绑定的域名
func WithDomain(domain string) Option {
	return func(s *service) {
		if domain != "" {
			s.domain = domain
		}
	}
}

// WithNonceTTL 挑战有效期
func WithNonceTTL(ttl time.Duration) Option {
	return func(s *service) {
		if ttl > 0 {
			s.nonceTTL = ttl
		}
	}
}

// WithClock 注入时钟
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		s.clock = clock
	}
}

type service struct {
	userRepo   user.Repository
	nonceRepo  nonce.Repository
	jwtManager *utils.JWTManager
	roles      RoleReader
	domain     string
	nonceTTL   time.Duration
	clock      func() time.Time
}

func NewService(userRepo user.Repository, nonceRepo nonce.Repository, jwtManager *utils.JWTManager, roles RoleReader, opts ...Option) Service {
	s := &service{
		userRepo:   userRepo,
		nonceRepo:  nonceRepo,
		jwtManager: jwtManager,
		roles:      roles,
		domain:     DefaultDomain,
		nonceTTL:   DefaultNonceTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge 签发一次性登录挑战
func (s *service) IssueChallenge(ctx context.Context, req *types.NonceRequest) (*types.NonceResponse, error) {
	if !crypto.ValidateEthereumAddress(req.WalletAddress) {
		logger.Error("IssueChallenge Error: ", ErrInvalidAddress, "wallet_address", req.WalletAddress)
		return nil, ErrInvalidAddress
	}
	now := s.clock()
	c := challenge{
		domain:    s.domain,
		address:   common.HexToAddress(req.WalletAddress).Hex(),
		nonce:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		issuedAt:  now,
		expiresAt: now.Add(s.nonceTTL),
	}
	message := c.String()
	if err := s.nonceRepo.Save(ctx, crypto.NormalizeAddress(req.WalletAddress), c.nonce, message, s.nonceTTL); err != nil {
		logger.Error("IssueChallenge Error: ", err, "wallet_address", req.WalletAddress)
		return nil, err
	}
	return &types.NonceResponse{
		Nonce:     c.nonce,
		Message:   message,
		ExpiresAt: c.expiresAt.UTC().Truncate(time.Second),
	}, nil
}

// WalletConnect 钱包签名登录
// 1. 校验地址格式
// 2. 校验挑战的域名、地址与有效期
// 3. 校验EIP-191签名
// 4. 消费nonce，消息须与签发原文一致
// 5. 查找或创建用户
// 6. 签发JWT
func (s *service) WalletConnect(ctx context.Context, req *types.WalletConnectRequest) (*types.WalletConnectResponse, error) {
	if !crypto.ValidateEthereumAddress(req.WalletAddress) {
		logger.Error("WalletConnect Error: ", ErrInvalidAddress, "wallet_address", req.WalletAddress)
		return nil, ErrInvalidAddress
	}
	normalizedAddress := crypto.NormalizeAddress(req.WalletAddress)

	c, err := parseChallenge(req.Message)
	if err != nil {
		logger.Error("WalletConnect Error: ", err, "wallet_address", normalizedAddress)
		return nil, err
	}
	switch {
	case c.domain != s.domain:
		logger.Error("WalletConnect Error: ", ErrInvalidChallenge, "domain", c.domain)
		return nil, fmt.Errorf("%w: domain %s is not accepted", ErrInvalidChallenge, c.domain)
	case crypto.NormalizeAddress(c.address) != normalizedAddress:
		logger.Error("WalletConnect Error: ", ErrInvalidChallenge, "wallet_address", normalizedAddress)
		return nil, fmt.Errorf("%w: message is for another address", ErrInvalidChallenge)
	case !s.clock().Before(c.expiresAt):
		logger.Error("WalletConnect Error: ", ErrNonceUsed, "wallet_address", normalizedAddress)
		return nil, ErrNonceUsed
	}

	if err := crypto.VerifySignature(req.Message, req.Signature, normalizedAddress); err != nil {
		if errors.Is(err, crypto.ErrSignatureMismatch) {
			logger.Error("WalletConnect Error: ", ErrInvalidSignature, "wallet_address", normalizedAddress)
			return nil, fmt.Errorf("%w: signature does not match wallet address", ErrInvalidSignature)
		}
		logger.Error("WalletConnect Error: ", ErrSignatureRecovery, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSignatureRecovery, err)
	}

	issued, err := s.nonceRepo.Consume(ctx, normalizedAddress, c.nonce)
	if errors.Is(err, nonce.ErrNonceNotFound) {
		logger.Error("WalletConnect Error: ", ErrNonceUsed, "wallet_address", normalizedAddress)
		return nil, ErrNonceUsed
	}
	if err != nil {
		logger.Error("WalletConnect Error: ", err, "wallet_address", normalizedAddress)
		return nil, err
	}
	if issued != req.Message {
		logger.Error("WalletConnect Error: ", ErrInvalidChallenge, "wallet_address", normalizedAddress)
		return nil, fmt.Errorf("%w: message differs from issued challenge", ErrInvalidChallenge)
	}

	currentUser, err := s.userRepo.GetUserByWallet(ctx, normalizedAddress)
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		currentUser = &types.User{
			WalletAddress: normalizedAddress,
			Status:        1, // 1: 正常 0: 禁用
		}
		if err := s.userRepo.CreateUser(ctx, currentUser); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		logger.Info("WalletConnect: created new user", "wallet_address", normalizedAddress, "user_id", currentUser.ID)
	case err != nil:
		logger.Error("WalletConnect Error: ", errors.New("database error"), "error", err)
		return nil, fmt.Errorf("database error: %w", err)
	default:
		if currentUser.Status != 1 {
			logger.Error("WalletConnect Error: ", ErrUserDisabled, "wallet_address", normalizedAddress)
			return nil, ErrUserDisabled
		}
		if err := s.userRepo.UpdateLastLogin(ctx, normalizedAddress); err != nil {
			// 登录时间更新失败不阻止认证
			logger.Error("WalletConnect Error: ", errors.New("failed to update last login"), "error", err)
		}
	}

	accessToken, refreshToken, expiresAt, err := s.jwtManager.GenerateTokens(currentUser.ID, currentUser.WalletAddress)
	if err != nil {
		logger.Error("WalletConnect Error: ", errors.New("failed to generate jwt tokens"), "error", err)
		return nil, fmt.Errorf("failed to generate jwt tokens: %w", err)
	}

	logger.Info("WalletConnect: ", "wallet_address", currentUser.WalletAddress, "user_id", currentUser.ID)
	return &types.WalletConnectResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         *currentUser,
	}, nil
}

// RefreshToken 刷新访问令牌
func (s *service) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.WalletConnectResponse, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		logger.Error("RefreshToken Error: ", errors.New("failed to verify refresh token"), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		logger.Error("RefreshToken Error: ", err, "user_id", claims.UserID)
		return nil, err
	}

	accessToken, refreshToken, expiresAt, err := s.jwtManager.GenerateTokens(u.ID, u.WalletAddress)
	if err != nil {
		logger.Error("RefreshToken Error: ", errors.New("failed to generate jwt tokens"), "error", err)
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	logger.Info("RefreshToken: ", "wallet_address", u.WalletAddress)
	return &types.WalletConnectResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         *u,
	}, nil
}

// GetProfile 获取用户资料及其治理角色
func (s *service) GetProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("GetProfile Error: ", errors.New("database error"), "error", err)
		return nil, fmt.Errorf("database error: %w", err)
	}

	profile := &types.UserProfile{
		WalletAddress: u.WalletAddress,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
		Role:          types.RoleNone,
		RoleName:      types.RoleNone.String(),
	}
	if s.roles != nil {
		addr := common.HexToAddress(u.WalletAddress)
		profile.Role = s.roles.GetAdminRole(addr)
		profile.RoleName = profile.Role.String()
		profile.IsAdmin = s.roles.IsAdmin(addr)
	}
	logger.Info("GetProfile: ", "wallet_address", u.WalletAddress, "role", profile.RoleName)
	return profile, nil
}

// VerifyToken 校验访问令牌，并确认用户仍然有效
func (s *service) VerifyToken(ctx context.Context, tokenString string) (*types.JWTClaims, error) {
	claims, err := s.jwtManager.VerifyAccessToken(tokenString)
	if err != nil {
		logger.Error("VerifyToken Error: ", errors.New("failed to verify access token"), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		logger.Error("VerifyToken Error: ", err, "user_id", claims.UserID)
		return nil, err
	}
	return claims, nil
}

func (s *service) activeUser(ctx context.Context, userID int64) (*types.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if u.Status != 1 {
		return nil, ErrUserDisabled
	}
	return u, nil
}
