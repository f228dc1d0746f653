package utils

import (
	"errors"
	"fmt"
	"time"

	"governance-backend/internal/types"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrTokenType = errors.New("unexpected token type")

// JWTManager JWT管理器
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

type claims struct {
	UserID        int64  `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Type          string `json:"type"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
}

// GenerateTokens 生成访问令牌和刷新令牌
func (m *JWTManager) GenerateTokens(userID int64, walletAddress string) (string, string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessExpiry)

	accessToken, err := m.sign(userID, walletAddress, tokenTypeAccess, now, expiresAt)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refreshToken, err := m.sign(userID, walletAddress, tokenTypeRefresh, now, now.Add(m.refreshExpiry))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return accessToken, refreshToken, expiresAt, nil
}

func (m *JWTManager) sign(userID int64, walletAddress, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	c := claims{
		UserID:        userID,
		WalletAddress: walletAddress,
		Type:          tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   walletAddress,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken 校验访问令牌
func (m *JWTManager) VerifyAccessToken(tokenString string) (*types.JWTClaims, error) {
	return m.verify(tokenString, tokenTypeAccess)
}

// VerifyRefreshToken 校验刷新令牌
func (m *JWTManager) VerifyRefreshToken(tokenString string) (*types.JWTClaims, error) {
	return m.verify(tokenString, tokenTypeRefresh)
}

func (m *JWTManager) verify(tokenString, expectedType string) (*types.JWTClaims, error) {
	parsed := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if parsed.Type != expectedType {
		return nil, ErrTokenType
	}
	return &types.JWTClaims{
		UserID:        parsed.UserID,
		WalletAddress: parsed.WalletAddress,
		Type:          parsed.Type,
	}, nil
}
