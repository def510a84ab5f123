package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

var (
	// ErrInvalidToken 无效的令牌（签名不符或结构损坏）
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("token expired")
)

// Claims 会话令牌声明
//
// 绑定登录主体、解析后的角色名与（坐席登录时）密钥 ID。
// 令牌只签名不加密，不携带任何机密内容。
type Claims struct {
	UserID string          `json:"user_id"`
	Role   string          `json:"role"`
	Type   domain.UserType `json:"type"`
	KeyID  string          `json:"key_id,omitempty"`
	jwt.RegisteredClaims
}

// Manager 会话令牌签发与验证器
//
// 验证是无状态的：不回查密钥记录，密钥在令牌有效期内被暂停时
// 令牌仍然可用，暴露窗口由配置的有效期约束。
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewManager 创建令牌管理器，secret 与有效期由配置显式注入
func NewManager(secret, issuer string, expiry time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
	}
}

// Expiry 返回配置的令牌有效期
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

// Issue 为登录成功的主体签发令牌
//
// keyID 在管理员直登时为空；坐席登录时绑定认证通过的密钥。
func (m *Manager) Issue(userID, role string, userType domain.UserType, keyID string) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   userType,
		KeyID:  keyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify 验证令牌并返回声明
//
// 先验证签名完整性，再检查有效期。
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ExtractUserID 从令牌中提取用户 ID（不验证有效性，用于登出等宽松路径）
func (m *Manager) ExtractUserID(tokenString string) (string, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
