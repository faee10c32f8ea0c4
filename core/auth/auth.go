package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 会话令牌：创建游戏时发给主持端，加入游戏时发给玩家端。
// 令牌把连接钉死在一局游戏和一个身份上，玩家只能写自己的作答。

// 角色常量
const (
	RoleHost   = "host"
	RolePlayer = "player"
)

var jwtSecret []byte

// tokenTTL 令牌有效期。一局游戏最长也就个把小时。
const tokenTTL = 12 * time.Hour

// SetSecret 设置签名密钥，应在服务启动时调用一次
func SetSecret(secret string) {
	jwtSecret = []byte(secret)
}

// Claims 会话令牌声明
type Claims struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId,omitempty"` // 主持端为空
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT token bound to a game and identity.
func GenerateToken(gameID, playerID, role string) (string, error) {
	claims := &Claims{
		GameID:   gameID,
		PlayerID: playerID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken parses and validates a JWT token.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
