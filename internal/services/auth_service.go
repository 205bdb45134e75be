package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/satonic/roomtrade/internal/config"
)

// Claims represents the JWT claims of a widget session
type Claims struct {
	SessionID string `json:"session_id"`
	Wallet    string `json:"wallet"`
	jwt.RegisteredClaims
}

// AuthService issues and validates session tokens
type AuthService struct {
	cfg config.AuthConfig
	now func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg: cfg,
		now: time.Now,
	}
}

// IssueToken generates a token bound to a session and its local wallet
func (s *AuthService) IssueToken(sessionID, wallet string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(time.Duration(s.cfg.JWTExpiration) * time.Hour)

	claims := &Claims{
		SessionID: sessionID,
		Wallet:    wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "roomtrade",
			Subject:   wallet,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(s.cfg.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("token has no session")
	}

	return claims, nil
}
