// Package auth provides JWT-based authentication for the dashboard API.
// A single admin account is configured with a bcrypt password hash.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"etf-reversion-bot/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates access tokens
type Service struct {
	secret        []byte
	adminUser     string
	adminPassHash string
	tokenDuration time.Duration
}

func NewService(cfg config.AuthConfig) *Service {
	duration := cfg.AccessTokenDuration
	if duration <= 0 {
		duration = 12 * time.Hour
	}
	return &Service{
		secret:        []byte(cfg.JWTSecret),
		adminUser:     cfg.AdminUser,
		adminPassHash: cfg.AdminPasswordHash,
		tokenDuration: duration,
	}
}

// Login verifies the credentials and issues an access token
func (s *Service) Login(username, password string) (string, error) {
	if username != s.adminUser {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminPassHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.generateToken(username)
}

func (s *Service) generateToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "etf-reversion-bot",
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks an access token and returns the username
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

// TokenDuration returns the access token lifetime in seconds
func (s *Service) TokenDuration() int64 {
	return int64(s.tokenDuration.Seconds())
}

// HashPassword produces the bcrypt hash used in configuration
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
