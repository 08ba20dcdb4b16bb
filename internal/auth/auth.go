package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken covers malformed, tampered and mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for otherwise valid but expired tokens
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidCredentials is returned for any login failure, without
	// distinguishing unknown users from wrong passwords
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Roles known to the API
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Claims carried by access tokens
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is one configured login
type Principal struct {
	Username string
	Password string // bcrypt hash or plaintext
	Role     string
}

// Service issues and validates access tokens for the configured principals
type Service struct {
	secret     []byte
	expiry     time.Duration
	principals []Principal
}

// NewService creates the auth service. Principals with an empty username
// or password are disabled and dropped.
func NewService(secret string, expiry time.Duration, principals []Principal) *Service {
	active := make([]Principal, 0, len(principals))
	for _, p := range principals {
		if p.Username != "" && p.Password != "" {
			active = append(active, p)
		}
	}

	return &Service{
		secret:     []byte(secret),
		expiry:     expiry,
		principals: active,
	}
}

// Authenticate checks credentials and returns the matching principal
func (s *Service) Authenticate(username, password string) (*Principal, error) {
	for i := range s.principals {
		p := &s.principals[i]
		if p.Username != username {
			continue
		}
		if verifyPassword(p.Password, password) {
			return p, nil
		}
		break
	}
	return nil, ErrInvalidCredentials
}

// verifyPassword compares against a bcrypt hash when the stored value looks
// like one, otherwise against the plaintext in constant time.
func verifyPassword(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

// GenerateToken signs an access token for the principal
func (s *Service) GenerateToken(p *Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and verifies an access token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
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
