package token

import (
	"time"

	"carbroker/pkg/passhash"
)

// Manager wraps passhash.JWTManager for identity-svc. Claims map onto
// companies: UserID carries the company id, Username the company name, and
// Role the company type (AGENT/SOURCE/ADMIN).
type Manager struct {
	jwt *passhash.JWTManager
}

// Config carries the token settings.
type Config struct {
	SecretKey          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// NewManager creates a token manager.
func NewManager(cfg *Config) *Manager {
	jwtCfg := &passhash.JWTConfig{
		SecretKey:          cfg.SecretKey,
		AccessTokenExpiry:  cfg.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.RefreshTokenExpiry,
		Issuer:             cfg.Issuer,
	}

	return &Manager{
		jwt: passhash.NewJWTManager(jwtCfg),
	}
}

// GenerateTokenPair issues an access + refresh pair for a company.
func (m *Manager) GenerateTokenPair(companyID, name, companyType string) (accessToken, refreshToken string, expiresIn int64, err error) {
	accessToken, err = m.jwt.GenerateAccessToken(companyID, name, companyType)
	if err != nil {
		return "", "", 0, err
	}

	refreshToken, err = m.jwt.GenerateRefreshToken(companyID, name, companyType)
	if err != nil {
		return "", "", 0, err
	}

	expiresIn = m.jwt.GetAccessTokenExpiry()
	return accessToken, refreshToken, expiresIn, nil
}

// ValidateToken verifies a token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*passhash.Claims, error) {
	return m.jwt.ValidateToken(tokenString)
}

// RefreshAccessToken issues a new pair from a refresh token.
func (m *Manager) RefreshAccessToken(refreshToken string) (newAccessToken, newRefreshToken string, expiresIn int64, err error) {
	claims, err := m.jwt.ValidateToken(refreshToken)
	if err != nil {
		return "", "", 0, err
	}

	return m.GenerateTokenPair(claims.UserID, claims.Username, claims.Role)
}

// GetExpiresIn returns the access token lifetime in seconds.
func (m *Manager) GetExpiresIn() int64 {
	return m.jwt.GetAccessTokenExpiry()
}
