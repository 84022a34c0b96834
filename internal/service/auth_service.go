package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

// OperatorCapabilities is what an operator holds when the token names none.
var OperatorCapabilities = []models.Capability{models.CapabilitySyncAvailability, models.CapabilityViewBookings}

// AuthConfig defines operator authentication settings.
type AuthConfig struct {
	Secret       string
	Issuer       string
	TokenExpiry  time.Duration
	KeyHashes    []string
	SystemUserID string
}

// AuthService authenticates operators by bearer token or static key.
type AuthService struct {
	config AuthConfig
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(config AuthConfig) *AuthService {
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = 12 * time.Hour
	}
	if config.SystemUserID == "" {
		config.SystemUserID = "system"
	}
	return &AuthService{config: config, now: time.Now}
}

// ValidateToken parses an HS256 operator token into a principal.
func (s *AuthService) ValidateToken(tokenString string) (*models.Principal, error) {
	if s.config.Secret == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "operator tokens are disabled")
	}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.OperatorClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role != models.OperatorRole {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "operator role required")
	}

	caps := claims.Capabilities
	if len(caps) == 0 {
		caps = OperatorCapabilities
	}
	return &models.Principal{ID: claims.Subject, Kind: models.PrincipalOperator, Capabilities: caps}, nil
}

// IssueToken signs an operator token for subject.
func (s *AuthService) IssueToken(subject string, caps ...models.Capability) (string, time.Time, error) {
	if s.config.Secret == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "operator token secret not configured")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.TokenExpiry)
	claims := &models.OperatorClaims{
		Role:         models.OperatorRole,
		Capabilities: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateKey matches a static operator key against the configured hashes.
func (s *AuthService) ValidateKey(key string) (*models.Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, appErrors.ErrUnauthorized
	}
	for i, hash := range s.config.KeyHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return &models.Principal{
				ID:           fmt.Sprintf("operator-key-%d", i+1),
				Kind:         models.PrincipalOperator,
				Capabilities: OperatorCapabilities,
			}, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid operator key")
}

// SystemPrincipal is the identity of scheduled jobs.
func (s *AuthService) SystemPrincipal() *models.Principal {
	return &models.Principal{
		ID:           s.config.SystemUserID,
		Kind:         models.PrincipalSystem,
		Capabilities: []models.Capability{models.CapabilitySyncAvailability},
	}
}

// CapabilityAuthorizer gates operator commands on principal capabilities.
type CapabilityAuthorizer struct{}

// Authorize fails unless p holds capability c.
func (CapabilityAuthorizer) Authorize(p *models.Principal, c models.Capability) error {
	if p == nil {
		return appErrors.ErrUnauthorized
	}
	if !p.Can(c) {
		return appErrors.Clone(appErrors.ErrForbidden, "missing capability "+string(c))
	}
	return nil
}
