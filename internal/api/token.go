package api

import (
	"errors"
	"fmt"
	"smartbank/internal/domain"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// Claims carries the verified caller identity in an access token.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
}

func NewTokenService(signingKey, issuer string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

func (s *TokenService) Issue(identity domain.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: identity.UserID,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) Validate(tokenString string) (domain.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, fmt.Errorf("%w: token has expired", ErrUnauthorized)
		}
		return domain.Identity{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	switch claims.Role {
	case domain.RoleCustomer, domain.RoleAdmin, domain.RoleAuditor:
	default:
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}

	return domain.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
