// Package token issues and validates the bearer tokens members authenticate
// with. Tokens are HS256 JWTs carrying the principal as a claim.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// Claims are the JWT claims for covault access tokens.
type Claims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     "covault",
		audience:   "covault-api",
	}
}

// Generate mints a token for a principal.
func (s *Service) Generate(principal id.Principal, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Principal: principal.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

// Validate parses a token and returns the principal it was minted for.
func (s *Service) Validate(tokenString string) (id.Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	principal, err := id.ParsePrincipal(claims.Principal)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid principal claim")
	}
	return principal, nil
}
