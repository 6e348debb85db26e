package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

// Claims defines the structured data the server stores in the JWT
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	jwt.RegisteredClaims
}

// StaticTokenSource serves a fixed access token, typically obtained at
// login and held for the session's lifetime.
type StaticTokenSource struct {
	token string
}

var _ ports.CredentialSource = (*StaticTokenSource)(nil)

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", apperrors.ErrInvalidCredential
	}
	return s.token, nil
}

// Inspect decodes the token's claims without verifying the signature. The
// client never holds the signing secret; verification is the server's job.
func Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate reports whether the credential exists and has not expired. An
// error here is fatal for the connection retry loop: reconnecting with a
// dead token would fail forever.
func Validate(tokenString string) error {
	if tokenString == "" {
		return apperrors.ErrInvalidCredential
	}

	claims, err := Inspect(tokenString)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidCredential, err)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return fmt.Errorf("%w: token expired at %s", apperrors.ErrInvalidCredential, claims.ExpiresAt.Format(time.RFC3339))
	}

	return nil
}
