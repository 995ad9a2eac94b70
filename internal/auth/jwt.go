package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/loomcart/internal/model"
)

// authenticatedRole はログイン済みユーザーのトークンに含まれるroleクレーム。
const authenticatedRole = "authenticated"

// sessionClaims はセッショントークンのクレーム。
type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTIdentityProvider は共有シークレット(HS256)でトークンをローカル検証する。
// Auth APIへの往復を省略したい場合に使う。
type JWTIdentityProvider struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTIdentityProvider はJWTIdentityProviderを生成する。
func NewJWTIdentityProvider(secret string) *JWTIdentityProvider {
	return &JWTIdentityProvider{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// ValidateToken は署名と有効期限を検証し、subをユーザーIDとして返す。
func (p *JWTIdentityProvider) ValidateToken(_ context.Context, token string) (*model.AuthUser, error) {
	claims := &sessionClaims{}
	parsed, err := p.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("failed to verify token: %v: %w", err, ErrInvalidToken)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", ErrInvalidToken)
	}
	if claims.Role != authenticatedRole {
		return nil, fmt.Errorf("token role %q is not %q: %w", claims.Role, authenticatedRole, ErrInvalidToken)
	}

	return &model.AuthUser{ID: claims.Subject, Email: claims.Email}, nil
}

// compile-time interface check
var _ IdentityProvider = (*JWTIdentityProvider)(nil)
