package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/loomcart/internal/model"
)

var (
	// ErrUnauthorized はトークンが無い、またはIDプロバイダーに拒否された場合に返される。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden は認証済みだが管理者ロールを持たない場合に返される。
	// ロール問い合わせの失敗もこちらに分類する。
	ErrForbidden = errors.New("forbidden")
)

// RoleFinder はロール行の存在を確認する。
// repository.UserRoleRepositoryの部分集合として定義する。
type RoleFinder interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// Authenticator はベアラートークンから呼び出し元を解決する。
type Authenticator struct {
	idp   IdentityProvider
	roles RoleFinder
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(idp IdentityProvider, roles RoleFinder) *Authenticator {
	return &Authenticator{idp: idp, roles: roles}
}

// Authenticate はトークンを検証し、ロール判定なしの呼び出し元を返す。
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("no bearer token: %w", ErrUnauthorized)
	}

	user, err := a.idp.ValidateToken(ctx, token)
	if err != nil {
		// プロバイダー障害もトークン不正と同じく401として扱う
		if !errors.Is(err, ErrInvalidToken) {
			slog.Warn("identity provider error",
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("token validation failed: %w", ErrUnauthorized)
	}

	return &model.Principal{UserID: user.ID, Email: user.Email}, nil
}

// RequireAdmin はトークンを検証し、(userID, "admin") のロール行を確認する。
// ロールは毎回問い合わせ、キャッシュしない。
func (a *Authenticator) RequireAdmin(ctx context.Context, token string) (*model.Principal, error) {
	p, err := a.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	ok, err := a.roles.HasRole(ctx, p.UserID, model.RoleAdmin)
	if err != nil {
		slog.Error("failed to check admin role",
			slog.String("user_id", p.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("role lookup failed: %w", ErrForbidden)
	}
	if !ok {
		return nil, fmt.Errorf("user %s is not admin: %w", p.UserID, ErrForbidden)
	}

	p.IsAdmin = true
	return p, nil
}
