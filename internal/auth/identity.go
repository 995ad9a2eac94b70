// Package auth はベアラートークンの検証と管理者ロールの解決を提供する。
package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/loomcart/internal/model"
)

// ErrInvalidToken はIDプロバイダーがトークンを拒否した場合に返される。
var ErrInvalidToken = errors.New("invalid token")

// IdentityProvider はベアラートークンを検証し、ユーザーを返す外部サービスの抽象化。
// 無効・期限切れのトークンはErrInvalidTokenをラップして返す。
type IdentityProvider interface {
	ValidateToken(ctx context.Context, token string) (*model.AuthUser, error)
}
