// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/loomcart/internal/model"
)

// SessionCookieName はベアラートークンを保持するHttpOnly Cookieの名前。
const SessionCookieName = "sb_jwt"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みの呼び出し元を格納するためのキー。
var principalContextKey = contextKey("principal")

// BearerToken はリクエストからベアラートークンを取り出す。
// AuthorizationヘッダーのBearerを優先し、Bearer以外のスキームや空のトークンは
// 無視してsb_jwt Cookieの値を使う。見つからない場合は空文字を返す。
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionCookieConfig はセッションCookieの設定。
type SessionCookieConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒。上限値として扱う
}

// SetSessionCookie はトークンをsb_jwt Cookieに設定する。
// expiresInが0より大きくMaxAge以下の場合はその値を、それ以外はMaxAgeを有効期間にする。
func SetSessionCookie(w http.ResponseWriter, token string, expiresIn int, config SessionCookieConfig) {
	maxAge := config.MaxAge
	if expiresIn > 0 && expiresIn <= config.MaxAge {
		maxAge = expiresIn
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie はsb_jwt Cookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ContextWithPrincipal はコンテキストに認証済みの呼び出し元を注入する。
// ロギングミドルウェア配下であれば、アクセスログにもユーザーIDを記録させる。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	if a := annotationsFrom(ctx); a != nil && p != nil {
		a.setPrincipal(p)
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext はリクエストコンテキストから認証済みの呼び出し元を取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	return p, ok && p != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証を通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	if p, ok := PrincipalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID, nil
	}
	if a := annotationsFrom(ctx); a != nil {
		if userID, _ := a.principal(); userID != "" {
			return userID, nil
		}
	}
	return "", fmt.Errorf("user ID not found in context")
}

// ContextWithUserID はコンテキストにユーザーIDのみを持つ呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &model.Principal{UserID: userID})
}
