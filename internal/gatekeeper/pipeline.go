// Package gatekeeper は管理APIに共通するガードの順序付き実行を提供する。
//
// 変更系の管理操作は、必ず次の順序でガードを通過してから実行される。
//
//	メソッド確認 → CSRF検証 → レート制限 → 認証 → ロール確認 → 入力検証 → 変更 → 200
//
// いずれかのガードで拒否された場合、以降のガードと変更処理は呼ばれない。
// データ層はサービスロール権限で接続されるため、このパイプラインが認可境界のすべてとなる。
package gatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loomcart/internal/auth"
	"github.com/hitoshi/loomcart/internal/middleware"
	"github.com/hitoshi/loomcart/internal/model"
)

// 拒否理由（メトリクスのラベル値）
const (
	ReasonMethod       = "method"
	ReasonCSRF         = "csrf"
	ReasonRateLimit    = "rate_limit"
	ReasonUnavailable  = "limiter_unavailable"
	ReasonUnauthorized = "unauthorized"
	ReasonForbidden    = "forbidden"
	ReasonInvalidInput = "invalid_input"
)

// AdminAuthenticator は管理者の呼び出し元を解決する。auth.Authenticatorが実装する。
type AdminAuthenticator interface {
	RequireAdmin(ctx context.Context, token string) (*model.Principal, error)
}

// Recorder はガードの拒否とレート制限の判定を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordGuardRejection(endpoint, reason string)
	RecordRateLimit(outcome string)
}

// Config はPipelineの依存関係。
type Config struct {
	Limiter  middleware.Limiter
	Policy   middleware.RateLimitPolicy
	Auth     AdminAuthenticator
	Recorder Recorder
}

// Pipeline は管理APIのガードを順序通りに実行するハンドラーを組み立てる。
type Pipeline struct {
	limiter  middleware.Limiter
	policy   middleware.RateLimitPolicy
	auth     AdminAuthenticator
	recorder Recorder
}

// New はPipelineを生成する。
func New(cfg Config) *Pipeline {
	return &Pipeline{
		limiter:  cfg.Limiter,
		policy:   cfg.Policy,
		auth:     cfg.Auth,
		recorder: cfg.Recorder,
	}
}

// Mutation は1つの管理操作の入力スキーマと変更処理。
// Decodeのエラーは400、ApplyのエラーはAPIErrorならそのコード、それ以外は500になる。
type Mutation[T any] struct {
	Decode func(r *http.Request) (T, error)
	Apply  func(ctx context.Context, principal *model.Principal, input T) (any, error)
}

// Mutating は変更系の管理操作のハンドラーを返す。
// Goのメソッドは型パラメータを持てないため関数として定義する。
func Mutating[T any](p *Pipeline, endpoint string, m Mutation[T]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. メソッド確認
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			p.reject(w, r, endpoint, ReasonMethod, model.NewMethodNotAllowedError(r.Method))
			return
		}

		// 2. CSRF検証
		if !middleware.VerifyCSRF(middleware.CSRFTokensFromRequest(r)) {
			slog.Warn("CSRF validation failed",
				slog.String("endpoint", endpoint),
			)
			p.reject(w, r, endpoint, ReasonCSRF, model.NewCSRFFailedError())
			return
		}

		// 3. レート制限
		key := middleware.ClientIP(r)
		result, outcome := middleware.ApplyRateLimit(r.Context(), p.limiter, p.policy, key)
		p.recordRateLimit(outcome)
		if middleware.WriteRateLimitOutcome(w, result, outcome) {
			reason := ReasonRateLimit
			if outcome == middleware.RateLimitUnavailable {
				reason = ReasonUnavailable
			}
			p.recordRejection(endpoint, reason)
			middleware.AnnotateRejection(r.Context(), reason)
			slog.Warn("admin request rate limited",
				slog.String("endpoint", endpoint),
				slog.String("client", key),
			)
			return
		}

		// 4-5. 認証・ロール確認
		principal, ok := p.authorize(w, r, endpoint)
		if !ok {
			return
		}
		ctx := middleware.ContextWithPrincipal(r.Context(), principal)
		r = r.WithContext(ctx)

		// 6. 入力検証
		input, err := m.Decode(r)
		if err != nil {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				apiErr = model.NewBadRequestError(err.Error())
			}
			p.reject(w, r, endpoint, ReasonInvalidInput, apiErr)
			return
		}

		// 7. 変更（監査ログは各サービスがベストエフォートで書き込む）
		resp, err := m.Apply(ctx, principal, input)
		if err != nil {
			writeApplyError(w, endpoint, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, resp)
	})
}

// ReadOnly は参照系の管理操作のハンドラーを返す。
// GET/POSTを受け付け、CSRF検証とレート制限は行わないが、管理者であることは必須とする。
func (p *Pipeline) ReadOnly(endpoint string, fn func(ctx context.Context, principal *model.Principal) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet, http.MethodPost:
		default:
			p.reject(w, r, endpoint, ReasonMethod, model.NewMethodNotAllowedError(r.Method))
			return
		}

		principal, ok := p.authorize(w, r, endpoint)
		if !ok {
			return
		}
		ctx := middleware.ContextWithPrincipal(r.Context(), principal)

		resp, err := fn(ctx, principal)
		if err != nil {
			writeApplyError(w, endpoint, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, resp)
	})
}

// authorize は認証とロール確認を行い、失敗時はレスポンスを書き込んでfalseを返す。
func (p *Pipeline) authorize(w http.ResponseWriter, r *http.Request, endpoint string) (*model.Principal, bool) {
	principal, err := p.auth.RequireAdmin(r.Context(), middleware.BearerToken(r))
	if err == nil {
		return principal, true
	}

	if errors.Is(err, auth.ErrForbidden) {
		slog.Warn("admin role check failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		p.reject(w, r, endpoint, ReasonForbidden, model.NewForbiddenError())
		return nil, false
	}

	p.reject(w, r, endpoint, ReasonUnauthorized, model.NewUnauthorizedError())
	return nil, false
}

func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, endpoint, reason string, apiErr *model.APIError) {
	p.recordRejection(endpoint, reason)
	middleware.AnnotateRejection(r.Context(), reason)
	middleware.WriteAPIError(w, apiErr)
}

func (p *Pipeline) recordRejection(endpoint, reason string) {
	if p.recorder != nil {
		p.recorder.RecordGuardRejection(endpoint, reason)
	}
}

func (p *Pipeline) recordRateLimit(outcome middleware.RateLimitOutcome) {
	if p.recorder != nil {
		p.recorder.RecordRateLimit(outcome.String())
	}
}

// writeApplyError は変更処理のエラーをレスポンスに変換する。
// 分類済みのAPIError以外は詳細をログにのみ残し、汎用の500を返す。
func writeApplyError(w http.ResponseWriter, endpoint string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}
	slog.Error("admin action failed",
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}
